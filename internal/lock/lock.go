// Copyright (C) 2015-2026  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package lock is an advisory file lock at a well-known path inside the
// repository metadata directory, acquired on entry to every
// hook-triggered invocation so two racing hooks never record at once.
//
// Uses github.com/dolthub/fslock, the same advisory-lock library dolt
// uses to guard its own repository directory, rather than hand-rolling
// flock(2) the way a zero-dependency tool would.
package lock

import (
    "time"

    "github.com/dolthub/fslock"
)

// Guard wraps one advisory lock file.
type Guard struct {
    path string
    lock *fslock.Lock
    held bool
}

// New returns a Guard for the lock file at path. The file is created if
// missing; it is not removed on Release (advisory locks are identified by
// path, not by file lifetime).
func New(path string) *Guard {
    return &Guard{path: path, lock: fslock.New(path)}
}

// TryAcquire attempts to take the lock without blocking. ok is false if
// another invocation already holds it; callers should treat that as
// "someone else is already recording" and return successfully, not as
// an error.
func (g *Guard) TryAcquire() (ok bool, err error) {
    err = g.lock.TryLock()
    if err == fslock.ErrLocked {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    g.held = true
    return true, nil
}

// Acquire retries TryAcquire until it succeeds or timeout elapses, for
// callers (restore, undo) that would rather wait a moment for an
// in-flight record() to finish than read a state that is about to change
// out from under them.
func (g *Guard) Acquire(timeout time.Duration) (ok bool, err error) {
    deadline := time.Now().Add(timeout)
    for {
        ok, err = g.TryAcquire()
        if ok || err != nil {
            return ok, err
        }
        if time.Now().After(deadline) {
            return false, nil
        }
        time.Sleep(20 * time.Millisecond)
    }
}

// Release unlocks the guard. It is safe to call unconditionally,
// including after an error, and safe to call more than once.
func (g *Guard) Release() error {
    if !g.held {
        return nil
    }
    g.held = false
    return g.lock.Unlock()
}
