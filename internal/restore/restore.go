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

// Package restore implements Restore(snapshot) and Undo(), grounded on
// git-backup.go's cmd_restore_ sequencing discipline: resolve target
// state fully before touching any ref, then write refs (there from
// backup.refs, here from a Snapshot).
package restore

import (
    "fmt"
    "strings"

    "github.com/sirupsen/logrus"

    "lab.nexedi.com/kirr/git-undo/internal/diff"
    "lab.nexedi.com/kirr/git-undo/internal/ledger"
    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
    "lab.nexedi.com/kirr/git-undo/internal/xset"
)

// Repo is the subset of *vcsgit.Repo the Restoration Engine needs.
type Repo interface {
    RestoreWorktree(fromTree, toTree oid.Oid) error
    RestoreIndex(fromTree oid.Oid) error
    WriteRefForce(name string, target oid.Oid, reason string) error
    DeleteRef(name string) error
    SetHead(target string, reason string) error
    ListRefs() ([]vcsgit.Ref, error)
}

// IntegrityError reports a ref that a snapshot names but whose target no
// longer exists in the object store. Restoration still attempts the
// remaining refs.
type IntegrityError struct {
    RefName string
    Cause   error
}

func (e *IntegrityError) Error() string {
    return fmt.Sprintf("restore: ref %s: %s", e.RefName, e.Cause)
}

func (e *IntegrityError) Unwrap() error { return e.Cause }

// Result reports what Restore actually did, including any
// non-fatal per-ref integrity errors gathered along the way.
type Result struct {
    NoOp   bool // diff(current, target) was already empty
    Before oid.Oid
    Errors []*IntegrityError
}

// Restore rewrites the working tree, index, refs, and HEAD to match
// target, saving the current state to the ledger first so restoring is
// always reversible. If that save appends a new entry (the current state
// differs from the ledger tip), a warning naming the new entry is logged
// before proceeding, since that state is about to be overwritten.
//
// Step ordering is load-bearing: the working-tree restore is the one
// step that can fail on host state outside git-undo's control (a dirty
// conflicting file); every ref/HEAD write happens only after it
// succeeds, so a failure here never leaves refs pointing at a state the
// working tree disagrees with.
func Restore(repo Repo, captureFn func() (snapshot.Snapshot, error), led *ledger.Ledger, target snapshot.Snapshot, log *logrus.Entry) (Result, error) {
    current, err := captureFn()
    if err != nil {
        return Result{}, err
    }

    cs := diff.Diff(current, target)
    if cs.Empty() {
        return Result{NoOp: true}, nil
    }

    beforeId, saved, err := led.Save(current)
    if err != nil {
        return Result{}, fmt.Errorf("restore: saving current state: %w", err)
    }
    if !saved {
        beforeId, _ = led.Tip()
    } else if log != nil {
        log.WithField("snapshot", beforeId).Warn("restore: current state differed from the latest stored snapshot; saved it before proceeding")
    }

    if err := repo.RestoreWorktree(current.WorkdirTree, target.WorkdirTree); err != nil {
        return Result{Before: beforeId}, fmt.Errorf("restore: working tree: %w", err)
    }

    if err := repo.RestoreIndex(target.IndexTree); err != nil {
        return Result{Before: beforeId}, fmt.Errorf("restore: index: %w", err)
    }

    var integrityErrs []*IntegrityError
    targetNames := xset.New[string]()
    for _, r := range target.Refs {
        targetNames.Add(r.Name)
        if err := repo.WriteRefForce(r.Name, r.Oid, fmt.Sprintf("[git-undo] restored from snapshot %s", target.Id)); err != nil {
            ie := &IntegrityError{RefName: r.Name, Cause: err}
            integrityErrs = append(integrityErrs, ie)
            if log != nil {
                log.WithError(err).WithField("ref", r.Name).Warn("restore: failed to write ref")
            }
        }
    }

    liveRefs, err := repo.ListRefs()
    if err != nil {
        return Result{Before: beforeId, Errors: integrityErrs}, fmt.Errorf("restore: listing refs: %w", err)
    }
    for _, r := range liveRefs {
        if !underRestoreScope(r.Name) {
            continue
        }
        if targetNames.Contains(r.Name) {
            continue
        }
        if err := repo.DeleteRef(r.Name); err != nil {
            integrityErrs = append(integrityErrs, &IntegrityError{RefName: r.Name, Cause: err})
        }
    }

    if err := repo.SetHead(target.Head, fmt.Sprintf("[git-undo] restored from snapshot %s", target.Id)); err != nil {
        return Result{Before: beforeId, Errors: integrityErrs}, fmt.Errorf("restore: HEAD: %w", err)
    }

    return Result{Before: beforeId, Errors: integrityErrs}, nil
}

func underRestoreScope(name string) bool {
    return strings.HasPrefix(name, "refs/heads/") || strings.HasPrefix(name, "refs/tags/")
}

// Undo captures and saves the current state, then walks ledger entries
// newest-first for the first one whose diff against current is non-empty
// in refs or head, and restores it.
func Undo(repo Repo, captureFn func() (snapshot.Snapshot, error), led *ledger.Ledger, log *logrus.Entry) (Result, error) {
    current, err := captureFn()
    if err != nil {
        return Result{}, err
    }
    if _, _, err := led.Save(current); err != nil {
        return Result{}, fmt.Errorf("undo: saving current state: %w", err)
    }

    entries, err := led.LoadAll()
    if err != nil {
        return Result{}, fmt.Errorf("undo: loading ledger: %w", err)
    }
    if len(entries) == 0 {
        if log != nil {
            log.Info("nothing to undo")
        }
        return Result{NoOp: true}, nil
    }

    for _, e := range entries {
        if e.Err != nil {
            continue
        }
        cs := diff.Diff(current, e.Snapshot)
        if len(cs.Refs) == 0 && !cs.Head.Changed {
            continue
        }
        return Restore(repo, captureFn, led, e.Snapshot, log)
    }

    if log != nil {
        log.Info("nothing to undo")
    }
    return Result{NoOp: true}, nil
}
