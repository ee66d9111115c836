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

// Package ledger is an append-only chain of snapshot commits on a
// dedicated reference, with dedup against the previous entry and a
// durable reflog for temporal ordering.
package ledger

import (
    "time"

    "github.com/sirupsen/logrus"

    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
)

// Repo is the subset of *vcsgit.Repo the ledger needs.
type Repo interface {
    RefExists(name string) bool
    ReadRef(name string) (oid.Oid, bool)
    CommitMessage(id oid.Oid) (string, error)
    CommitParents(id oid.Oid) ([]oid.Oid, error)
    CommitTreeOid(id oid.Oid) (oid.Oid, error)
    CommitTree(tree oid.Oid, parents []oid.Oid, message string, author, committer vcsgit.Identity) (oid.Oid, error)
    WriteRefForce(name string, target oid.Oid, reason string) error
    EnsureReflog(name string) error
    Reflog(name string) ([]vcsgit.ReflogEntry, error)
}

// Ledger is the ledger over one reference.
type Ledger struct {
    repo     Repo
    refname  string
    identity vcsgit.Identity
    log      *logrus.Entry
}

func New(repo Repo, refname string, identity vcsgit.Identity, log *logrus.Entry) *Ledger {
    return &Ledger{repo: repo, refname: refname, identity: identity, log: log}
}

// Save appends snap to the ledger, unless it is identical to the current
// tip entry, in which case it is a no-op. On a no-op save, returns (zero
// oid, false, nil).
func (l *Ledger) Save(snap snapshot.Snapshot) (oid.Oid, bool, error) {
    serialized := snapshot.Serialize(snap)

    tip, exists := l.repo.ReadRef(l.refname)
    if exists {
        prevMsg, err := l.repo.CommitMessage(tip)
        if err != nil {
            return oid.Oid{}, false, err
        }
        if prevMsg == serialized {
            if l.log != nil {
                l.log.Debug("ledger: snapshot identical to previous entry, skipping")
            }
            return oid.Oid{}, false, nil
        }
    }

    parents := []oid.Oid{snap.IndexCommit, snap.WorkdirCommit}
    commit, err := l.repo.CommitTree(snap.WorkdirTree, parents, serialized, l.identity, l.identity)
    if err != nil {
        return oid.Oid{}, false, err
    }

    if !exists {
        if err := l.repo.EnsureReflog(l.refname); err != nil {
            return oid.Oid{}, false, err
        }
    }
    if err := l.repo.WriteRefForce(l.refname, commit, "snapshot"); err != nil {
        return oid.Oid{}, false, err
    }

    return commit, true, nil
}

// Load parses the ledger commit's message back into a Snapshot, then
// recovers index_tree/workdir_tree from the commit's own parents (the
// codec does not persist trees, see internal/snapshot.Serialize).
func (l *Ledger) Load(id oid.Oid) (snapshot.Snapshot, error) {
    msg, err := l.repo.CommitMessage(id)
    if err != nil {
        return snapshot.Snapshot{}, err
    }
    snap, err := snapshot.Parse(msg)
    if err != nil {
        return snapshot.Snapshot{}, err
    }
    snap.Id = id

    parents, err := l.repo.CommitParents(id)
    if err == nil && len(parents) == 2 {
        snap.IndexCommit = parents[0]
        snap.WorkdirCommit = parents[1]
        if t, err := l.repo.CommitTreeOid(snap.IndexCommit); err == nil {
            snap.IndexTree = t
        }
        if t, err := l.repo.CommitTreeOid(snap.WorkdirCommit); err == nil {
            snap.WorkdirTree = t
        }
    }
    return snap, nil
}

// Entry pairs a loaded Snapshot with the outcome of loading it, so
// LoadAll can report a codec error on one entry without aborting the
// whole walk.
type Entry struct {
    Snapshot  snapshot.Snapshot
    Timestamp time.Time
    Err       error
}

// LoadAll walks the ledger ref's reflog, newest to oldest, mapping each
// entry's new_oid through Load. Entries that don't look like a snapshot
// at all (a foreign rewrite of the ledger ref) are skipped rather than
// reported as errors.
func (l *Ledger) LoadAll() ([]Entry, error) {
    if !l.repo.RefExists(l.refname) {
        return nil, nil
    }
    reflog, err := l.repo.Reflog(l.refname)
    if err != nil {
        return nil, err
    }

    entries := make([]Entry, 0, len(reflog))
    for _, rl := range reflog {
        msg, err := l.repo.CommitMessage(rl.New)
        if err != nil {
            entries = append(entries, Entry{Err: err})
            continue
        }
        if !snapshot.LooksLikeFormatVersion1(msg) {
            if l.log != nil {
                l.log.WithField("commit", rl.New).Debug("ledger: skipping non-snapshot entry")
            }
            continue
        }
        snap, err := l.Load(rl.New)
        entries = append(entries, Entry{Snapshot: snap, Timestamp: rl.Timestamp, Err: err})
    }
    return entries, nil
}

// Tip returns the current ledger head, if any.
func (l *Ledger) Tip() (oid.Oid, bool) {
    return l.repo.ReadRef(l.refname)
}
