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

// Package diff compares two snapshots and produces a structured change
// set plus human-readable summaries, grounded on original_source/
// ascii.py's divergence/line diagram (see diagram.go).
package diff

import (
    "fmt"
    "strings"

    "github.com/dustin/go-humanize"

    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
    "lab.nexedi.com/kirr/git-undo/internal/xset"
)

// RefChange is a before/after pair for one ref name.
type RefChange struct {
    Name             string
    TargetOid, CurrentOid oid.Oid
    TargetAbsent, CurrentAbsent bool
}

// ValueChange is a generic before/after pair for HEAD/index/workdir.
type ValueChange struct {
    Target, Current string
    Changed         bool
}

// ChangeSet is a structured diff between two snapshots.
type ChangeSet struct {
    Refs    []RefChange
    Head    ValueChange
    Index   ValueChange
    Workdir ValueChange
}

// Empty reports whether applying target over current would be a no-op,
// used by Restoration Engine's restore() step 1.
func (c ChangeSet) Empty() bool {
    return len(c.Refs) == 0 && !c.Head.Changed && !c.Index.Changed && !c.Workdir.Changed
}

// Diff compares current against target. Only refs/heads/* and
// refs/tags/* are considered.
func Diff(current, target snapshot.Snapshot) ChangeSet {
    cs := ChangeSet{}

    curRefs := current.RefMap()
    tgtRefs := target.RefMap()

    seen := xset.New[string]()
    addIfDiffers := func(name string) {
        if seen.Contains(name) {
            return
        }
        seen.Add(name)
        if !underDiffScope(name) {
            return
        }
        curOid, curOk := curRefs[name]
        tgtOid, tgtOk := tgtRefs[name]
        if curOk && tgtOk && curOid == tgtOid {
            return
        }
        cs.Refs = append(cs.Refs, RefChange{
            Name:          name,
            TargetOid:     tgtOid,
            TargetAbsent:  !tgtOk,
            CurrentOid:    curOid,
            CurrentAbsent: !curOk,
        })
    }
    for _, r := range current.Refs {
        addIfDiffers(r.Name)
    }
    for _, r := range target.Refs {
        addIfDiffers(r.Name)
    }

    if current.Head != target.Head {
        cs.Head = ValueChange{Target: target.Head, Current: current.Head, Changed: true}
    }
    if current.WorkdirCommit != target.WorkdirCommit {
        cs.Workdir = ValueChange{Target: target.WorkdirCommit.String(), Current: current.WorkdirCommit.String(), Changed: true}
    }
    if current.IndexCommit != target.IndexCommit {
        cs.Index = ValueChange{Target: target.IndexCommit.String(), Current: current.IndexCommit.String(), Changed: true}
    }

    return cs
}

func underDiffScope(name string) bool {
    return strings.HasPrefix(name, "refs/heads/") || strings.HasPrefix(name, "refs/tags/")
}

// MergeBaser is the subset of *vcsgit.Repo Compare/LineDiagram need.
type MergeBaser interface {
    MergeBase(a, b oid.Oid) (oid.Oid, bool, error)
    CountFirstParent(base, tip oid.Oid) (int, error)
    WalkFirstParent(from, until oid.Oid) ([]vcsgit.CommitInfo, error)
}

// Compare produces a human phrase describing how `new` relates to
// `old`: equal, forward, back, diverged, or unrelated histories.
func Compare(repo MergeBaser, old, new oid.Oid) (string, error) {
    if old == new {
        return "equal", nil
    }
    base, ok, err := repo.MergeBase(old, new)
    if err != nil {
        return "", err
    }
    if !ok {
        return "unrelated histories", nil
    }
    a, err := repo.CountFirstParent(base, old)
    if err != nil {
        return "", err
    }
    b, err := repo.CountFirstParent(base, new)
    if err != nil {
        return "", err
    }

    switch {
    case a > 0 && b > 0:
        return fmt.Sprintf("have diverged by %s and %s commits", humanize.Comma(int64(a)), humanize.Comma(int64(b))), nil
    case a > 0 && b == 0:
        return fmt.Sprintf("will move forward by %s commits", humanize.Comma(int64(a))), nil
    case a == 0 && b > 0:
        return fmt.Sprintf("will move back by %s commits", humanize.Comma(int64(b))), nil
    default:
        return "equal", nil
    }
}
