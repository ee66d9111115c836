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

// Package snapshot holds the Snapshot data model, its line-oriented text
// codec, and the state-capture logic that builds a Snapshot from a live
// repository.
package snapshot

import (
    "lab.nexedi.com/kirr/git-undo/internal/oid"
)

// RefEntry is one (ref_full_name, target_object_id) pair.
type RefEntry struct {
    Name string
    Oid  oid.Oid
}

// Snapshot is a captured repository state: every local branch/tag, HEAD,
// and the index/working-tree content at the moment it was taken.
type Snapshot struct {
    // Id is the oid of the ledger commit storing this snapshot. The zero
    // Oid means "unsaved".
    Id oid.Oid

    // Message is a best-effort, single-line label for the triggering
    // command. The codec may omit and re-derive it; Equal ignores it.
    Message string

    // Refs is the ordered set of local branches/tags, in enumeration
    // order, so re-serializing an unchanged snapshot is byte-identical.
    Refs []RefEntry

    // Head is the symbolic HEAD value: a fully-qualified ref name or a
    // detached oid's hex string. Empty means "absent".
    Head string

    IndexTree   oid.Oid
    IndexCommit oid.Oid

    WorkdirTree   oid.Oid
    WorkdirCommit oid.Oid
}

// Equal reports whether two snapshots describe the same repository state:
// their refs, head, index commit and workdir commit are pairwise equal.
// Message and Id are ignored.
func (s Snapshot) Equal(other Snapshot) bool {
    if s.Head != other.Head {
        return false
    }
    if s.IndexCommit != other.IndexCommit {
        return false
    }
    if s.WorkdirCommit != other.WorkdirCommit {
        return false
    }
    if len(s.Refs) != len(other.Refs) {
        return false
    }
    for i := range s.Refs {
        if s.Refs[i] != other.Refs[i] {
            return false
        }
    }
    return true
}

// RefMap indexes Refs by name for lookups (Diff Engine, Restoration
// Engine).
func (s Snapshot) RefMap() map[string]oid.Oid {
    m := make(map[string]oid.Oid, len(s.Refs))
    for _, r := range s.Refs {
        m[r.Name] = r.Oid
    }
    return m
}
