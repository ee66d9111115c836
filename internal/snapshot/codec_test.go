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

package snapshot_test

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
)

func xoid(t *testing.T, hex string) oid.Oid {
    id, err := oid.Parse(hex)
    require.NoError(t, err)
    return id
}

// round-trip for every capturable snapshot.
func TestSerializeParseRoundtrip(t *testing.T) {
    s := snapshot.Snapshot{
        Message: "commit: add feature",
        Head:    "refs/heads/main",
        Refs: []snapshot.RefEntry{
            {Name: "refs/heads/main", Oid: xoid(t, "356a192b7913b04c54574d18c28d46e6395428ab")},
            {Name: "refs/tags/v1", Oid: xoid(t, "da4b9237bacccdf19c0760cab7aec4a8359010b0")},
        },
        IndexCommit:   xoid(t, "77de68daecd823babbb58edb1c8e14d7106e83bb"),
        WorkdirCommit: xoid(t, "1b6453892473a467d07372d45eb05abc2031647a"),
    }

    text := snapshot.Serialize(s)
    got, err := snapshot.Parse(text)
    require.NoError(t, err)

    assert.True(t, s.Equal(got), "parse(serialize(s)) should be semantically equal to s")
    assert.Equal(t, s.Head, got.Head)
    assert.Equal(t, s.Refs, got.Refs)
}

func TestSerializeEmptyRefs(t *testing.T) {
    s := snapshot.Snapshot{Head: ""}
    text := snapshot.Serialize(s)
    got, err := snapshot.Parse(text)
    require.NoError(t, err)
    assert.True(t, s.Equal(got))
    assert.Empty(t, got.Refs)
}

func TestParseRejectsBadHeader(t *testing.T) {
    _, err := snapshot.Parse("NotAFormatLine\n")
    assert.Error(t, err)
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
    text := "FormatVersion: 99\nMessage: x\nHEAD: \nIndex: \nWorkdir: \nRefs:\n"
    _, err := snapshot.Parse(text)
    assert.Error(t, err)
}

func TestLooksLikeFormatVersion1(t *testing.T) {
    s := snapshot.Snapshot{}
    text := snapshot.Serialize(s)
    assert.True(t, snapshot.LooksLikeFormatVersion1(text))
    assert.False(t, snapshot.LooksLikeFormatVersion1("reflog: pull origin"))
}

func TestEqualIgnoresMessageAndId(t *testing.T) {
    a := snapshot.Snapshot{Message: "one", Id: xoid(t, "356a192b7913b04c54574d18c28d46e6395428ab")}
    b := snapshot.Snapshot{Message: "two", Id: xoid(t, "da4b9237bacccdf19c0760cab7aec4a8359010b0")}
    assert.True(t, a.Equal(b))
}
