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

// Package oid implements the Oid type used to name objects in the host
// Git object store, generalizing git-backup's Sha1 type (sha1.go) beyond
// the backup tool's use case.
package oid

import (
    "bytes"
    "encoding/hex"
    "fmt"

    git "github.com/libgit2/git2go/v31"
)

const RawSize = 20

// Oid is a raw 20-byte object-id. The zero value is the null oid.
type Oid struct {
    raw [RawSize]byte
}

var _ fmt.Stringer = Oid{}

func (id Oid) String() string {
    return hex.EncodeToString(id.raw[:])
}

// Parse decodes a hex sha1 string into an Oid.
func Parse(s string) (Oid, error) {
    id := Oid{}
    if hex.DecodedLen(len(s)) != RawSize {
        return Oid{}, fmt.Errorf("oid: %q: invalid length", s)
    }
    _, err := hex.Decode(id.raw[:], []byte(s))
    if err != nil {
        return Oid{}, fmt.Errorf("oid: %q: invalid: %s", s, err)
    }
    return id, nil
}

// fmt.Scanner, so Oid can be used directly with fmt.Sscanf like the
// teacher's Sha1 type is.
var _ fmt.Scanner = (*Oid)(nil)

func (id *Oid) Scan(s fmt.ScanState, ch rune) error {
    switch ch {
    case 's', 'v':
    default:
        return fmt.Errorf("oid.Scan: invalid verb %q", ch)
    }
    tok, err := s.Token(true, nil)
    if err != nil {
        return err
    }
    parsed, err := Parse(string(tok))
    if err != nil {
        return err
    }
    *id = parsed
    return nil
}

// IsZero reports whether id is the null oid.
func (id Oid) IsZero() bool {
    return id == Oid{}
}

// AsGitOid converts to a *git2go.Oid for calls into git2go.
func (id Oid) AsGitOid() *git.Oid {
    var g git.Oid
    copy(g[:], id.raw[:])
    return &g
}

// FromGitOid converts a *git2go.Oid (or the equivalent 20-byte array) into
// an Oid, copying the bytes so the result does not alias git2go-owned
// memory (see internal/vcsgit doc comment on the same hazard).
func FromGitOid(g *git.Oid) Oid {
    id := Oid{}
    if g != nil {
        copy(id.raw[:], g[:])
    }
    return id
}

// By is a sort.Interface adaptor for sorting []Oid deterministically
// (bytewise order of the raw ids).
type By []Oid

func (p By) Len() int      { return len(p) }
func (p By) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p By) Less(i, j int) bool {
    return bytes.Compare(p[i].raw[:], p[j].raw[:]) < 0
}
