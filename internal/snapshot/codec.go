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

package snapshot

import (
    "fmt"
    "strings"

    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/textutil"
)

// FormatVersion is the codec's format version.
const FormatVersion = 1

// Serialize renders s as a line-oriented text block, used verbatim as
// the ledger commit's message.
func Serialize(s Snapshot) string {
    var b strings.Builder
    fmt.Fprintf(&b, "FormatVersion: %d\n", FormatVersion)
    fmt.Fprintf(&b, "Message: %s\n", textutil.CollapseToSingleLine(s.Message))
    fmt.Fprintf(&b, "HEAD: %s\n", s.Head)
    fmt.Fprintf(&b, "Index: %s\n", s.IndexCommit)
    fmt.Fprintf(&b, "Workdir: %s\n", s.WorkdirCommit)
    b.WriteString("Refs:\n")
    for _, r := range s.Refs {
        fmt.Fprintf(&b, "%s: %s\n", r.Name, r.Oid)
    }
    // the codec only needs to round-trip refs/head/index/workdir (Equal
    // ignores Message and Id has no textual form); the index/workdir
    // *trees* are not persisted here because Ledger.Load rederives them
    // from the commit's own parents/tree.
    return b.String()
}

// ParseError reports a malformed ledger entry: a commit message that does
// not decode as a Snapshot.
type ParseError struct {
    Reason string
}

func (e *ParseError) Error() string { return "snapshot codec: " + e.Reason }

// Parse parses a serialized Snapshot back out. It is strict on the
// header keywords and permissive on whitespace around ':' and values.
func Parse(text string) (Snapshot, error) {
    lines := textutil.SplitLines(text, "\n")
    if len(lines) == 0 {
        return Snapshot{}, &ParseError{"empty input"}
    }

    s := Snapshot{}
    i := 0

    readHeader := func(keyword string) (string, error) {
        if i >= len(lines) {
            return "", &ParseError{fmt.Sprintf("missing %q header", keyword)}
        }
        key, val, ok := textutil.HeadTail(lines[i], ":")
        if !ok || strings.TrimSpace(key) != keyword {
            return "", &ParseError{fmt.Sprintf("expected %q header, got %q", keyword, lines[i])}
        }
        i++
        return strings.TrimSpace(val), nil
    }

    version, err := readHeader("FormatVersion")
    if err != nil {
        return Snapshot{}, err
    }
    if version != fmt.Sprint(FormatVersion) {
        return Snapshot{}, &ParseError{fmt.Sprintf("unsupported FormatVersion %q", version)}
    }

    msg, err := readHeader("Message")
    if err != nil {
        return Snapshot{}, err
    }
    s.Message = msg

    head, err := readHeader("HEAD")
    if err != nil {
        return Snapshot{}, err
    }
    s.Head = head

    idxStr, err := readHeader("Index")
    if err != nil {
        return Snapshot{}, err
    }
    if idxStr != "" {
        s.IndexCommit, err = oid.Parse(idxStr)
        if err != nil {
            return Snapshot{}, &ParseError{"invalid Index oid: " + err.Error()}
        }
    }

    wdStr, err := readHeader("Workdir")
    if err != nil {
        return Snapshot{}, err
    }
    if wdStr != "" {
        s.WorkdirCommit, err = oid.Parse(wdStr)
        if err != nil {
            return Snapshot{}, &ParseError{"invalid Workdir oid: " + err.Error()}
        }
    }

    if i >= len(lines) || strings.TrimSpace(lines[i]) != "Refs:" {
        return Snapshot{}, &ParseError{"missing \"Refs:\" section header"}
    }
    i++

    for ; i < len(lines); i++ {
        name, val, ok := textutil.HeadTail(lines[i], ":")
        if !ok {
            return Snapshot{}, &ParseError{fmt.Sprintf("invalid ref line %q", lines[i])}
        }
        name = strings.TrimSpace(name)
        id, err := oid.Parse(strings.TrimSpace(val))
        if err != nil {
            return Snapshot{}, &ParseError{fmt.Sprintf("invalid ref line %q: %s", lines[i], err)}
        }
        s.Refs = append(s.Refs, RefEntry{Name: name, Oid: id})
    }

    return s, nil
}

// LooksLikeFormatVersion1 is the predicate Ledger.LoadAll uses to skip
// reflog entries that are not git-undo snapshots at all: a foreign
// rewrite of the ledger ref, say, rather than a decode failure worth
// reporting.
func LooksLikeFormatVersion1(message string) bool {
    return strings.HasPrefix(message, fmt.Sprintf("FormatVersion: %d", FormatVersion))
}
