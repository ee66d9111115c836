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

// Package textutil has the small string-munging helpers git-backup keeps
// in util.go (splitlines, split2, headtail), generalized for the Snapshot
// Codec and message inference.
package textutil

import "strings"

// SplitLines splits s on sep, dropping a single trailing empty element
// (the artifact of strings.Split("a\nb\n", "\n") -> ["a","b",""]).
func SplitLines(s, sep string) []string {
    parts := strings.Split(s, sep)
    if n := len(parts); n > 0 && parts[n-1] == "" {
        parts = parts[:n-1]
    }
    return parts
}

// HeadTail splits s on the first occurrence of sep, returning the parts
// before and after it. Used to pull the (key, value) pair out of one
// "Key: value" header line; callers trim the result themselves, so
// whitespace around sep and around the value is tolerated.
func HeadTail(s, sep string) (head, tail string, ok bool) {
    i := strings.Index(s, sep)
    if i < 0 {
        return "", "", false
    }
    return s[:i], s[i+len(sep):], true
}

// CollapseToSingleLine replaces newlines with spaces and trims, since a
// snapshot's inferred message is stored as one header line.
func CollapseToSingleLine(s string) string {
    s = strings.ReplaceAll(s, "\r\n", " ")
    s = strings.ReplaceAll(s, "\n", " ")
    s = strings.ReplaceAll(s, "\r", " ")
    return strings.TrimSpace(s)
}
