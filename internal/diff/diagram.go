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

package diff

import (
    "fmt"
    "strings"

    "github.com/fatih/color"

    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
)

// glyphs, lifted from original_source/ascii.py's symbol(): the "then"
// (target/old) endpoint is marked ➤, "now" (current/new) is ★.
const (
    glyphTarget  = "➤" // ➤
    glyphCurrent = "★" // ★
    glyphNone    = " "
)

var (
    colorTarget  = color.New(color.FgGreen)
    colorCurrent = color.New(color.FgYellow)
)

// elideThreshold: a linear diagram longer than this many commits has its
// middle elided down to a count.
const elideThreshold = 6

// LineDiagram renders an ASCII two-column history from old and new back
// to their merge base, reusing the glyph/elbow drawing of
// original_source/ascii.py's draw_line_diagram/draw_diverged_diagram.
func LineDiagram(repo MergeBaser, old, new oid.Oid) (string, error) {
    if old == new {
        return shortLine(glyphTarget+glyphCurrent, old, ""), nil
    }

    base, ok, err := repo.MergeBase(old, new)
    if err != nil {
        return "", err
    }
    if !ok {
        return fmt.Sprintf("%s and %s: unrelated histories\n", short(old), short(new)), nil
    }

    if base == old || base == new {
        return drawLineDiagram(repo, old, new, base)
    }
    return drawDivergedDiagram(repo, old, new, base)
}

func drawLineDiagram(repo MergeBaser, old, new, base oid.Oid) (string, error) {
    var history []vcsgit.CommitInfo
    var err error
    if base == old {
        history, err = repo.WalkFirstParent(new, old)
    } else {
        history, err = repo.WalkFirstParent(old, new)
    }
    if err != nil {
        return "", err
    }
    history, elided := elideIfLong(history)

    var b strings.Builder
    for _, c := range history {
        if c.Oid.IsZero() {
            fmt.Fprintf(&b, "   ... %d commits elided ...\n", elided)
            continue
        }
        b.WriteString(shortLine(symbol(c.Oid, old, new), c.Oid, c.Message))
    }
    return b.String(), nil
}

func drawDivergedDiagram(repo MergeBaser, old, new, base oid.Oid) (string, error) {
    oldCommits, err := repo.WalkFirstParent(old, base)
    if err != nil {
        return "", err
    }
    newCommits, err := repo.WalkFirstParent(new, base)
    if err != nil {
        return "", err
    }
    // drop the shared base from each side's own column; it is drawn once
    // at the bottom (ascii.py's draw_diverged_diagram).
    oldCommits = dropLast(oldCommits)
    newCommits = dropLast(newCommits)

    maxLen := len(oldCommits)
    if len(newCommits) > maxLen {
        maxLen = len(newCommits)
    }
    oldCommits = padFront(oldCommits, maxLen)
    newCommits = padFront(newCommits, maxLen)

    var b strings.Builder
    for i := 0; i < maxLen; i++ {
        left := commitCell(oldCommits[i], old, new)
        right := commitCell(newCommits[i], old, new)
        fmt.Fprintf(&b, "%-44s %-23s\n", left, right)
    }
    b.WriteString("    ┬" + strings.Repeat(" ", 43) + "┬\n")
    b.WriteString("    ┝" + strings.Repeat("─", 43) + "┘\n")
    b.WriteString("    │\n")
    fmt.Fprintf(&b, " %s %s\n", short(base), "")
    return b.String(), nil
}

func commitCell(c vcsgit.CommitInfo, old, new oid.Oid) string {
    if c.Oid.IsZero() {
        return ""
    }
    return fmt.Sprintf("%s%s %s", symbol(c.Oid, old, new), short(c.Oid), c.Message)
}

func symbol(id, old, new oid.Oid) string {
    switch id {
    case old:
        return colorTarget.Sprint(glyphTarget)
    case new:
        return colorCurrent.Sprint(glyphCurrent)
    default:
        return glyphNone
    }
}

func short(id oid.Oid) string {
    s := id.String()
    if len(s) > 6 {
        return s[:6]
    }
    return s
}

func shortLine(glyph string, id oid.Oid, message string) string {
    return fmt.Sprintf("%s%s %s\n", glyph, short(id), message)
}

func dropLast(commits []vcsgit.CommitInfo) []vcsgit.CommitInfo {
    if len(commits) == 0 {
        return commits
    }
    return commits[:len(commits)-1]
}

func padFront(commits []vcsgit.CommitInfo, n int) []vcsgit.CommitInfo {
    if len(commits) >= n {
        return commits
    }
    pad := make([]vcsgit.CommitInfo, n-len(commits))
    return append(pad, commits...)
}

// elideIfLong keeps the two endpoints and a few commits nearest each,
// replacing a long run in between with one zero-Oid marker commit;
// elided reports how many commits that marker stands for.
func elideIfLong(history []vcsgit.CommitInfo) (out []vcsgit.CommitInfo, elided int) {
    const keepEachEnd = 2
    if len(history) <= elideThreshold {
        return history, 0
    }
    elided = len(history) - 2*keepEachEnd
    out = make([]vcsgit.CommitInfo, 0, 2*keepEachEnd+1)
    out = append(out, history[:keepEachEnd]...)
    out = append(out, vcsgit.CommitInfo{}) // zero Oid marks the elision
    out = append(out, history[len(history)-keepEachEnd:]...)
    return out, elided
}
