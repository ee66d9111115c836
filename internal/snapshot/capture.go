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
    "os"
    "path/filepath"
    "strconv"
    "strings"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "lab.nexedi.com/kirr/go123/mem"

    "lab.nexedi.com/kirr/git-undo/internal/gitproc"
    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
)

// Repo is the subset of *vcsgit.Repo State Capture needs; declared as an
// interface here so unit tests can substitute a fake.
type Repo interface {
    InRebase() bool
    CopyIndexTo(dst string) error
    StageTrackedChanges(indexPath string) error
    WriteTreeFromIndex(indexPath string) (oid.Oid, error)
    CommitTree(tree oid.Oid, parents []oid.Oid, message string, author, committer vcsgit.Identity) (oid.Oid, error)
    ListRefs() ([]vcsgit.Ref, error)
    ReadHead() (vcsgit.Head, error)
    GitDir() string
}

// ErrRebaseInProgress is returned by Capture when a rebase is underway.
// It is not a failure; callers should treat it as "nothing to record
// right now" rather than log it as an error.
var ErrRebaseInProgress = errSentinel("rebase in progress")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

// fixedIdentity is the deterministic author/committer used for
// index_commit/workdir_commit so that identical trees always yield
// identical commit oids, which is what makes Ledger.Save's dedup check
// work.
var fixedIdentity = vcsgit.Identity{Name: "git-undo", Email: "git-undo@localhost", Date: "@0 +0000"}

// Capture builds a Snapshot from the live repository state. ledgerRef
// names the ref the ledger itself lives on, so Capture can exclude it
// from the refs it records even when a configured ledger ref differs
// from the default.
func Capture(r Repo, ledgerRef string, log *logrus.Entry) (Snapshot, error) {
    if r.InRebase() {
        return Snapshot{}, ErrRebaseInProgress
    }

    scratchIndex := filepath.Join(r.GitDir(), "undo-index-"+uuid.NewString())
    defer os.Remove(scratchIndex)

    if err := r.CopyIndexTo(scratchIndex); err != nil {
        return Snapshot{}, err
    }

    indexTree, err := r.WriteTreeFromIndex(scratchIndex)
    if err != nil {
        return Snapshot{}, err
    }
    indexCommit, err := r.CommitTree(indexTree, nil, "index", fixedIdentity, fixedIdentity)
    if err != nil {
        return Snapshot{}, err
    }

    if err := r.StageTrackedChanges(scratchIndex); err != nil {
        return Snapshot{}, err
    }
    workdirTree, err := r.WriteTreeFromIndex(scratchIndex)
    if err != nil {
        return Snapshot{}, err
    }
    workdirCommit, err := r.CommitTree(workdirTree, nil, "workdir", fixedIdentity, fixedIdentity)
    if err != nil {
        return Snapshot{}, err
    }

    rawRefs, err := r.ListRefs()
    if err != nil {
        return Snapshot{}, err
    }
    var refs []RefEntry
    for _, ref := range rawRefs {
        if !isCapturedRef(ref.Name, ledgerRef) {
            continue
        }
        refs = append(refs, RefEntry{Name: ref.Name, Oid: ref.Oid})
    }

    head, err := r.ReadHead()
    if err != nil {
        return Snapshot{}, err
    }
    headStr := ""
    switch {
    case head.Absent:
        headStr = ""
    case head.RefName != "":
        headStr = head.RefName
    default:
        headStr = head.Detached.String()
    }

    return Snapshot{
        Message:       inferMessage(r.GitDir(), log),
        Refs:          refs,
        Head:          headStr,
        IndexTree:     indexTree,
        IndexCommit:   indexCommit,
        WorkdirTree:   workdirTree,
        WorkdirCommit: workdirCommit,
    }, nil
}

// isCapturedRef reports whether name belongs in a snapshot: every local
// branch and tag, excluding remote-tracking refs and the ledger ref
// itself.
func isCapturedRef(name, ledgerRef string) bool {
    if !strings.HasPrefix(name, "refs/heads/") && !strings.HasPrefix(name, "refs/tags/") {
        return false
    }
    if name == ledgerRef {
        return false
    }
    return true
}

// LedgerRefName is the default ledger ref.
const LedgerRefName = "refs/git-undo"

// inferMessage labels a snapshot with whatever triggered it: the
// grandparent process's command line if it looks like a git invocation,
// falling back to the latest HEAD reflog message.
func inferMessage(gitDir string, log *logrus.Entry) string {
    if msg, ok := messageFromProcessTree(); ok {
        return msg
    }
    if log != nil {
        log.Debug("message inference: process tree lookup failed, falling back to reflog")
    }
    gerr, stdout, _ := gitproc.Run([]string{"reflog", "--format=%gs", "-n", "1", "HEAD"}, gitproc.Opts{GitDir: gitDir})
    if gerr != nil {
        return ""
    }
    return collapseMessage(stdout)
}

// messageFromProcessTree reads the grandparent process's argv from /proc.
// Linux-only and inherently best-effort: any failure (non-Linux, /proc
// unavailable, permission) is reported as ok=false so the caller falls
// back to the reflog.
func messageFromProcessTree() (string, bool) {
    ppid, ok := readPPID(os.Getpid())
    if !ok {
        return "", false
    }
    gppid, ok := readPPID(ppid)
    if !ok {
        return "", false
    }
    cmdline, ok := readCmdline(gppid)
    if !ok || len(cmdline) == 0 {
        return "", false
    }
    if !looksLikeGit(cmdline[0]) {
        return "", false
    }
    return collapseMessage(strings.Join(cmdline, " ")), true
}

func looksLikeGit(argv0 string) bool {
    base := filepath.Base(argv0)
    return base == "git" || strings.HasPrefix(base, "git-")
}

func readPPID(pid int) (int, bool) {
    data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
    if err != nil {
        return 0, false
    }
    // fields: pid (comm) state ppid ...; comm can contain spaces/parens,
    // so split after the last ')'.
    s := mem.String(data)
    idx := strings.LastIndexByte(s, ')')
    if idx < 0 {
        return 0, false
    }
    fields := strings.Fields(s[idx+1:])
    if len(fields) < 2 {
        return 0, false
    }
    ppid, err := strconv.Atoi(fields[1])
    if err != nil {
        return 0, false
    }
    return ppid, true
}

func readCmdline(pid int) ([]string, bool) {
    data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
    if err != nil {
        return nil, false
    }
    parts := strings.Split(strings.TrimRight(mem.String(data), "\x00"), "\x00")
    if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
        return nil, false
    }
    return parts, true
}

func collapseMessage(s string) string {
    s = strings.ReplaceAll(s, "\n", " ")
    return strings.TrimSpace(s)
}
