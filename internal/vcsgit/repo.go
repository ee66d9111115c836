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

// Package vcsgit is a thin façade over the host Git repository: the only
// place in git-undo that touches git2go or spawns a `git` subprocess.
//
// It folds together two things git-backup kept separate: a git2go
// safety wrapper (copy everything git2go hands back before the owning
// object can be garbage collected, see stringsClone/bytesClone below)
// and git.go's subprocess runner for operations git2go does not cleanly
// expose. Every write here goes through internal/gitproc, which always
// disables hooks, so a write made on git-undo's behalf can never
// recursively re-trigger the hooks that called it.
package vcsgit

import (
    "fmt"
    "os"
    "path/filepath"
    "runtime"
    "strings"
    "time"

    git2go "github.com/libgit2/git2go/v31"

    "lab.nexedi.com/kirr/git-undo/internal/gitproc"
    "lab.nexedi.com/kirr/git-undo/internal/oid"
)

// Identity names an author/committer for a commit this adapter creates.
type Identity struct {
    Name  string
    Email string
    // Date is a `git commit-tree` compatible date string, e.g. "@0 +0000"
    // for the epoch. Empty means "now".
    Date string
}

// Ref is a (name, target) pair as returned by ListRefs.
type Ref struct {
    Name string
    Oid  oid.Oid
}

// Repo is the Repository Adapter over one on-disk repository.
type Repo struct {
    g        *git2go.Repository
    path     string // .git directory (or bare repo root)
    worktree string // "" if bare
}

// Open opens the repository containing (or equal to) dir.
func Open(dir string) (*Repo, error) {
    g, err := git2go.OpenRepository(dir)
    if err != nil {
        return nil, fmt.Errorf("vcsgit: open %s: %w", dir, err)
    }
    r := &Repo{g: g, path: stringsClone(g.Path())}
    if !g.IsBare() {
        r.worktree = stringsClone(g.Workdir())
    }
    runtime.KeepAlive(g)
    return r, nil
}

// GitDir returns the .git metadata directory path.
func (r *Repo) GitDir() string { return r.path }

// IsBare reports whether the repository has no working tree.
func (r *Repo) IsBare() bool { return r.worktree == "" }

// ---- list_refs / read_head / write_ref_force / delete_ref / set_head ----

// ListRefs returns every reference in the repository (including
// refs/remotes/*, refs/stash, etc: callers that want only local
// branches/tags filter on Name themselves; see internal/snapshot.Capture).
// Order is the iteration order git2go gives us, which is stable
// (lexicographic by full ref name).
func (r *Repo) ListRefs() ([]Ref, error) {
    iter, err := r.g.NewReferenceIterator()
    if err != nil {
        return nil, fmt.Errorf("vcsgit: list refs: %w", err)
    }
    var refs []Ref
    for {
        ref, err := iter.Next()
        if err != nil {
            break // iterator exhausted (git2go signals via error at EOF)
        }
        if ref.Type() != git2go.ReferenceOid {
            // skip refs whose only form is symbolic (HEAD itself is read
            // separately via ReadHead)
            continue
        }
        refs = append(refs, Ref{Name: stringsClone(ref.Name()), Oid: oid.FromGitOid(ref.Target())})
    }
    return refs, nil
}

// Head is the symbolic HEAD value: a fully-qualified ref name, a detached
// Oid, or the zero value with Absent=true if HEAD cannot be resolved at
// all (unborn branch on a brand fresh repository with no commits yet is
// NOT absent: its head is a symbolic ref name pointing at nothing).
type Head struct {
    RefName  string // set iff this is a symbolic HEAD
    Detached oid.Oid
    Absent   bool
}

// ReadHead reads HEAD without resolving a symbolic ref to its target.
func (r *Repo) ReadHead() (Head, error) {
    ref, err := r.g.References.Lookup("HEAD")
    if err != nil {
        return Head{Absent: true}, nil
    }
    defer runtime.KeepAlive(ref)
    switch ref.Type() {
    case git2go.ReferenceSymbolic:
        return Head{RefName: stringsClone(ref.SymbolicTarget())}, nil
    case git2go.ReferenceOid:
        return Head{Detached: oid.FromGitOid(ref.Target())}, nil
    default:
        return Head{Absent: true}, nil
    }
}

// WriteRefForce creates or overwrites a ref to point at target.
func (r *Repo) WriteRefForce(name string, target oid.Oid, reason string) error {
    gerr, _, _ := gitproc.Run([]string{"update-ref", "-m", reason, name, target.String()}, gitproc.Opts{GitDir: r.path})
    if gerr != nil {
        return gerr
    }
    return nil
}

// DeleteRef removes a ref, tolerating it already being absent.
func (r *Repo) DeleteRef(name string) error {
    gerr, _, stderr := gitproc.Run([]string{"update-ref", "-d", name}, gitproc.Opts{GitDir: r.path})
    if gerr != nil && !strings.Contains(stderr, "unknown ref") {
        return gerr
    }
    return nil
}

// SetHead writes a symbolic ("refs/heads/main") or detached
// (40-hex-char oid string) HEAD.
func (r *Repo) SetHead(target string, reason string) error {
    if id, err := oid.Parse(target); err == nil {
        gerr, _, _ := gitproc.Run([]string{"update-ref", "--no-deref", "-m", reason, "HEAD", id.String()}, gitproc.Opts{GitDir: r.path})
        if gerr != nil {
            return gerr
        }
        return nil
    }
    gerr, _, _ := gitproc.Run([]string{"symbolic-ref", "-m", reason, "HEAD", target}, gitproc.Opts{GitDir: r.path})
    if gerr != nil {
        return gerr
    }
    return nil
}

// ---- merge_base / walk_first_parent ----

// MergeBase returns the best common ancestor of a and b, or ok=false if
// none exists (e.g. unrelated histories).
func (r *Repo) MergeBase(a, b oid.Oid) (base oid.Oid, ok bool, err error) {
    g, gerr := r.g.MergeBase(a.AsGitOid(), b.AsGitOid())
    if gerr != nil {
        return oid.Oid{}, false, nil // git2go returns an error for "no common ancestor"
    }
    return oid.FromGitOid(g), true, nil
}

// CommitInfo is the subset of commit metadata the Diff Engine needs to
// render a line diagram / divergence summary.
type CommitInfo struct {
    Oid       oid.Oid
    Message   string
    Parent    oid.Oid
    HasParent bool
}

// WalkFirstParent walks the first-parent ancestry of from, stopping once
// until is reached (inclusive) or a root commit is hit. Bounded so a
// corrupt/cyclical history cannot hang the diff engine.
func (r *Repo) WalkFirstParent(from oid.Oid, until oid.Oid) ([]CommitInfo, error) {
    const maxWalk = 100000
    var out []CommitInfo
    cur := from
    for i := 0; i < maxWalk; i++ {
        c, err := r.g.LookupCommit(cur.AsGitOid())
        if err != nil {
            return out, fmt.Errorf("vcsgit: walk: lookup %s: %w", cur, err)
        }
        info := CommitInfo{Oid: cur, Message: stringsClone(c.Message())}
        if c.ParentCount() > 0 {
            info.Parent = oid.FromGitOid(c.ParentId(0))
            info.HasParent = true
        }
        runtime.KeepAlive(c)
        out = append(out, info)
        if cur == until {
            break
        }
        if !info.HasParent {
            break
        }
        cur = info.Parent
    }
    return out, nil
}

// CountFirstParent counts commits strictly between base (exclusive) and
// tip (inclusive), walking first-parent only. Used by Diff Engine's
// compare().
func (r *Repo) CountFirstParent(base, tip oid.Oid) (int, error) {
    if base == tip {
        return 0, nil
    }
    commits, err := r.WalkFirstParent(tip, base)
    if err != nil {
        return 0, err
    }
    n := len(commits)
    if n > 0 && commits[n-1].Oid == base {
        n--
    }
    return n, nil
}

// ---- write_tree_from_index / commit_tree ----

// WriteTreeFromIndex runs `write-tree` against the index file at
// indexPath (or the repository's live index if indexPath == "").
func (r *Repo) WriteTreeFromIndex(indexPath string) (oid.Oid, error) {
    env := map[string]string{}
    if indexPath != "" {
        env["GIT_INDEX_FILE"] = indexPath
    }
    gerr, stdout, _ := gitproc.Run([]string{"write-tree"}, gitproc.Opts{GitDir: r.path, Env: env})
    if gerr != nil {
        return oid.Oid{}, gerr
    }
    return oid.Parse(stdout)
}

// CommitTree creates a commit object (no ref is updated).
func (r *Repo) CommitTree(tree oid.Oid, parents []oid.Oid, message string, author, committer Identity) (oid.Oid, error) {
    argv := []string{"commit-tree", tree.String()}
    for _, p := range parents {
        argv = append(argv, "-p", p.String())
    }
    env := map[string]string{}
    setIdentityEnv(env, "AUTHOR", author)
    setIdentityEnv(env, "COMMITTER", committer)

    gerr, stdout, _ := gitproc.Run(argv, gitproc.Opts{GitDir: r.path, Stdin: message, Env: env})
    if gerr != nil {
        return oid.Oid{}, gerr
    }
    return oid.Parse(stdout)
}

func setIdentityEnv(env map[string]string, role string, id Identity) {
    if id.Name != "" {
        env["GIT_"+role+"_NAME"] = id.Name
    }
    if id.Email != "" {
        env["GIT_"+role+"_EMAIL"] = id.Email
    }
    if id.Date != "" {
        env["GIT_"+role+"_DATE"] = id.Date
    }
}

// EmptyTree returns the oid of the canonical empty tree.
func (r *Repo) EmptyTree() (oid.Oid, error) {
    gerr, stdout, _ := gitproc.Run([]string{"mktree"}, gitproc.Opts{GitDir: r.path, Stdin: ""})
    if gerr != nil {
        return oid.Oid{}, gerr
    }
    return oid.Parse(stdout)
}

// ---- restore_worktree / restore_index ----

// RestoreWorktree force-overwrites tracked files to match toTree, leaving
// untracked files alone. Implemented the way git-backup.go updates its
// own working copy after a pull (cmd_pull_, the `git diff --binary | git
// apply --binary` dance): diffing two trees and applying the patch
// touches exactly the paths that differ between them.
func (r *Repo) RestoreWorktree(fromTree, toTree oid.Oid) error {
    if r.IsBare() {
        return nil
    }
    gerr, diff, _ := gitproc.Run([]string{"diff", "--binary", fromTree.String(), toTree.String()}, gitproc.Opts{GitDir: r.path, Dir: r.worktree, Raw: true})
    if gerr != nil {
        return gerr
    }
    if strings.TrimSpace(diff) == "" {
        return nil
    }
    gerr, _, _ = gitproc.Run([]string{"apply", "--binary", "--whitespace=nowarn"}, gitproc.Opts{GitDir: r.path, Dir: r.worktree, Stdin: diff, Raw: true})
    if gerr != nil {
        return gerr
    }
    return nil
}

// RestoreIndex replaces the live index wholesale with fromTree's content.
func (r *Repo) RestoreIndex(fromTree oid.Oid) error {
    gerr, _, _ := gitproc.Run([]string{"read-tree", "--reset", fromTree.String()}, gitproc.Opts{GitDir: r.path})
    if gerr != nil {
        return gerr
    }
    return nil
}

// ---- index capture helpers (used by internal/snapshot) ----

// LiveIndexPath is the path of the repository's main index file.
func (r *Repo) LiveIndexPath() string {
    return filepath.Join(r.path, "index")
}

// LiveIndexLockPath is where git leaves index.lock while a transaction is
// in flight; if present it reflects the committing transaction's intent
// more accurately than the main index file does.
func (r *Repo) LiveIndexLockPath() string {
    return filepath.Join(r.path, "index.lock")
}

// CopyIndexTo copies the most-authoritative current index (preferring a
// live index.lock over the main index) to dst.
func (r *Repo) CopyIndexTo(dst string) error {
    src := r.LiveIndexPath()
    if st, err := os.Stat(r.LiveIndexLockPath()); err == nil && !st.IsDir() {
        src = r.LiveIndexLockPath()
    }
    data, err := os.ReadFile(src)
    if os.IsNotExist(err) {
        // brand new repository: no index yet == empty index, write-tree
        // against a nonexistent file naturally yields the empty tree.
        return nil
    }
    if err != nil {
        return fmt.Errorf("vcsgit: copy index: %w", err)
    }
    return os.WriteFile(dst, data, 0644)
}

// StageTrackedChanges is the `add -u` equivalent: stage every
// already-tracked path's current on-disk content into the index at
// indexPath.
func (r *Repo) StageTrackedChanges(indexPath string) error {
    if r.IsBare() {
        return nil
    }
    gerr, _, _ := gitproc.Run([]string{"add", "-u"}, gitproc.Opts{GitDir: r.path, Dir: r.worktree, Env: map[string]string{"GIT_INDEX_FILE": indexPath}})
    if gerr != nil {
        return gerr
    }
    return nil
}

// ---- in_rebase ----

// InRebase reports whether a rebase is currently in progress.
func (r *Repo) InRebase() bool {
    for _, name := range []string{"rebase-merge", "rebase-apply"} {
        if st, err := os.Stat(filepath.Join(r.path, name)); err == nil && st.IsDir() {
            return true
        }
    }
    return false
}

// ---- raw object read/write, following gitobjects.go's pattern ----

// ReadObject reads a raw object's bytes by oid.
func (r *Repo) ReadObject(id oid.Oid) ([]byte, git2go.ObjectType, error) {
    odb, err := r.g.Odb()
    if err != nil {
        return nil, git2go.ObjectInvalid, fmt.Errorf("vcsgit: odb: %w", err)
    }
    obj, err := odb.Read(id.AsGitOid())
    if err != nil {
        return nil, git2go.ObjectInvalid, err
    }
    data := bytesClone(obj.Data())
    t := obj.Type()
    runtime.KeepAlive(obj)
    return data, t, nil
}

// WriteObject writes a raw object and returns its oid.
func (r *Repo) WriteObject(content []byte, t git2go.ObjectType) (oid.Oid, error) {
    odb, err := r.g.Odb()
    if err != nil {
        return oid.Oid{}, fmt.Errorf("vcsgit: odb: %w", err)
    }
    g, err := odb.Write(content, t)
    if err != nil {
        return oid.Oid{}, err
    }
    return oid.FromGitOid(g), nil
}

// CommitMessage reads just the message of a commit object (used by the
// Snapshot Ledger to load the serialized Snapshot back out of a ledger
// entry without touching its tree/parents).
func (r *Repo) CommitMessage(id oid.Oid) (string, error) {
    c, err := r.g.LookupCommit(id.AsGitOid())
    if err != nil {
        return "", err
    }
    msg := stringsClone(c.Message())
    runtime.KeepAlive(c)
    return msg, nil
}

// CommitTreeOid returns the tree a commit object points to, used by the
// Snapshot Ledger's Load to recover index_tree/workdir_tree from a ledger
// entry's index_commit/workdir_commit (the Snapshot Codec does not
// persist trees directly, see internal/snapshot.Serialize).
func (r *Repo) CommitTreeOid(id oid.Oid) (oid.Oid, error) {
    c, err := r.g.LookupCommit(id.AsGitOid())
    if err != nil {
        return oid.Oid{}, err
    }
    t := oid.FromGitOid(c.TreeId())
    runtime.KeepAlive(c)
    return t, nil
}

// CommitParents returns a commit's parent oids in order.
func (r *Repo) CommitParents(id oid.Oid) ([]oid.Oid, error) {
    c, err := r.g.LookupCommit(id.AsGitOid())
    if err != nil {
        return nil, err
    }
    n := c.ParentCount()
    out := make([]oid.Oid, n)
    for i := uint(0); i < n; i++ {
        out[i] = oid.FromGitOid(c.ParentId(i))
    }
    runtime.KeepAlive(c)
    return out, nil
}

// ---- reflog ----

// ReflogEntry mirrors the handful of git2go.ReflogEntry fields the
// Snapshot Ledger needs.
type ReflogEntry struct {
    Old, New  oid.Oid
    Message   string
    Timestamp time.Time
}

// Reflog reads a reference's reflog, newest entry first (as git2go hands
// it back).
func (r *Repo) Reflog(refname string) ([]ReflogEntry, error) {
    rl, err := r.g.ReflogRead(refname)
    if err != nil {
        return nil, err
    }
    n := rl.EntryCount()
    out := make([]ReflogEntry, 0, n)
    for i := 0; i < n; i++ {
        e := rl.EntryByIndex(i)
        if e == nil {
            continue
        }
        entry := ReflogEntry{
            Old:     oid.FromGitOid(e.OldId()),
            New:     oid.FromGitOid(e.NewId()),
            Message: stringsClone(e.Message()),
        }
        if committer := e.Committer(); committer != nil {
            entry.Timestamp = committer.When
        }
        out = append(out, entry)
    }
    return out, nil
}

// EnsureReflog creates an empty reflog file for refname if one does not
// already exist. git does not always create reflogs for non-standard
// references by itself.
func (r *Repo) EnsureReflog(refname string) error {
    path := filepath.Join(r.path, "logs", refname)
    if _, err := os.Stat(path); err == nil {
        return nil
    }
    if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
        return err
    }
    f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0666)
    if err != nil && !os.IsExist(err) {
        return err
    }
    if f != nil {
        f.Close()
    }
    return nil
}

// RefExists reports whether name currently resolves.
func (r *Repo) RefExists(name string) bool {
    ref, err := r.g.References.Lookup(name)
    if err != nil {
        return false
    }
    runtime.KeepAlive(ref)
    return true
}

// ReadRef reads the current oid a ref (by full name) points to.
func (r *Repo) ReadRef(name string) (oid.Oid, bool) {
    ref, err := r.g.References.Lookup(name)
    if err != nil {
        return oid.Oid{}, false
    }
    defer runtime.KeepAlive(ref)
    if ref.Type() != git2go.ReferenceOid {
        return oid.Oid{}, false
    }
    return oid.FromGitOid(ref.Target()), true
}

// clone helpers: copy memory git2go hands back before the owning
// object can be garbage collected out from under it.

func stringsClone(s string) string {
    return strings.Clone(s)
}

func bytesClone(b []byte) []byte {
    out := make([]byte, len(b))
    copy(out, b)
    return out
}
