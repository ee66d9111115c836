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

package restore_test

import (
    "fmt"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "lab.nexedi.com/kirr/git-undo/internal/ledger"
    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/restore"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
)

// fakeRepo backs both the Ledger's Repo interface and restore.Repo, so
// Restore's own ledger.Save call and its ref/HEAD writes are observable
// from one place.
type fakeRepo struct {
    nextCommit int
    commits    map[oid.Oid]fakeCommit
    refs       map[string]oid.Oid
    reflogs    map[string][]vcsgit.ReflogEntry

    worktreeCalls [][2]oid.Oid
    indexCalls    []oid.Oid
    deletedRefs   []string
    head          string
    failWorktree  bool
}

type fakeCommit struct {
    message string
    parents []oid.Oid
    tree    oid.Oid
}

func newFakeRepo() *fakeRepo {
    return &fakeRepo{
        commits: map[oid.Oid]fakeCommit{},
        refs:    map[string]oid.Oid{},
        reflogs: map[string][]vcsgit.ReflogEntry{},
    }
}

func (f *fakeRepo) synthOid() oid.Oid {
    f.nextCommit++
    hex := fmt.Sprintf("%040x", f.nextCommit)
    id, _ := oid.Parse(hex)
    return id
}

func (f *fakeRepo) RefExists(name string) bool       { _, ok := f.refs[name]; return ok }
func (f *fakeRepo) ReadRef(name string) (oid.Oid, bool) { id, ok := f.refs[name]; return id, ok }

func (f *fakeRepo) CommitMessage(id oid.Oid) (string, error) {
    c, ok := f.commits[id]
    if !ok {
        return "", fmt.Errorf("fakeRepo: no such commit %s", id)
    }
    return c.message, nil
}

func (f *fakeRepo) CommitParents(id oid.Oid) ([]oid.Oid, error) { return f.commits[id].parents, nil }
func (f *fakeRepo) CommitTreeOid(id oid.Oid) (oid.Oid, error)   { return f.commits[id].tree, nil }

func (f *fakeRepo) CommitTree(tree oid.Oid, parents []oid.Oid, message string, author, committer vcsgit.Identity) (oid.Oid, error) {
    id := f.synthOid()
    f.commits[id] = fakeCommit{message: message, parents: append([]oid.Oid{}, parents...), tree: tree}
    return id, nil
}

func (f *fakeRepo) WriteRefForce(name string, target oid.Oid, reason string) error {
    old := f.refs[name]
    f.refs[name] = target
    f.reflogs[name] = append([]vcsgit.ReflogEntry{{Old: old, New: target, Message: reason}}, f.reflogs[name]...)
    return nil
}

func (f *fakeRepo) EnsureReflog(name string) error { return nil }
func (f *fakeRepo) Reflog(name string) ([]vcsgit.ReflogEntry, error) { return f.reflogs[name], nil }

func (f *fakeRepo) RestoreWorktree(fromTree, toTree oid.Oid) error {
    f.worktreeCalls = append(f.worktreeCalls, [2]oid.Oid{fromTree, toTree})
    if f.failWorktree {
        return fmt.Errorf("fakeRepo: simulated dirty conflict")
    }
    return nil
}

func (f *fakeRepo) RestoreIndex(fromTree oid.Oid) error {
    f.indexCalls = append(f.indexCalls, fromTree)
    return nil
}

func (f *fakeRepo) DeleteRef(name string) error {
    f.deletedRefs = append(f.deletedRefs, name)
    delete(f.refs, name)
    return nil
}

func (f *fakeRepo) SetHead(target, reason string) error {
    f.head = target
    return nil
}

func (f *fakeRepo) ListRefs() ([]vcsgit.Ref, error) {
    var out []vcsgit.Ref
    for name, id := range f.refs {
        out = append(out, vcsgit.Ref{Name: name, Oid: id})
    }
    return out, nil
}

var identity = vcsgit.Identity{Name: "git-undo", Email: "git-undo@localhost", Date: "@0 +0000"}

func TestRestoreNoOpWhenAlreadyAtTarget(t *testing.T) {
    repo := newFakeRepo()
    led := ledger.New(repo, "refs/git-undo", identity, nil)

    current := snapshot.Snapshot{Head: "refs/heads/main"}
    captureFn := func() (snapshot.Snapshot, error) { return current, nil }

    res, err := restore.Restore(repo, captureFn, led, current, nil)
    require.NoError(t, err)
    assert.True(t, res.NoOp)
    assert.Empty(t, repo.worktreeCalls, "a no-op restore must not touch the working tree")
}

func TestRestoreWritesRefsAndHead(t *testing.T) {
    repo := newFakeRepo()
    led := ledger.New(repo, "refs/git-undo", identity, nil)

    mainOld := repo.synthOid()
    mainNew := repo.synthOid()

    current := snapshot.Snapshot{
        Head: "refs/heads/main",
        Refs: []snapshot.RefEntry{{Name: "refs/heads/main", Oid: mainOld}},
    }
    target := snapshot.Snapshot{
        Head:          "refs/heads/main",
        Refs:          []snapshot.RefEntry{{Name: "refs/heads/main", Oid: mainNew}},
        WorkdirCommit: repo.synthOid(),
        IndexCommit:   repo.synthOid(),
    }
    captureFn := func() (snapshot.Snapshot, error) { return current, nil }

    res, err := restore.Restore(repo, captureFn, led, target, nil)
    require.NoError(t, err)
    assert.False(t, res.NoOp)
    assert.Equal(t, mainNew, repo.refs["refs/heads/main"])
    assert.Equal(t, "refs/heads/main", repo.head)
    assert.Len(t, repo.worktreeCalls, 1)

    // current state must have been saved to the ledger first, so the
    // restore itself is reversible.
    assert.False(t, res.Before.IsZero())
}

func TestRestoreDeletesRefsNotInTarget(t *testing.T) {
    repo := newFakeRepo()
    led := ledger.New(repo, "refs/git-undo", identity, nil)

    featureOid := repo.synthOid()
    repo.refs["refs/heads/feature"] = featureOid

    current := snapshot.Snapshot{
        Head: "refs/heads/main",
        Refs: []snapshot.RefEntry{{Name: "refs/heads/feature", Oid: featureOid}},
    }
    target := snapshot.Snapshot{Head: "refs/heads/main"}
    captureFn := func() (snapshot.Snapshot, error) { return current, nil }

    _, err := restore.Restore(repo, captureFn, led, target, nil)
    require.NoError(t, err)
    assert.Contains(t, repo.deletedRefs, "refs/heads/feature")
}

func TestRestoreAbortsBeforeRefWritesOnWorktreeFailure(t *testing.T) {
    repo := newFakeRepo()
    repo.failWorktree = true
    led := ledger.New(repo, "refs/git-undo", identity, nil)

    mainOld := repo.synthOid()
    mainNew := repo.synthOid()
    repo.refs["refs/heads/main"] = mainOld
    current := snapshot.Snapshot{
        Head: "refs/heads/main",
        Refs: []snapshot.RefEntry{{Name: "refs/heads/main", Oid: mainOld}},
    }
    target := snapshot.Snapshot{
        Head: "refs/heads/main",
        Refs: []snapshot.RefEntry{{Name: "refs/heads/main", Oid: mainNew}},
    }
    captureFn := func() (snapshot.Snapshot, error) { return current, nil }

    _, err := restore.Restore(repo, captureFn, led, target, nil)
    require.Error(t, err)
    assert.Equal(t, mainOld, repo.refs["refs/heads/main"], "ref must not move when the working-tree restore fails")
    assert.Empty(t, repo.head)
}
