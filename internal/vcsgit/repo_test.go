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

package vcsgit_test

import (
    "os"
    "os/exec"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
)

// xgit runs a real `git` subprocess against dir, following git-backup's own
// xgit helper: a test fixture has no business going through the adapter
// under test to set up its own starting state.
func xgit(t *testing.T, dir string, argv ...string) string {
    t.Helper()
    cmd := exec.Command("git", argv...)
    cmd.Dir = dir
    cmd.Env = append(os.Environ(),
        "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
        "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
        "GIT_AUTHOR_DATE=2000-01-01T00:00:00",
        "GIT_COMMITTER_DATE=2000-01-01T00:00:00",
    )
    out, err := cmd.CombinedOutput()
    require.NoError(t, err, "git %v: %s", argv, out)
    return string(out)
}

// newTestRepo creates a fresh non-bare repository with one commit on main
// and returns both the raw worktree path and an opened adapter over it.
func newTestRepo(t *testing.T) (dir string, repo *vcsgit.Repo) {
    t.Helper()
    dir = t.TempDir()
    xgit(t, dir, "init", "-q", "-b", "main")
    require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0644))
    xgit(t, dir, "add", "a.txt")
    xgit(t, dir, "commit", "-q", "-m", "initial")

    repo, err := vcsgit.Open(dir)
    require.NoError(t, err)
    return dir, repo
}

func TestOpenNonBare(t *testing.T) {
    dir, repo := newTestRepo(t)
    assert.False(t, repo.IsBare())
    assert.Equal(t, filepath.Join(dir, ".git"), repo.GitDir())
}

func TestListRefsAndReadHead(t *testing.T) {
    dir, repo := newTestRepo(t)
    xgit(t, dir, "tag", "v1")

    refs, err := repo.ListRefs()
    require.NoError(t, err)
    var names []string
    for _, r := range refs {
        names = append(names, r.Name)
        assert.False(t, r.Oid.IsZero())
    }
    assert.Contains(t, names, "refs/heads/main")
    assert.Contains(t, names, "refs/tags/v1")

    head, err := repo.ReadHead()
    require.NoError(t, err)
    assert.Equal(t, "refs/heads/main", head.RefName)
    assert.False(t, head.Absent)
}

func TestReadHeadDetached(t *testing.T) {
    dir, repo := newTestRepo(t)
    xgit(t, dir, "checkout", "-q", "--detach", "HEAD")

    repo, err := vcsgit.Open(dir)
    require.NoError(t, err)
    head, err := repo.ReadHead()
    require.NoError(t, err)
    assert.False(t, head.Detached.IsZero())
    assert.Equal(t, "", head.RefName)
}

func TestWriteRefForceAndDeleteRef(t *testing.T) {
    _, repo := newTestRepo(t)
    head, err := repo.ReadHead()
    require.NoError(t, err)
    tip, ok := repo.ReadRef(head.RefName)
    require.True(t, ok)

    require.NoError(t, repo.WriteRefForce("refs/heads/feature", tip, "test"))
    got, ok := repo.ReadRef("refs/heads/feature")
    require.True(t, ok)
    assert.Equal(t, tip, got)

    require.NoError(t, repo.DeleteRef("refs/heads/feature"))
    _, ok = repo.ReadRef("refs/heads/feature")
    assert.False(t, ok)

    // deleting an already-absent ref must not error
    require.NoError(t, repo.DeleteRef("refs/heads/feature"))
}

func TestSetHeadSymbolicAndDetached(t *testing.T) {
    dir, repo := newTestRepo(t)
    xgit(t, dir, "branch", "other")

    require.NoError(t, repo.SetHead("refs/heads/other", "test"))
    head, err := repo.ReadHead()
    require.NoError(t, err)
    assert.Equal(t, "refs/heads/other", head.RefName)

    tip, ok := repo.ReadRef("refs/heads/other")
    require.True(t, ok)
    require.NoError(t, repo.SetHead(tip.String(), "test"))
    head, err = repo.ReadHead()
    require.NoError(t, err)
    assert.Equal(t, tip, head.Detached)
}

func TestCommitTreeAndWriteTreeFromIndex(t *testing.T) {
    _, repo := newTestRepo(t)
    tree, err := repo.WriteTreeFromIndex("")
    require.NoError(t, err)
    assert.False(t, tree.IsZero())

    id := vcsgit.Identity{Name: "git-undo", Email: "git-undo@localhost", Date: "@0 +0000"}
    commit, err := repo.CommitTree(tree, nil, "root", id, id)
    require.NoError(t, err)
    assert.False(t, commit.IsZero())

    msg, err := repo.CommitMessage(commit)
    require.NoError(t, err)
    assert.Equal(t, "root", msg)

    gotTree, err := repo.CommitTreeOid(commit)
    require.NoError(t, err)
    assert.Equal(t, tree, gotTree)
}

func TestRestoreWorktreeAndIndex(t *testing.T) {
    dir, repo := newTestRepo(t)
    before, err := repo.WriteTreeFromIndex("")
    require.NoError(t, err)

    require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed\n"), 0644))
    require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new\n"), 0644))
    xgit(t, dir, "add", "-A")
    after, err := repo.WriteTreeFromIndex("")
    require.NoError(t, err)
    assert.NotEqual(t, before, after)

    require.NoError(t, repo.RestoreIndex(before))
    require.NoError(t, repo.RestoreWorktree(after, before))

    data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
    require.NoError(t, err)
    assert.Equal(t, "hello\n", string(data))
    _, err = os.Stat(filepath.Join(dir, "b.txt"))
    assert.True(t, os.IsNotExist(err), "b.txt introduced only in the newer tree must be removed by restore")
}

func TestMergeBaseAndWalkFirstParent(t *testing.T) {
    dir, repo := newTestRepo(t)
    base, ok := repo.ReadRef("refs/heads/main")
    require.True(t, ok)

    require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("second\n"), 0644))
    xgit(t, dir, "commit", "-q", "-am", "second")
    tip, ok := repo.ReadRef("refs/heads/main")
    require.True(t, ok)

    xgit(t, dir, "checkout", "-q", "-b", "side", base.String())
    require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("side\n"), 0644))
    xgit(t, dir, "add", "c.txt")
    xgit(t, dir, "commit", "-q", "-m", "side")
    side, ok := repo.ReadRef("refs/heads/side")
    require.True(t, ok)

    mb, ok, err := repo.MergeBase(tip, side)
    require.NoError(t, err)
    require.True(t, ok)
    assert.Equal(t, base, mb)

    history, err := repo.WalkFirstParent(tip, base)
    require.NoError(t, err)
    require.Len(t, history, 2)
    assert.Equal(t, tip, history[0].Oid)
    assert.Equal(t, base, history[1].Oid)

    n, err := repo.CountFirstParent(base, tip)
    require.NoError(t, err)
    assert.Equal(t, 1, n)
}

func TestMergeBaseUnrelatedHistories(t *testing.T) {
    dir, repo := newTestRepo(t)
    a, ok := repo.ReadRef("refs/heads/main")
    require.True(t, ok)

    xgit(t, dir, "checkout", "-q", "--orphan", "unrelated")
    xgit(t, dir, "rm", "-rf", "-q", ".")
    require.NoError(t, os.WriteFile(filepath.Join(dir, "d.txt"), []byte("d\n"), 0644))
    xgit(t, dir, "add", "d.txt")
    xgit(t, dir, "commit", "-q", "-m", "unrelated root")
    b, ok := repo.ReadRef("refs/heads/unrelated")
    require.True(t, ok)

    _, ok, err := repo.MergeBase(a, b)
    require.NoError(t, err)
    assert.False(t, ok)
}

func TestReflogAndEnsureReflog(t *testing.T) {
    _, repo := newTestRepo(t)
    tip, ok := repo.ReadRef("refs/heads/main")
    require.True(t, ok)

    require.NoError(t, repo.EnsureReflog("refs/git-undo"))
    require.NoError(t, repo.WriteRefForce("refs/git-undo", tip, "snapshot"))

    entries, err := repo.Reflog("refs/git-undo")
    require.NoError(t, err)
    require.Len(t, entries, 1)
    assert.Equal(t, tip, entries[0].New)
    assert.Equal(t, "snapshot", entries[0].Message)

    // EnsureReflog must be idempotent and must not clobber an existing log
    require.NoError(t, repo.EnsureReflog("refs/git-undo"))
    entries, err = repo.Reflog("refs/git-undo")
    require.NoError(t, err)
    assert.Len(t, entries, 1)
}

func TestInRebase(t *testing.T) {
    dir, repo := newTestRepo(t)
    assert.False(t, repo.InRebase())

    require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "rebase-merge"), 0777))
    assert.True(t, repo.InRebase())
}
