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

// Command git-undo is the CLI entry point: record, restore, undo,
// history, init. Structured the way git-backup.go lays out
// main()/commands/countFlag verbosity.
package main

import (
    "flag"
    "fmt"
    "os"
    "os/exec"
    "path/filepath"
    "runtime/debug"

    "github.com/dustin/go-humanize"
    "github.com/sirupsen/logrus"

    "lab.nexedi.com/kirr/git-undo/internal/config"
    "lab.nexedi.com/kirr/git-undo/internal/hooks"
    "lab.nexedi.com/kirr/git-undo/internal/ledger"
    "lab.nexedi.com/kirr/git-undo/internal/lock"
    "lab.nexedi.com/kirr/git-undo/internal/oid"
    "lab.nexedi.com/kirr/git-undo/internal/restore"
    "lab.nexedi.com/kirr/git-undo/internal/snapshot"
    "lab.nexedi.com/kirr/git-undo/internal/vcsgit"
    "lab.nexedi.com/kirr/git-undo/internal/xerr"
)

// verbose is adjusted by -v/-q, teacher's countFlag pattern (misc.go).
var verbose countFlag

var log = logrus.New()

func setupLogging() *logrus.Entry {
    switch {
    case verbose >= 2:
        log.SetLevel(logrus.TraceLevel)
    case verbose == 1:
        log.SetLevel(logrus.DebugLevel)
    case verbose == 0:
        log.SetLevel(logrus.InfoLevel)
    default:
        log.SetLevel(logrus.ErrorLevel)
    }
    return logrus.NewEntry(log)
}

func openAll(logEntry *logrus.Entry) (*vcsgit.Repo, *config.Config, *ledger.Ledger, error) {
    repo, err := vcsgit.Open(".")
    if err != nil {
        return nil, nil, nil, err
    }
    cfg, err := config.Load(repo.GitDir())
    if err != nil {
        return nil, nil, nil, err
    }
    identity := vcsgit.Identity{Name: cfg.Identity.Name, Email: cfg.Identity.Email, Date: "@0 +0000"}
    led := ledger.New(repo, cfg.LedgerRef, identity, logEntry)
    return repo, &cfg, led, nil
}

func captureFn(repo *vcsgit.Repo, ledgerRef string, logEntry *logrus.Entry) func() (snapshot.Snapshot, error) {
    return func() (snapshot.Snapshot, error) {
        return snapshot.Capture(repo, ledgerRef, logEntry)
    }
}

// cmdRecord captures the current repository state and appends it to the
// ledger. Every failure is swallowed into a log line and the process
// still exits 0: this command runs from git hooks, and a hook that exits
// non-zero can abort the user's actual git operation.
func cmdRecord(argv []string) {
    logEntry := setupLogging()

    repo, err := vcsgit.Open(".")
    if err != nil {
        logEntry.WithError(err).Debug("record: not a git repository, skipping")
        return
    }
    cfg, err := config.Load(repo.GitDir())
    if err != nil {
        logEntry.WithError(err).Debug("record: failed to load config, skipping")
        return
    }

    guard := lock.New(repo.GitDir() + "/git-undo.lock")
    held, err := guard.TryAcquire()
    if err != nil {
        logEntry.WithError(err).Debug("record: lock error, skipping")
        return
    }
    if !held {
        logEntry.Debug("record: lock contended, another invocation is recording")
        return
    }
    defer guard.Release()

    snap, err := snapshot.Capture(repo, cfg.LedgerRef, logEntry)
    if err != nil {
        if err == snapshot.ErrRebaseInProgress {
            logEntry.Debug("record: rebase in progress, skipping")
        } else {
            logEntry.WithError(err).Warn("record: capture failed")
        }
        return
    }

    identity := vcsgit.Identity{Name: cfg.Identity.Name, Email: cfg.Identity.Email, Date: "@0 +0000"}
    led := ledger.New(repo, cfg.LedgerRef, identity, logEntry)
    if _, saved, err := led.Save(snap); err != nil {
        logEntry.WithError(err).Warn("record: save failed")
    } else if saved {
        logEntry.Debug("record: snapshot saved")
    } else {
        logEntry.Debug("record: snapshot identical to previous entry, skipped")
    }
}

// waitForRecordToSettle gives a concurrently-running "record" (fired by a
// hook racing this command) up to cfg.LockTimeout to finish, so restore/
// undo read a settled ledger tip instead of one about to be superseded.
// Timing out is not fatal: it just means proceeding against whatever
// state is currently on disk, same as if the guard did not exist.
func waitForRecordToSettle(repo *vcsgit.Repo, cfg *config.Config, logEntry *logrus.Entry) {
    guard := lock.New(repo.GitDir() + "/git-undo.lock")
    ok, err := guard.Acquire(cfg.LockTimeout.Duration)
    if err != nil {
        logEntry.WithError(err).Debug("lock: error while waiting for a concurrent record to settle")
        return
    }
    if !ok {
        logEntry.Debug("lock: timed out waiting for a concurrent record, proceeding anyway")
        return
    }
    guard.Release()
}

// cmdRestore implements "restore <snapshot_id>"; errors propagate via
// xerr so main's errcatch reports them and exits non-zero.
func cmdRestore(argv []string) {
    logEntry := setupLogging()
    if len(argv) != 1 {
        fmt.Fprintln(os.Stderr, "usage: git-undo restore <snapshot_id>")
        os.Exit(1)
    }
    id, err := oid.Parse(argv[0])
    xerr.Raiseif(err)

    repo, cfg, led, err := openAll(logEntry)
    xerr.Raiseif(err)
    waitForRecordToSettle(repo, cfg, logEntry)

    target, err := led.Load(id)
    xerr.Raiseif(err)

    res, err := restore.Restore(repo, captureFn(repo, cfg.LedgerRef, logEntry), led, target, logEntry)
    xerr.Raiseif(err)

    if res.NoOp {
        logEntry.Info("restore: already at that state")
        return
    }
    for _, e := range res.Errors {
        logEntry.WithError(e).Warn("restore: integrity error")
    }
}

// cmdUndo implements "undo".
func cmdUndo(argv []string) {
    logEntry := setupLogging()

    repo, cfg, led, err := openAll(logEntry)
    xerr.Raiseif(err)
    waitForRecordToSettle(repo, cfg, logEntry)

    res, err := restore.Undo(repo, captureFn(repo, cfg.LedgerRef, logEntry), led, logEntry)
    xerr.Raiseif(err)

    if res.NoOp {
        logEntry.Info("nothing to undo")
    }
}

// cmdHistory lists the ledger newest-first, one line per entry, as a
// plain-text feed an interactive browser could page through.
func cmdHistory(argv []string) {
    logEntry := setupLogging()

    _, _, led, err := openAll(logEntry)
    xerr.Raiseif(err)

    entries, err := led.LoadAll()
    xerr.Raiseif(err)

    for _, e := range entries {
        if e.Err != nil {
            continue
        }
        age := "unknown time"
        if !e.Timestamp.IsZero() {
            age = humanize.Time(e.Timestamp)
        }
        msg := e.Snapshot.Message
        if msg == "" {
            msg = "(no message)"
        }
        fmt.Printf("%s  %-16s  %s\n", e.Snapshot.Id, age, msg)
    }
}

// cmdInit installs the hook stubs into the current repository.
func cmdInit(argv []string) {
    logEntry := setupLogging()
    repo, err := vcsgit.Open(".")
    xerr.Raiseif(err)

    engine, err := exec.LookPath(os.Args[0])
    if err != nil {
        engine = os.Args[0]
    }
    engine, err = filepath.Abs(engine)
    xerr.Raiseif(err)

    xerr.Raiseif(hooks.Install(repo.GitDir(), engine))
    logEntry.Info("init: hooks installed")
}

var commands = map[string]func([]string){
    "record":  cmdRecord,
    "restore": cmdRestore,
    "undo":    cmdUndo,
    "history": cmdHistory,
    "init":    cmdInit,
}

func usage() {
    fmt.Fprint(os.Stderr,
`git-undo [options] <command>

    record            capture and save the current state (used by hooks)
    restore <id>      restore the named ledger snapshot
    undo              restore the most recent differing snapshot
    history           list saved snapshots, newest first
    init              install hooks into the current repository

  common options:

    -h --help       this help text.
    -v              increase verbosity.
    -q              decrease verbosity.
`)
}

func main() {
    flag.Usage = usage
    quiet := countFlag(0)
    flag.Var(&verbose, "v", "verbosity level")
    flag.Var(&quiet, "q", "decrease verbosity")
    flag.Parse()
    verbose -= quiet
    argv := flag.Args()

    if len(argv) == 0 {
        usage()
        os.Exit(1)
    }

    cmd := commands[argv[0]]
    if cmd == nil {
        fmt.Fprintf(os.Stderr, "E: unknown command %q\n", argv[0])
        os.Exit(1)
    }

    here := xerr.FuncName()
    defer xerr.Errcatch(func(e *xerr.Error) {
        e = xerr.AddCallingContext(here, e)
        fmt.Fprintln(os.Stderr, e)
        if verbose > 2 {
            fmt.Fprint(os.Stderr, "\n")
            debug.PrintStack()
        }
        os.Exit(1)
    })

    cmd(argv[1:])
}
