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

// Package gitproc runs the `git` subprocess for the operations git2go does
// not cleanly expose, generalizing git-backup's git.go (_git/ggit/xgit
// family) for use by the vcsgit adapter.
//
// Every invocation goes through Run/Must, which always disables hooks
// (-c core.hooksPath=/dev/null) so that an adapter operation can never
// recursively trigger the very hooks that call back into this program.
package gitproc

import (
    "bytes"
    "os/exec"
    "strings"

    "lab.nexedi.com/kirr/git-undo/internal/xerr"
)

// Redirect controls how a spawned process's stdout/stderr is handled.
type Redirect int

const (
    Pipe Redirect = iota // capture to a buffer (default)
    Inherit                // pass through to our own stdout/stderr
)

// Opts configures one git invocation.
type Opts struct {
    Dir    string            // working directory ("" = inherit)
    GitDir string            // --git-dir, if repo is bare or cwd != gitdir
    Stdin  string
    Stdout Redirect
    Stderr Redirect
    Raw    bool              // !Raw -> stdout/stderr are whitespace-trimmed
    Env    map[string]string // additional environment (GIT_AUTHOR_* etc)
}

// Error is returned when git ran but exited non-zero.
type Error struct {
    Argv   []string
    Stdin  string
    Stdout string
    Stderr string
    *exec.ExitError
}

func (e *Error) Error() string {
    msg := "git " + strings.Join(e.Argv, " ")
    if e.Stdin == "" {
        msg += " </dev/null"
    } else {
        msg += " <<EOF\n" + e.Stdin + "\nEOF"
    }
    if e.Stderr != "" {
        msg += "\n" + e.Stderr
    } else {
        msg += "\n(failed)"
    }
    return msg
}

// Run runs `git argv...` and returns (err, stdout, stderr). err is nil on
// success and *Error if git ran and exited non-zero. A failure to even
// start git is not returned: Run raises it via xerr.Raisef.
func Run(argv []string, opts Opts) (err *Error, stdout, stderr string) {
    full := append([]string{"-c", "core.hooksPath=/dev/null"}, argv...)
    if opts.GitDir != "" {
        full = append([]string{"--git-dir=" + opts.GitDir}, full...)
    }

    cmd := exec.Command("git", full...)
    cmd.Dir = opts.Dir

    var outBuf, errBuf bytes.Buffer
    if opts.Stdin != "" {
        cmd.Stdin = strings.NewReader(opts.Stdin)
    }
    switch opts.Stdout {
    case Pipe:
        cmd.Stdout = &outBuf
    case Inherit:
        cmd.Stdout = stdoutWriter
    }
    switch opts.Stderr {
    case Pipe:
        cmd.Stderr = &errBuf
    case Inherit:
        cmd.Stderr = stderrWriter
    }

    if opts.Env != nil {
        env := baseEnv()
        for k, v := range opts.Env {
            env[k] = v
        }
        cmd.Env = flattenEnv(env)
    }

    runErr := cmd.Run()
    stdout, stderr = outBuf.String(), errBuf.String()
    if !opts.Raw {
        stdout = strings.TrimSpace(stdout)
        stderr = strings.TrimSpace(stderr)
    }

    if runErr == nil {
        return nil, stdout, stderr
    }
    exitErr, ok := runErr.(*exec.ExitError)
    if !ok {
        xerr.Raisef("gitproc: could not run git %s: %s", strings.Join(argv, " "), runErr)
    }
    return &Error{Argv: argv, Stdin: opts.Stdin, Stdout: stdout, Stderr: stderr, ExitError: exitErr}, stdout, stderr
}

// Must runs git and raises (xerr) on non-zero exit, returning stdout.
func Must(argv []string, opts Opts) string {
    gerr, stdout, _ := Run(argv, opts)
    if gerr != nil {
        xerr.Raise(gerr)
    }
    return stdout
}
