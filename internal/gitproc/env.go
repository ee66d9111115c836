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

package gitproc

import (
    "os"
    "strings"

    "lab.nexedi.com/kirr/git-undo/internal/xerr"
)

var (
    stdoutWriter = os.Stdout
    stderrWriter = os.Stderr
)

// baseEnv snapshots the current process environment as a map, so callers
// can add a handful of GIT_AUTHOR_*/GIT_COMMITTER_* overrides without
// losing PATH, HOME, etc.
func baseEnv() map[string]string {
    env := map[string]string{}
    for _, e := range os.Environ() {
        k, v, ok := strings.Cut(e, "=")
        if !ok {
            xerr.Raisef("gitproc: malformed environment entry %q", e)
        }
        env[k] = v
    }
    return env
}

func flattenEnv(env map[string]string) []string {
    out := make([]string, 0, len(env))
    for k, v := range env {
        out = append(out, k+"="+v)
    }
    return out
}
