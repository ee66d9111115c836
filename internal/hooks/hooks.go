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

// Package hooks installs the thin shell stubs that wire the host VCS's
// hook points to this engine's "record" command.
package hooks

import (
    "fmt"
    "os"
    "path/filepath"
)

// Unconditional are hooks that always record on fire.
var Unconditional = []string{
    "post-applypatch",
    "post-checkout",
    "pre-commit",
    "post-commit",
    "post-merge",
    "post-rewrite",
    "pre-auto-gc",
    "post-index-change",
}

// ConditionalOnCommitted is reference-transaction, which only records
// when argv[1] (the transaction phase) is "committed".
const ConditionalOnCommitted = "reference-transaction"

// Install writes every hook stub into gitDir/hooks, overwriting any
// existing hook file of the same name. engine is the path
// to the git-undo binary to invoke; it is embedded verbatim into each
// stub so hooks keep working even if $PATH changes later.
func Install(gitDir, engine string) error {
    hooksDir := filepath.Join(gitDir, "hooks")
    if err := os.MkdirAll(hooksDir, 0777); err != nil {
        return fmt.Errorf("hooks: install: %w", err)
    }

    for _, name := range Unconditional {
        if err := writeStub(hooksDir, name, unconditionalBody(engine)); err != nil {
            return err
        }
    }
    if err := writeStub(hooksDir, ConditionalOnCommitted, conditionalBody(engine)); err != nil {
        return err
    }
    return nil
}

func unconditionalBody(engine string) string {
    return fmt.Sprintf(`#!/bin/sh
DIR=$(git rev-parse --show-toplevel) || exit 0
cd "$DIR" || exit 0
exec %s record
`, engine)
}

func conditionalBody(engine string) string {
    return fmt.Sprintf(`#!/bin/sh
[ "$1" = committed ] || exit 0
DIR=$(git rev-parse --show-toplevel) || exit 0
cd "$DIR" || exit 0
exec %s record
`, engine)
}

func writeStub(hooksDir, name, body string) error {
    path := filepath.Join(hooksDir, name)
    if err := os.WriteFile(path, []byte(body), 0755); err != nil {
        return fmt.Errorf("hooks: write %s: %w", name, err)
    }
    return nil
}
