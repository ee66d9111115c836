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

// Package config loads git-undo's optional TOML configuration: ledger
// reference name, the fixed commit identity used for ledger commits, and
// the advisory lock timeout. The index/workdir commits made by
// snapshot.Capture always use its built-in identity, not this one.
//
// Parsed with github.com/BurntSushi/toml, as both dolt and go-ethereum do
// for their own config files.
package config

import (
    "os"
    "path/filepath"
    "time"

    "github.com/BurntSushi/toml"
)

// Config is git-undo's tunable behavior. All fields have sensible
// defaults; the file itself is entirely optional.
type Config struct {
    LedgerRef string `toml:"ledger_ref"`

    Identity struct {
        Name  string `toml:"name"`
        Email string `toml:"email"`
    } `toml:"identity"`

    LockTimeout duration `toml:"lock_timeout"`
}

// duration lets the TOML file spell out "2s" instead of a raw int64.
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
    parsed, err := time.ParseDuration(string(b))
    if err != nil {
        return err
    }
    d.Duration = parsed
    return nil
}

// Default returns the built-in configuration used when no config file
// is present, or to fill in whatever a partial file leaves unset.
func Default() Config {
    c := Config{LedgerRef: "refs/git-undo"}
    c.Identity.Name = "git-undo"
    c.Identity.Email = "git-undo@localhost"
    c.LockTimeout = duration{2 * time.Second}
    return c
}

// Load reads "<gitdir>/git-undo.toml" if present, overlaying it onto
// Default(). A missing file is not an error.
func Load(gitDir string) (Config, error) {
    cfg := Default()
    path := filepath.Join(gitDir, "git-undo.toml")
    data, err := os.ReadFile(path)
    if os.IsNotExist(err) {
        return cfg, nil
    }
    if err != nil {
        return cfg, err
    }
    if _, err := toml.Decode(string(data), &cfg); err != nil {
        return cfg, err
    }
    return cfg, nil
}
