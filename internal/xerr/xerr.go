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

// Package xerr provides the panic/recover-based exception idiom used
// throughout git-undo: `raise` to signal an error as an exception,
// `errcatch` to turn it back into a regular error/message at a function
// boundary, and a couple of helpers to decorate the error with calling
// context as it propagates.
//
// This mirrors the idiom git-backup.go/git.go/gitobjects.go call into
// (raise, raisef, raiseif, errcatch, aserror, erraddcontext,
// erraddcallingcontext, myfuncname) without pulling in a third repository's
// private error package.
package xerr

import (
    "fmt"
    "runtime"
)

// Error is the exception type raised and propagated by this package.
type Error struct {
    // Context, outermost first: each erraddcontext/erraddcallingcontext
    // call prepends one entry.
    context []string
    cause   interface{}
}

func (e *Error) Error() string {
    msg := ""
    for _, c := range e.context {
        msg += c + ": "
    }
    switch cause := e.cause.(type) {
    case error:
        msg += cause.Error()
    default:
        msg += fmt.Sprint(cause)
    }
    return msg
}

// Unwrap lets errors.Is/As see through to a causing error, if any.
func (e *Error) Unwrap() error {
    if err, ok := e.cause.(error); ok {
        return err
    }
    return nil
}

// Raise panics with info wrapped as *Error, unless it already is one.
func Raise(info interface{}) {
    if e, ok := info.(*Error); ok {
        panic(e)
    }
    panic(&Error{cause: info})
}

// Raisef is like Raise with a formatted message.
func Raisef(format string, argv ...interface{}) {
    Raise(fmt.Errorf(format, argv...))
}

// Raiseif raises err if it is non-nil.
func Raiseif(err error) {
    if err != nil {
        Raise(err)
    }
}

// AsError converts a recovered value (from recover()) to *Error.
// Non-*Error panics (e.g. a real runtime error) are re-raised unchanged
// by Errcatch so they are not mistaken for an expected exception.
func AsError(r interface{}) (*Error, bool) {
    e, ok := r.(*Error)
    return e, ok
}

// AddContext prepends a context line to e and returns it, for use at
// each propagation boundary that wants to say "while doing X: <cause>".
func AddContext(e *Error, context string) *Error {
    e.context = append([]string{context}, e.context...)
    return e
}

// AddCallingContext prepends "in <funcname>" as context.
func AddCallingContext(funcname string, e *Error) *Error {
    return AddContext(e, "in "+funcname)
}

// Errcatch recovers a panic raised via Raise/Raisef/Raiseif within the
// deferred call's scope and invokes handle with the resulting *Error.
// Panics that are not *Error (programmer bugs, nil derefs, ...) are
// re-panicked so they are not silently swallowed.
//
// Usage:
//
//	defer xerr.Errcatch(func(e *xerr.Error) {
//	    ...
//	})
func Errcatch(handle func(e *Error)) {
    r := recover()
    if r == nil {
        return
    }
    e, ok := AsError(r)
    if !ok {
        panic(r)
    }
    handle(e)
}

// FuncName returns the name of the function that calls it, i.e. call it as `here := xerr.FuncName()` at the top of the function
// whose own name you want.
func FuncName() string {
    pc, _, _, ok := runtime.Caller(1)
    if !ok {
        return "?"
    }
    fn := runtime.FuncForPC(pc)
    if fn == nil {
        return "?"
    }
    return fn.Name()
}
