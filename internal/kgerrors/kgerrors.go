// Package kgerrors defines the error taxonomy shared by every kgraph
// component: NodeStore, Indexer, ContextBuilder, VectorService, Daemon.
package kgerrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with fmt.Errorf("%w: detail", Kind) and classify
// with errors.Is, the way callers classify sql.ErrNoRows.
var (
	NotFound      = errors.New("not found")
	AlreadyExists = errors.New("already exists")
	Invalid       = errors.New("invalid")
	Conflict      = errors.New("conflict")
	Transient     = errors.New("transient")
	Schema        = errors.New("schema")
	Config        = errors.New("config")
	Unsupported   = errors.New("unsupported")
)

// Wrap annotates kind with a message, preserving errors.Is(err, kind).
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Is reports whether err was produced by Wrap(kind, ...) or is kind itself.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
