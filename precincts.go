// Package precincts builds, validates and indexes versioned Minnesota precinct
// boundary layers from raw GeoJSON.
//
// The pipeline runs in three independently invocable steps (build, validate,
// index) that share an explicit Env carrying the directory layout and logger.
package precincts

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Wrapped errors can be matched with errors.Is.
var (
	ErrConfig          = errors.New("precincts: configuration error")
	ErrInput           = errors.New("precincts: input error")
	ErrGeometry        = errors.New("precincts: invalid geometry")
	ErrOutput          = errors.New("precincts: output error")
	ErrSchema          = errors.New("precincts: schema error")
	ErrToolUnavailable = errors.New("precincts: simplification tool unavailable")
)

// BuildError reports a failed build along with the stage it failed in.
type BuildError struct {
	Stage string // "config", "load", "write", "metadata", ...
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ValidateError reports the first validation check that did not pass.
type ValidateError struct {
	Check string
	Err   error
}

func (e *ValidateError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.Check, e.Err)
}

func (e *ValidateError) Unwrap() error { return e.Err }
