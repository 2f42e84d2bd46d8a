package evasions

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedData marks a dataset reference that cannot be honored, such
	// as a plugin naming a mime type that the dataset does not define.
	ErrMalformedData = errors.New("evasions: malformed data")
	// ErrAliasConflict marks an ambiguous alias declaration. It is resolved by
	// keeping the first declaration in input order.
	ErrAliasConflict = errors.New("evasions: alias resolution conflict")
)

// Stage names the installation step that recorded a skip.
type Stage string

const (
	StageDataset      Stage = "dataset"
	StageCollection   Stage = "collection"
	StageCrossRef     Stage = "crossref"
	StageFunctionMock Stage = "function-mock"
	StageIntercept    Stage = "intercept"
	StageKeyboard     Stage = "keyboard"
)

// SkipError records one part of the installation that was left out. Skips
// never abort an installation; they are collected on the PatchSet.
type SkipError struct {
	Stage  Stage
	Target string
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s: skipped %s: %v", e.Stage, e.Target, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

func skip(stage Stage, target string, err error) *SkipError {
	return &SkipError{Stage: stage, Target: target, Err: err}
}

func malformed(stage Stage, target, format string, args ...interface{}) *SkipError {
	return skip(stage, target, fmt.Errorf("%w: %s", ErrMalformedData, fmt.Sprintf(format, args...)))
}
