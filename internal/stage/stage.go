// Package stage implements the four packaging stages: clean, copy, thin and compress.
package stage

import (
	"context"

	"github.com/go-git/go-billy/v5"
)

// Stage names, in chain order.
const (
	NameClean    = "clean"
	NameCopy     = "copy"
	NameThin     = "thin"
	NameCompress = "compress"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stage is the interface for all packaging stages.
// A stage may only start once the stage it depends on has completed.
type Stage interface {
	StageName() string
	DependsOn() string
	Apply(ctx context.Context, fsys billy.Filesystem) *Result
}

// Result represents the outcome of applying a stage.
type Result struct {
	Status  string
	Content any // Stage summary, one of the *Summary types below
	Error   error
}

func succeeded(content any) *Result {
	return &Result{Status: StatusSuccess, Content: content}
}

func failed(err error) *Result {
	return &Result{Status: StatusFailed, Error: err}
}

// CleanSummary reports what the clean stage removed.
type CleanSummary struct {
	Removed bool `json:"removed"` // False when there was no output directory
}

// CopySummary reports what the copy stage mirrored.
type CopySummary struct {
	Files   int   `json:"files"`
	Dirs    int   `json:"dirs"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// ThinSummary reports which exclusion-list paths were present and removed.
type ThinSummary struct {
	Removed []string `json:"removed"`
}

// CompressSummary reports the archive produced by the compress stage.
type CompressSummary struct {
	Archive string `json:"archive"`
	Entries int    `json:"entries"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
}
