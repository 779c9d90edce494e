package pipeline

import (
	"context"
	"errors"
	"packager/internal/apperrors"
	"packager/internal/stage"
	"slices"
	"testing"

	"github.com/go-git/go-billy/v5"
)

func TestStateAdvance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"pending to clean", StatePending, StateClean, false},
		{"clean to copied", StateClean, StateCopied, false},
		{"thinned to compressed", StateThinned, StateCompressed, false},
		{"compressed to done", StateCompressed, StateDone, false},
		{"pending to failed", StatePending, StateFailed, false},
		{"copied to failed", StateCopied, StateFailed, false},
		{"backwards", StateThinned, StateCopied, true},
		{"same state", StateCopied, StateCopied, true},
		{"leave done", StateDone, StateFailed, true},
		{"leave failed", StateFailed, StateClean, true},
		{"unknown target", StatePending, State("shipped"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.from.advance(tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("advance(%s -> %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if tt.wantErr && got != tt.from {
				t.Errorf("failed advance changed state to %s", got)
			}
			if !tt.wantErr && got != tt.to {
				t.Errorf("advance() = %s, want %s", got, tt.to)
			}
		})
	}
}

func TestStateAfter(t *testing.T) {
	t.Parallel()

	tests := map[string]State{
		stage.NameClean:    StateClean,
		stage.NameCopy:     StateCopied,
		stage.NameThin:     StateThinned,
		stage.NameCompress: StateCompressed,
		"deploy":           "",
	}
	for name, want := range tests {
		if got := stateAfter(name); got != want {
			t.Errorf("stateAfter(%q) = %q, want %q", name, got, want)
		}
	}
}

type fakeStage struct {
	name string
	dep  string
}

func (s *fakeStage) StageName() string { return s.name }
func (s *fakeStage) DependsOn() string { return s.dep }
func (s *fakeStage) Apply(context.Context, billy.Filesystem) *stage.Result {
	return &stage.Result{Status: stage.StatusSuccess}
}

func names(stages []stage.Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.StageName())
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()

	chain := []stage.Stage{
		&fakeStage{stage.NameClean, ""},
		&fakeStage{stage.NameCopy, stage.NameClean},
		&fakeStage{stage.NameThin, stage.NameCopy},
		&fakeStage{stage.NameCompress, stage.NameThin},
	}

	tests := []struct {
		target string
		want   []string
	}{
		{"clean", []string{"clean"}},
		{"copy", []string{"clean", "copy"}},
		{"thin", []string{"clean", "copy", "thin"}},
		{"compress", []string{"clean", "copy", "thin", "compress"}},
		{"default", []string{"clean", "copy", "thin", "compress"}},
		{"", []string{"clean", "copy", "thin", "compress"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(chain, tt.target)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.target, err)
			}
			if !slices.Equal(names(got), tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.target, names(got), tt.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stages  []stage.Stage
		target  string
		wantErr error
	}{
		{
			name:    "unknown task",
			stages:  []stage.Stage{&fakeStage{"clean", ""}},
			target:  "deploy",
			wantErr: apperrors.ErrUnknownTask,
		},
		{
			name: "missing dependency",
			stages: []stage.Stage{
				&fakeStage{"copy", "clean"},
			},
			target:  "copy",
			wantErr: apperrors.ErrValidation,
		},
		{
			name: "cycle",
			stages: []stage.Stage{
				&fakeStage{"copy", "thin"},
				&fakeStage{"thin", "copy"},
			},
			target:  "thin",
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "self dependency",
			stages:  []stage.Stage{&fakeStage{"clean", "clean"}},
			target:  "clean",
			wantErr: apperrors.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(tt.stages, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestReport_Stage(t *testing.T) {
	t.Parallel()

	report := &Report{Stages: []*StageReport{
		{Name: "clean", Status: stage.StatusSuccess},
		{Name: "copy", Status: stage.StatusFailed, Error: "copy.create: permission denied"},
	}}

	if got := report.Stage("copy"); got == nil || got.Status != stage.StatusFailed {
		t.Errorf("Stage(copy) = %+v, want failed copy", got)
	}
	if got := report.Stage("thin"); got != nil {
		t.Errorf("Stage(thin) = %+v, want nil", got)
	}
	if !slices.Equal(report.Ran(), []string{"clean", "copy"}) {
		t.Errorf("Ran() = %v, want [clean copy]", report.Ran())
	}
}
