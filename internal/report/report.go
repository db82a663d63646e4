// Package report turns a set of community records into one of two
// human-readable plain-text reports: a single-community activity report or a
// multi-community competitive report. The two shapes present genuinely
// different information (absolute ratios vs. relative rankings) and are never
// merged; dispatch is purely on set cardinality.
//
// Report generation is a pure function of its input set: no I/O, no shared
// state across calls. Writing the text anywhere, and rendering charts from
// the accompanying Series, belong to the callers.
package report

import (
	"github.com/commpulse/community-pulse/internal/record"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// Mode identifies which report shape was generated.
type Mode string

const (
	ModeActivity    Mode = "activity"
	ModeCompetitive Mode = "competitive"
)

// Generate dispatches on cardinality: one record produces the activity
// report, two or more the competitive report, and an empty set fails with
// ErrEmptyInput.
func Generate(set record.Set) (string, Mode, error) {
	switch {
	case len(set) == 0:
		return "", "", apperrors.New(apperrors.ErrEmptyInput, 422,
			"record set is empty")
	case len(set) == 1:
		text, err := Activity(set)
		return text, ModeActivity, err
	default:
		text, err := Competitive(set)
		return text, ModeCompetitive, err
	}
}
