package record

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// Labels of the persisted text format, exact and case-sensitive.
const (
	labelName    = "Community Name"
	labelLink    = "Community Link"
	labelActive  = "Total Active Members"
	labelOffline = "Total Offline Members"
	labelTotal   = "Total Members"
)

// Parse converts a flat text block of "Label: value" lines into a Record.
// Lines with unrecognized labels are ignored so records with extra fields
// still parse. The three member counts are required; a missing or unparsable
// count fails with ErrMalformedRecord naming the field, and the caller
// decides whether to skip the record or abort the batch.
func Parse(text string) (Record, error) {
	var name, link string
	var active, offline, total int
	var hasActive, hasOffline, hasTotal bool
	var err error

	for _, line := range strings.Split(text, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch label {
		case labelName:
			name = value
		case labelLink:
			link = value
		case labelActive:
			if active, err = parseCount(labelActive, value); err != nil {
				return Record{}, err
			}
			hasActive = true
		case labelOffline:
			if offline, err = parseCount(labelOffline, value); err != nil {
				return Record{}, err
			}
			hasOffline = true
		case labelTotal:
			if total, err = parseCount(labelTotal, value); err != nil {
				return Record{}, err
			}
			hasTotal = true
		}
	}

	if !hasActive {
		return Record{}, missingField(labelActive)
	}
	if !hasOffline {
		return Record{}, missingField(labelOffline)
	}
	if !hasTotal {
		return Record{}, missingField(labelTotal)
	}

	return New(name, link, active, offline, total), nil
}

// Format serializes a Record to the persisted text format, one field per
// line. Format followed by Parse yields an equal Record (derived fields are
// recomputed identically from the same counts).
func Format(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", labelName, r.CommunityName)
	fmt.Fprintf(&b, "%s: %s\n", labelLink, r.Link)
	fmt.Fprintf(&b, "%s: %d\n", labelActive, r.ActiveMembers)
	fmt.Fprintf(&b, "%s: %d\n", labelOffline, r.OfflineMembers)
	fmt.Fprintf(&b, "%s: %d", labelTotal, r.TotalMembers)
	return b.String()
}

func parseCount(label, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrMalformedRecord, 400,
			"field %q: invalid count %q", label, value)
	}
	if n < 0 {
		return 0, apperrors.Newf(apperrors.ErrMalformedRecord, 400,
			"field %q: negative count %d", label, n)
	}
	return n, nil
}

func missingField(label string) error {
	return apperrors.Newf(apperrors.ErrMalformedRecord, 400,
		"field %q: missing", label)
}
