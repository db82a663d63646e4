package scraper

import (
	"regexp"

	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// invitePattern matches the two canonical invite link forms and captures the
// invite code.
var invitePattern = regexp.MustCompile(`(?:discord\.gg/|discord\.com/invite/)([\w-]+)`)

// ParseInviteLink extracts the invite code from a community invite link.
// Links that match neither form fail with ErrInvalidReference.
func ParseInviteLink(link string) (string, error) {
	m := invitePattern.FindStringSubmatch(link)
	if m == nil {
		return "", apperrors.Newf(apperrors.ErrInvalidReference, 400,
			"link %q does not look like an invite link", link)
	}
	return m[1], nil
}
