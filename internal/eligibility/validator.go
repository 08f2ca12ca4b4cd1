// Package eligibility decides whether a verified student may enter a contest.
//
// Validation is a pure function of the identity, the contest and the current
// instant; it never touches storage.
package eligibility

import (
	"strings"
	"time"

	"github.com/kkkkikiki/contest/internal/model"
)

// Validate returns nil when identity may enter contest at now, or an
// *IneligibleError describing the first failed check.
func Validate(identity model.StudentIdentity, contest *model.Contest, now time.Time) error {
	switch {
	case identity.Email == "":
		return ineligible(ReasonMalformedIdentity, "email is required")
	case identity.FirstName == "":
		return ineligible(ReasonMalformedIdentity, "first name is required")
	case identity.LastName == "":
		return ineligible(ReasonMalformedIdentity, "last name is required")
	}

	domain := domainOf(identity.Email)
	if !MatchesDomain(domain, contest.MailDomains) {
		return ineligible(ReasonDomainMismatch, "%s is not a %s address", domain, contest.SchoolName)
	}

	if now.Before(contest.StartAt) {
		return ineligible(ReasonContestClosed, "contest starts at %s", contest.StartAt.UTC().Format(time.RFC3339))
	}
	if !now.Before(contest.EndAt) {
		return ineligible(ReasonContestClosed, "contest ended at %s", contest.EndAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// MatchesDomain reports whether domain equals one of suffixes or is a
// subdomain of one, compared case-insensitively on label boundaries.
func MatchesDomain(domain string, suffixes []string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" {
		return false
	}
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.Trim(strings.TrimSpace(suffix), "."))
		suffix = strings.TrimPrefix(suffix, "@")
		if suffix == "" {
			continue
		}
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return true
		}
	}
	return false
}
