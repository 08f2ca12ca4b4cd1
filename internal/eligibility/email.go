package eligibility

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/kkkkikiki/contest/internal/model"
)

// NormalizeOptions controls how the local part of an address is canonicalised.
// The zero value only trims and case-folds.
type NormalizeOptions struct {
	// Tag drops the separator and everything after it, e.g. "+" for "jo+x@a.edu"
	Tag string
	// StripDots removes "." from the local part
	StripDots bool
}

// OptionsFor returns the normalisation options configured on a contest
func OptionsFor(c *model.Contest) NormalizeOptions {
	return NormalizeOptions{Tag: c.MailTag, StripDots: c.MailDots}
}

// NormalizeEmail trims and case-folds address and applies opts to the local part.
// It returns false when the address has no usable local or domain part.
func NormalizeEmail(address string, opts NormalizeOptions) (string, bool) {
	// Casers are stateful; one per call.
	address = cases.Fold().String(strings.TrimSpace(address))
	if strings.Count(address, "@") != 1 {
		return "", false
	}
	local, domain, _ := strings.Cut(address, "@")
	if opts.Tag != "" {
		local, _, _ = strings.Cut(local, opts.Tag)
	}
	if opts.StripDots {
		local = strings.ReplaceAll(local, ".", "")
	}
	domain = strings.TrimSuffix(domain, ".")
	if local == "" || domain == "" || strings.ContainsAny(address, " \t\r\n") {
		return "", false
	}
	return local + "@" + domain, true
}

// Normalize builds the student identity for a verification event
func Normalize(ev model.VerificationEvent, opts NormalizeOptions) (model.StudentIdentity, error) {
	identity := model.StudentIdentity{
		FirstName: strings.TrimSpace(ev.FirstName),
		LastName:  strings.TrimSpace(ev.LastName),
	}
	if strings.TrimSpace(ev.Email) == "" {
		return identity, ineligible(ReasonMalformedIdentity, "email is required")
	}
	email, ok := NormalizeEmail(ev.Email, opts)
	if !ok {
		return identity, ineligible(ReasonMalformedIdentity, "email %q is not a valid address", ev.Email)
	}
	identity.Email = email
	identity.School = domainOf(email)
	return identity, nil
}

func domainOf(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}
