package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "crowdfund/pkg/domain-errors"
)

// MaxIdentityLength bounds identities accepted at trust boundaries.
const MaxIdentityLength = 128

// Identity is an opaque principal reference (an account address or equivalent).
// It is compared byte-for-byte; no case folding is applied.
type Identity string

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i == "" }

// ParseIdentity validates an identity received from an untrusted source.
// Surrounding whitespace is trimmed; the remainder must be 1..128 bytes drawn
// from [A-Za-z0-9._:@-].
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(s) > MaxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must be valid UTF-8")
	}
	for _, r := range s {
		if !isIdentityRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "identity contains invalid characters")
		}
	}
	return Identity(s), nil
}

func isIdentityRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ':', r == '@', r == '-':
		return true
	}
	return false
}

// CampaignID identifies a campaign. Ids are allocated sequentially from 1.
type CampaignID int64

func (c CampaignID) String() string { return strconv.FormatInt(int64(c), 10) }

// IsValid reports whether the id could have been allocated.
func (c CampaignID) IsValid() bool { return c > 0 }

// ParseCampaignID parses a decimal campaign id.
func ParseCampaignID(s string) (CampaignID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "campaign id is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "campaign id must be an integer")
	}
	if n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "campaign id must be positive")
	}
	return CampaignID(n), nil
}

// Amount is a quantity in the smallest currency unit.
type Amount int64

func (a Amount) String() string { return strconv.FormatInt(int64(a), 10) }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a > 0 }

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if b < a {
		return b
	}
	return a
}
