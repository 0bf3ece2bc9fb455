package validation

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// EmailPolicy is the domain plausibility table behind IsPlausibleEmail. It is
// a soft spam filter, not an RFC validity check.
type EmailPolicy struct {
	DenyDomains     []string
	AllowDomains    []string
	MinLabels       int
	MinTLDLength    int
	MaxTLDLength    int
	MinDomainLength int
}

// DefaultEmailPolicy returns the built-in thresholds.
func DefaultEmailPolicy() EmailPolicy {
	return EmailPolicy{
		DenyDomains:     []string{"test.com", "example.com"},
		AllowDomains:    []string{"gmail.com", "outlook.com", "hotmail.com", "yahoo.com", "icloud.com"},
		MinLabels:       2,
		MinTLDLength:    2,
		MaxTLDLength:    6,
		MinDomainLength: 4,
	}
}

// Merge returns p with every non-zero field of override applied.
func (p EmailPolicy) Merge(override EmailPolicy) EmailPolicy {
	if len(override.DenyDomains) > 0 {
		p.DenyDomains = override.DenyDomains
	}
	if len(override.AllowDomains) > 0 {
		p.AllowDomains = override.AllowDomains
	}
	if override.MinLabels > 0 {
		p.MinLabels = override.MinLabels
	}
	if override.MinTLDLength > 0 {
		p.MinTLDLength = override.MinTLDLength
	}
	if override.MaxTLDLength > 0 {
		p.MaxTLDLength = override.MaxTLDLength
	}
	if override.MinDomainLength > 0 {
		p.MinDomainLength = override.MinDomainLength
	}
	return p
}

// AllowsDomain applies deny-list, allow-list, then the shape rules.
func (p EmailPolicy) AllowsDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, d := range p.DenyDomains {
		if domain == strings.ToLower(d) {
			return false
		}
	}
	for _, d := range p.AllowDomains {
		if domain == strings.ToLower(d) {
			return true
		}
	}

	labels := strings.Split(domain, ".")
	if len(labels) < p.MinLabels {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < p.MinTLDLength || len(tld) > p.MaxTLDLength {
		return false
	}
	return len(domain) >= p.MinDomainLength
}

var activePolicy atomic.Pointer[EmailPolicy]

func init() {
	p := DefaultEmailPolicy()
	activePolicy.Store(&p)
}

// SetEmailPolicy replaces the process wide policy used by IsPlausibleEmail.
func SetEmailPolicy(p EmailPolicy) {
	activePolicy.Store(&p)
}

// CurrentEmailPolicy returns the process wide policy.
func CurrentEmailPolicy() EmailPolicy {
	return *activePolicy.Load()
}

var (
	syntaxOnce     sync.Once
	syntaxValidate *validator.Validate
)

func syntax() *validator.Validate {
	syntaxOnce.Do(func() {
		syntaxValidate = validator.New()
	})
	return syntaxValidate
}

// IsPlausibleEmail reports whether s is a syntactically valid address whose
// domain passes the active EmailPolicy.
func IsPlausibleEmail(s string) bool {
	return CurrentEmailPolicy().IsPlausibleEmail(s)
}

// IsPlausibleEmail checks s against this policy.
func (p EmailPolicy) IsPlausibleEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || syntax().Var(s, "email") != nil {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at < 1 || at == len(s)-1 {
		return false
	}
	return p.AllowsDomain(s[at+1:])
}

var (
	phoneShape = regexp.MustCompile(`^\+?[0-9().\-]+$`)
	nameShape  = regexp.MustCompile(`^[\p{L}\p{M} '\-.]+$`)
)

// IsPlausiblePhone strips whitespace and applies a lenient, locale agnostic
// mobile number shape check: optional leading +, separators -().
// tolerated, 7 to 15 digits.
func IsPlausiblePhone(s string) bool {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if !phoneShape.MatchString(compact) {
		return false
	}
	digits := 0
	for _, r := range compact {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return false
	}
	// an international prefix is never followed by a zero country code
	return !strings.HasPrefix(compact, "+0")
}

// IsPersonName allows letters, spaces, hyphens, apostrophes and periods, and
// requires at least one letter.
func IsPersonName(s string) bool {
	if !nameShape.MatchString(s) {
		return false
	}
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// LengthBetween is an inclusive rune count check. max <= 0 means unbounded.
func LengthBetween(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	if n < min {
		return false
	}
	return max <= 0 || n <= max
}

// InRange is an inclusive numeric bounds check; nil bounds are open.
func InRange(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}
