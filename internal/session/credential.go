package session

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ClearanceCookie is the cookie set once the challenge is passed.
const ClearanceCookie = "cf_clearance"

// KnownCookies are copied from the browser into the credential. Only the
// clearance cookie is required.
var KnownCookies = []string{"cf_clearance", "__cf_bm", "cf_chl_rc", "__cflb"}

var (
	// ErrNoCredential means no credential has been saved yet.
	ErrNoCredential = errors.New("no saved credential")
	// ErrCredentialExpired means the credential's TTL has elapsed.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrMissingClearance means the credential lacks the clearance cookie.
	ErrMissingClearance = errors.New("credential missing clearance cookie")
)

// Credential is the cookie and client identity bundle that lets requests
// through the anti-bot layer. Timestamps are epoch seconds.
type Credential struct {
	Cookies         map[string]string `json:"cookies"`
	UserAgent       string            `json:"userAgent"`
	IssuedAt        int64             `json:"issuedAt"`
	ExpiresAt       int64             `json:"expiresAt"`
	URL             string            `json:"url,omitempty"`
	ChromiumVersion string            `json:"chromiumVersion,omitempty"`
}

// NewCredential builds a credential issued at now and valid for ttl.
func NewCredential(cookies map[string]string, userAgent, targetURL string, now time.Time, ttl time.Duration) *Credential {
	return &Credential{
		Cookies:         cookies,
		UserAgent:       userAgent,
		IssuedAt:        now.Unix(),
		ExpiresAt:       now.Add(ttl).Unix(),
		URL:             targetURL,
		ChromiumVersion: ChromiumVersion(userAgent),
	}
}

// Validate reports why c cannot be used at now, or nil if it can.
func (c *Credential) Validate(now time.Time, clearance string) error {
	if c == nil {
		return ErrNoCredential
	}
	if now.Unix() >= c.ExpiresAt {
		return fmt.Errorf("%w at %s", ErrCredentialExpired, time.Unix(c.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
	if c.Cookies[clearance] == "" {
		return fmt.Errorf("%w %q", ErrMissingClearance, clearance)
	}
	return nil
}

// Remaining is the time left before expiry.
func (c *Credential) Remaining(now time.Time) time.Duration {
	return time.Unix(c.ExpiresAt, 0).Sub(now)
}

// CookieHeader renders the cookies as a Cookie header value, sorted by name.
func (c *Credential) CookieHeader() string {
	names := make([]string, 0, len(c.Cookies))
	for name := range c.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+c.Cookies[name])
	}
	return strings.Join(parts, "; ")
}

// TargetDomain is the host the credential was issued for.
func (c *Credential) TargetDomain() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

var chromeVersion = regexp.MustCompile(`Chrom(?:e|ium)/(\d+(?:\.\d+)*)`)

// ChromiumVersion extracts the browser version from a user agent string.
func ChromiumVersion(userAgent string) string {
	if m := chromeVersion.FindStringSubmatch(userAgent); m != nil {
		return m[1]
	}
	return ""
}
