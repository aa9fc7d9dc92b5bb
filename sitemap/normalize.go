package sitemap

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidURL = errors.New("invalid sitemap URL")

// NormalizeURL cleans up a user-submitted sitemap URL: whitespace is trimmed
// and a missing scheme defaults to https. Anything that does not parse into
// an absolute http(s) URL with a host is rejected.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Hostname() == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}
