package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateLink checks that a user-supplied media link is an absolute http(s)
// URL. The link is forwarded verbatim to the resolver, so nothing else is
// assumed about its shape.
func ValidateLink(link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("link cannot be empty")
	}
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("link is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("link must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("link has no host: %s", link)
	}
	return nil
}
