package util

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/sifan077/EphemURL/internal/app/service"
)

// MaxTargetLength caps the stored target URL.
const MaxTargetLength = 2048

// ShortURL joins base and key. base comes from app.base_url or the request
// (scheme://host[:port]); a trailing slash is tolerated.
func ShortURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// ValidateTarget accepts any non-blank URL up to MaxTargetLength bytes. With
// domainCheck set the host must also look like a registrable domain.
func ValidateTarget(target string, domainCheck bool) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: url is required", service.ErrInvalidURL)
	}
	if len(target) > MaxTargetLength {
		return fmt.Errorf("%w: url exceeds %d bytes", service.ErrInvalidURL, MaxTargetLength)
	}
	if strings.ContainsAny(target, " \t\r\n") {
		return fmt.Errorf("%w: url contains whitespace", service.ErrInvalidURL)
	}
	if domainCheck && !LooksLikeDomain(target) {
		return fmt.Errorf("%w: %q is not a domain", service.ErrInvalidURL, target)
	}
	return nil
}

// LooksLikeDomain reports whether value, with or without an http(s) scheme
// and path, names a host such as "example.com" or "docs.go.dev:8080".
func LooksLikeDomain(value string) bool {
	host := hostOf(value)
	if host == "" || len(host) > 253 {
		return false
	}

	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !validLabel(label) {
			return false
		}
	}

	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if !isLetter(tld[i]) {
			return false
		}
	}
	return true
}

func hostOf(value string) string {
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		value = "https://" + value
	}
	u, err := url.Parse(value)
	if err != nil || u.User != nil {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isLetter(c) && !(c >= '0' && c <= '9') && c != '-' {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}
