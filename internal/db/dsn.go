package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithSSLMode returns a DSN identical to the input but with sslmode set.
// Supports postgres:// and postgresql:// schemes; an sslmode already present
// in the DSN is replaced.
func WithSSLMode(dsn, mode string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if mode == "" {
		return dsn, nil
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("sslmode", mode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SSLModeFor maps the TLS toggles onto a libpq sslmode. Non-standard
// endpoints (self-signed or proxied) use require, which encrypts without
// verifying the certificate chain.
func SSLModeFor(tls, verify bool) string {
	switch {
	case !tls:
		return "disable"
	case verify:
		return "verify-full"
	default:
		return "require"
	}
}
