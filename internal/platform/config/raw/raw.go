// Package raw is the env reader used before logging exists.
// It must never import the logger package, which reads LOG_* through it
package raw

import (
	"os"
	"strings"
)

// Conf is a prefixed window onto the environment
type Conf struct{ prefix string }

// New returns the unprefixed root Conf
func New() Conf { return Conf{} }

// Prefix returns a child Conf whose keys are nested under p
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// key expands a short key into the full env var name
func (c Conf) key(k string) string { return c.prefix + k }

// Get reads and trims key, falling back to def when blank
func (c Conf) Get(key, def string) string {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	if v == "" {
		return def
	}
	return v
}

// GetBool accepts 1, true, and yes in any case; everything else is false,
// blank is def
func (c Conf) GetBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(c.key(key))))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// GetInt parses a non-negative decimal, def on blank or anything else
func (c Conf) GetInt(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(c.key(key)))
	if s == "" {
		return def
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
