// Package config reads application configuration from environment variables
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"dropwatch/internal/platform/logger"
)

// Conf is a prefixed window onto the environment.
// New() reads globals; Prefix("SCANNER_") scopes a module's keys
type Conf struct{ prefix string }

// New returns the unprefixed root Conf
func New() Conf { return Conf{} }

// Prefix returns a child Conf whose keys are nested under p
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// key expands a short key into the full env var name
func (c Conf) key(k string) string { return c.prefix + k }

// raw reads and trims the env var behind key
func (c Conf) raw(key string) string {
	return strings.TrimSpace(os.Getenv(c.key(key)))
}

// mustRaw is raw that panics on missing or blank values
func (c Conf) mustRaw(key string) string {
	v := c.raw(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// reject panics with the offending key and value
func (c Conf) reject(key, value, msg string) {
	logger.Get().Panic().Str("key", c.key(key)).Str("value", value).Msg(msg)
}

// MustString reads key, panicking when it is missing or blank
func (c Conf) MustString(key string) string {
	return c.mustRaw(key)
}

// MustInt reads key as an int, panicking on missing or unparseable values
func (c Conf) MustInt(key string) int {
	s := c.mustRaw(key)
	v, err := strconv.Atoi(s)
	if err != nil {
		c.reject(key, s, "invalid int value")
	}
	return v
}

// MustBool reads key as a bool, panicking on missing or unparseable values
func (c Conf) MustBool(key string) bool {
	s := c.mustRaw(key)
	v, err := strconv.ParseBool(s)
	if err != nil {
		c.reject(key, s, "invalid bool value")
	}
	return v
}

// MustDuration reads key as a time.Duration, panicking when it cannot parse
func (c Conf) MustDuration(key string) time.Duration {
	s := c.mustRaw(key)
	d, err := time.ParseDuration(s)
	if err != nil {
		c.reject(key, s, "invalid duration (e.g., 250ms, 2s, 1h)")
	}
	return d
}

// MustURL reads key as an absolute URL, panicking otherwise
func (c Conf) MustURL(key string) *url.URL {
	s := c.mustRaw(key)
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		c.reject(key, s, "invalid absolute URL")
	}
	return u
}

// MustPort reads key as a TCP port and returns it as a listen addr (":4000")
func (c Conf) MustPort(key string) string {
	s := c.mustRaw(key)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		c.reject(key, s, "invalid TCP port; expected 1..65535")
	}
	return ":" + s
}

// Require panics unless every listed key is present and non-blank
func (c Conf) Require(keys ...string) {
	for _, k := range keys {
		c.mustRaw(k)
	}
}

// MayString reads key, falling back to def when missing or blank
func (c Conf) MayString(key, def string) string {
	if v := c.raw(key); v != "" {
		return v
	}
	return def
}

// MayInt reads key as an int; unparseable values log a warning and fall
// back to def
func (c Conf) MayInt(key string, def int) int {
	s := c.raw(key)
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Int("default", def).Msg("invalid int; using default")
	return def
}

// MayFloat64 reads key as a float64 with the same fallback behavior as MayInt
func (c Conf) MayFloat64(key string, def float64) float64 {
	s := c.raw(key)
	if s == "" {
		return def
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Float64("default", def).
		Msg("invalid float64; using default")
	return def
}

// MayBool reads key as a bool with the same fallback behavior as MayInt
func (c Conf) MayBool(key string, def bool) bool {
	s := c.raw(key)
	if s == "" {
		return def
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Bool("default", def).Msg("invalid bool; using default")
	return def
}

// MayDuration reads key as a duration with the same fallback behavior as MayInt
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	s := c.raw(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Dur("default", def).Msg("invalid duration; using default")
	return def
}

// MayCSV splits a comma-separated value, trimming entries and dropping
// empties; def when the result would be empty
func (c Conf) MayCSV(key string, def []string) []string {
	s := c.raw(key)
	if s == "" {
		return def
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum reads key and checks it against allowed (case-insensitive),
// returning the env value as written. Empty falls back to def; anything
// outside allowed panics
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	if v == "" {
		return v
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return v
		}
	}
	logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	return "" // unreachable
}
