// Package strings collects the small string and pointer helpers shared
// across modules
package strings

import std "strings"

// IfEmpty substitutes def when in has no elements
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// Contains reports whether sub occurs in s
func Contains(s, sub string) bool { return std.Contains(s, sub) }

// HasSuffix reports whether s ends in suf
func HasSuffix(s, suf string) bool { return std.HasSuffix(s, suf) }

// MustString panics when s is blank; name identifies the value in the
// panic message
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix normalizes a mount path like /feed or /sessions: one leading
// slash, no trailing slash. Blank input panics
func MustPrefix(s string) string {
	s = std.TrimSpace(s)
	s = "/" + std.Trim(s, " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}

// EmptyToNil collapses whitespace-only strings to ""
func EmptyToNil(s string) string {
	if std.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// Ptr returns &s, nil when s is empty
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SQLNull turns blank strings into nil so query args bind as NULL
func SQLNull(s string) any {
	if std.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// SQLNullPtr is SQLNull over an optional string
func SQLNullPtr(ps *string) any {
	if ps == nil || std.TrimSpace(*ps) == "" {
		return nil
	}
	return *ps
}

// Deref unwraps an optional string, "" when nil
func Deref(ps *string) string {
	if ps == nil {
		return ""
	}
	return *ps
}
