package config

import (
	"testing"
	"time"

	kit "dropwatch/internal/platform/testkit"
)

func TestPrefixNesting(t *testing.T) {
	root := New()
	feed := root.Prefix("FEED_")
	if got := feed.key("PORT"); got != "FEED_PORT" {
		t.Fatalf("key = %q", got)
	}
	feedLog := feed.Prefix("LOG_")
	if got := feedLog.key("LEVEL"); got != "FEED_LOG_LEVEL" {
		t.Fatalf("nested key = %q", got)
	}
}

func TestMustString(t *testing.T) {
	c := New().Prefix("DW_")
	t.Setenv("DW_SERVICE", "  dropwatch-api ")
	if got := c.MustString("SERVICE"); got != "dropwatch-api" {
		t.Fatalf("MustString = %q", got)
	}
	kit.MustPanic(t, func() { _ = c.MustString("ABSENT") })
}

func TestMustInt(t *testing.T) {
	c := New().Prefix("SCANNER_")
	t.Setenv("SCANNER_SHARDS", "  16 ")
	if got := c.MustInt("SHARDS"); got != 16 {
		t.Fatalf("MustInt = %d", got)
	}
	kit.MustPanic(t, func() { _ = c.MustInt("ABSENT") })
	t.Setenv("SCANNER_SHARDS_BAD", "many")
	kit.MustPanic(t, func() { _ = c.MustInt("SHARDS_BAD") })
}

func TestMustBool(t *testing.T) {
	c := New().Prefix("SCANNER_")
	t.Setenv("SCANNER_ENABLED", " true ")
	if !c.MustBool("ENABLED") {
		t.Fatalf("MustBool = false, want true")
	}
	kit.MustPanic(t, func() { _ = c.MustBool("ABSENT") })
	t.Setenv("SCANNER_ENABLED_BAD", "sure")
	kit.MustPanic(t, func() { _ = c.MustBool("ENABLED_BAD") })
}

func TestMustDuration(t *testing.T) {
	c := New().Prefix("SCANNER_")
	t.Setenv("SCANNER_INTERVAL", " 45s ")
	if got := c.MustDuration("INTERVAL"); got != 45*time.Second {
		t.Fatalf("MustDuration = %v", got)
	}
	t.Setenv("SCANNER_INTERVAL_BAD", "soon")
	kit.MustPanic(t, func() { _ = c.MustDuration("INTERVAL_BAD") })
}

func TestMustURL(t *testing.T) {
	c := New().Prefix("SOURCE_")
	t.Setenv("SOURCE_BASE", "https://api.resy.example/v3")
	if u := c.MustURL("BASE"); !u.IsAbs() || u.Host != "api.resy.example" {
		t.Fatalf("MustURL = %v", u)
	}
	t.Setenv("SOURCE_MANGLED", "://bad")
	kit.MustPanic(t, func() { _ = c.MustURL("MANGLED") })
	t.Setenv("SOURCE_RELATIVE", "/v3")
	kit.MustPanic(t, func() { _ = c.MustURL("RELATIVE") })
}

func TestMustPort(t *testing.T) {
	c := New().Prefix("API_")
	t.Setenv("API_PORT", "4000")
	if got := c.MustPort("PORT"); got != ":4000" {
		t.Fatalf("MustPort = %q", got)
	}
	t.Setenv("API_PORT_WORDS", "http")
	kit.MustPanic(t, func() { _ = c.MustPort("PORT_WORDS") })
	t.Setenv("API_PORT_RANGE", "70000")
	kit.MustPanic(t, func() { _ = c.MustPort("PORT_RANGE") })
}

func TestRequire(t *testing.T) {
	c := New().Prefix("REQ_")
	t.Setenv("REQ_PG_URL", "postgres://x")
	t.Setenv("REQ_CH_URL", "clickhouse://y")
	c.Require("PG_URL", "CH_URL")

	kit.MustPanic(t, func() { c.Require("PG_URL", "KAFKA_URL") })

	t.Setenv("REQ_BLANK", "   ")
	kit.MustPanic(t, func() { c.Require("BLANK") })
}

func TestMayString(t *testing.T) {
	c := New().Prefix("DW_")
	if got := c.MayString("ABSENT", "fallback"); got != "fallback" {
		t.Fatalf("default = %q", got)
	}
	t.Setenv("DW_MARKET", " nyc ")
	if got := c.MayString("MARKET", "sf"); got != "nyc" {
		t.Fatalf("value = %q", got)
	}
}

func TestMayInt(t *testing.T) {
	c := New().Prefix("FEED_")
	if got := c.MayInt("ABSENT", 50); got != 50 {
		t.Fatalf("default = %d", got)
	}
	t.Setenv("FEED_LIMIT", " 200 ")
	if got := c.MayInt("LIMIT", 0); got != 200 {
		t.Fatalf("value = %d", got)
	}
	t.Setenv("FEED_LIMIT_BAD", "lots")
	if got := c.MayInt("LIMIT_BAD", 25); got != 25 {
		t.Fatalf("bad value should fall back, got %d", got)
	}
}

func TestMayBool(t *testing.T) {
	c := New().Prefix("FEED_")
	if !c.MayBool("ABSENT", true) {
		t.Fatalf("default true expected")
	}
	t.Setenv("FEED_DEBUG", "true")
	if !c.MayBool("DEBUG", false) {
		t.Fatalf("value true expected")
	}
	t.Setenv("FEED_DEBUG_BAD", "yep?")
	if c.MayBool("DEBUG_BAD", false) {
		t.Fatalf("bad value should fall back to false")
	}
}

func TestMayDuration(t *testing.T) {
	c := New().Prefix("PRUNE_")
	if got := c.MayDuration("ABSENT", 5*time.Second); got != 5*time.Second {
		t.Fatalf("default = %v", got)
	}
	t.Setenv("PRUNE_EVERY", "12h")
	if got := c.MayDuration("EVERY", time.Second); got != 12*time.Hour {
		t.Fatalf("value = %v", got)
	}
	t.Setenv("PRUNE_EVERY_BAD", "later")
	if got := c.MayDuration("EVERY_BAD", time.Minute); got != time.Minute {
		t.Fatalf("bad value should fall back, got %v", got)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("SCANNER_")

	def := []string{"nyc", "la"}
	if got := c.MayCSV("ABSENT", def); len(got) != 2 || got[0] != "nyc" || got[1] != "la" {
		t.Fatalf("default = %#v", got)
	}

	t.Setenv("SCANNER_MARKETS", " nyc, chi , ,aus ,, ")
	got := c.MayCSV("MARKETS", nil)
	want := []string{"nyc", "chi", "aus"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%#v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	t.Setenv("SCANNER_MARKETS_EMPTY", " , ,  ,")
	if got := c.MayCSV("MARKETS_EMPTY", []string{"all"}); len(got) != 1 || got[0] != "all" {
		t.Fatalf("all-empty should fall back, got %#v", got)
	}
}

func TestMayEnum(t *testing.T) {
	c := New().Prefix("LOG_")

	if got := c.MayEnum("ABSENT", "json", "json", "console"); got != "json" {
		t.Fatalf("default = %q", got)
	}

	// matching is case-insensitive but the env value is returned as-is
	t.Setenv("LOG_FORMAT", "Console")
	if got := c.MayEnum("FORMAT", "json", "json", "console"); got != "Console" {
		t.Fatalf("value = %q", got)
	}

	t.Setenv("LOG_FORMAT_BAD", "xml")
	kit.MustPanic(t, func() { _ = c.MayEnum("FORMAT_BAD", "json", "json", "console") })

	if got := c.MayEnum("ABSENT", "", "json", "console"); got != "" {
		t.Fatalf("empty default should pass through, got %q", got)
	}
}
