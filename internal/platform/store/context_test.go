package store

import (
	"context"
	"testing"
)

func TestTenantID(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		ctx := WithTenant(context.Background(), "resy-us")
		id, ok := TenantID(ctx)
		if !ok || id != "resy-us" {
			t.Fatalf("TenantID = %q ok=%v", id, ok)
		}
	})

	t.Run("empty value reads as absent", func(t *testing.T) {
		t.Parallel()
		id, ok := TenantID(WithTenant(context.Background(), ""))
		if ok || id != "" {
			t.Fatalf("TenantID = %q ok=%v, want absent", id, ok)
		}
	})

	t.Run("absent on a bare context", func(t *testing.T) {
		t.Parallel()
		if id, ok := TenantID(context.Background()); ok || id != "" {
			t.Fatalf("TenantID = %q ok=%v", id, ok)
		}
	})

	t.Run("parent context untouched", func(t *testing.T) {
		t.Parallel()
		base := context.Background()
		_ = WithTenant(base, "resy-us")
		if id, ok := TenantID(base); ok || id != "" {
			t.Fatalf("tenant leaked into the parent: %q", id)
		}
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		id, ok := RequestID(WithRequestID(context.Background(), "req-scan-7"))
		if !ok || id != "req-scan-7" {
			t.Fatalf("RequestID = %q ok=%v", id, ok)
		}
	})

	t.Run("empty value reads as absent", func(t *testing.T) {
		t.Parallel()
		if id, ok := RequestID(WithRequestID(context.Background(), "")); ok || id != "" {
			t.Fatalf("RequestID = %q ok=%v", id, ok)
		}
	})

	t.Run("absent on a bare context", func(t *testing.T) {
		t.Parallel()
		if id, ok := RequestID(context.Background()); ok || id != "" {
			t.Fatalf("RequestID = %q ok=%v", id, ok)
		}
	})
}

func TestContextKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	ctx := WithRequestID(WithTenant(context.Background(), "resy-us"), "req-scan-7")

	if id, ok := TenantID(ctx); !ok || id != "resy-us" {
		t.Fatalf("TenantID = %q ok=%v", id, ok)
	}
	if id, ok := RequestID(ctx); !ok || id != "req-scan-7" {
		t.Fatalf("RequestID = %q ok=%v", id, ok)
	}
}
