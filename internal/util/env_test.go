package util

import (
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TRACKER_TEST_VALUE", "")
	if got := EnvOrDefault("TRACKER_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("TRACKER_TEST_VALUE", "set")
	if got := EnvOrDefault("TRACKER_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestEnvIntOrDefault(t *testing.T) {
	t.Setenv("TRACKER_TEST_INT", "12")
	if got := EnvIntOrDefault("TRACKER_TEST_INT", 3); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	t.Setenv("TRACKER_TEST_INT", "twelve")
	if got := EnvIntOrDefault("TRACKER_TEST_INT", 3); got != 3 {
		t.Fatalf("expected fallback, got %d", got)
	}
}

func TestEnvDurationOrDefault(t *testing.T) {
	t.Setenv("TRACKER_TEST_DURATION", "90s")
	if got := EnvDurationOrDefault("TRACKER_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv("TRACKER_TEST_DURATION", "soon")
	if got := EnvDurationOrDefault("TRACKER_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
