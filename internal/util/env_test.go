package util

import (
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PG_TEST_INT", "7")
	t.Setenv("PG_TEST_FLOAT", "0.9")
	t.Setenv("PG_TEST_BAD", "seven")
	t.Setenv("PG_TEST_BOOL", "true")
	t.Setenv("PG_TEST_DUR", "250ms")
	t.Setenv("PG_TEST_EMPTY", "")

	if got := GetEnvInt("PG_TEST_INT", 1); got != 7 {
		t.Errorf("GetEnvInt() = %d, want 7", got)
	}
	if got := GetEnvInt("PG_TEST_BAD", 3); got != 3 {
		t.Errorf("GetEnvInt(bad) = %d, want 3", got)
	}
	if got := GetEnvNumeric("PG_TEST_FLOAT", 0.5); got != 0.9 {
		t.Errorf("GetEnvNumeric() = %v, want 0.9", got)
	}
	if got := GetEnvBool("PG_TEST_BOOL", false); !got {
		t.Errorf("GetEnvBool() = false, want true")
	}
	if got := GetEnvDuration("PG_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration() = %v, want 250ms", got)
	}
	if got := GetEnvString("PG_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("GetEnvString(empty) = %q, want fallback", got)
	}
	if got := GetEnvString("PG_TEST_UNSET_KEY", "fallback"); got != "fallback" {
		t.Errorf("GetEnvString(unset) = %q, want fallback", got)
	}
}
