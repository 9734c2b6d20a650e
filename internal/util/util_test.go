package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LEADPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("LEADPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("LEADPIPE_TEST_INT", "42")
	if got := ParseIntEnv("LEADPIPE_TEST_INT", 1); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	t.Setenv("LEADPIPE_TEST_INT", "forty")
	if got := ParseIntEnv("LEADPIPE_TEST_INT", 1); got != 1 {
		t.Errorf("got %d, want default 1", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("LEADPIPE_TEST_DUR", "7")
	if got := ParseDurationEnv("LEADPIPE_TEST_DUR", time.Second); got != 7*time.Second {
		t.Errorf("got %v, want 7s", got)
	}
	t.Setenv("LEADPIPE_TEST_DUR", "1500ms")
	if got := ParseDurationEnv("LEADPIPE_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("got %v, want 1.5s", got)
	}
	t.Setenv("LEADPIPE_TEST_DUR", "soon")
	if got := ParseDurationEnv("LEADPIPE_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("got %v, want default", got)
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("LEADPIPE_TEST_STR", "  ")
	if got := GetenvDefault("LEADPIPE_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestRedactPhone(t *testing.T) {
	if got := RedactPhone("+971501234567"); got != "+97150...567" {
		t.Errorf("RedactPhone() = %q", got)
	}
	if got := RedactPhone("12345"); got != "***" {
		t.Errorf("short numbers must be fully hidden, got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret(""); got != "NOT SET" {
		t.Errorf("got %q", got)
	}
	if got := MaskSecret("short"); got != "****" {
		t.Errorf("got %q", got)
	}
	if got := MaskSecret("AC1234567890abcd"); got != "AC12...abcd" {
		t.Errorf("got %q", got)
	}
}
