package logger

import (
	"testing"
)

func TestNew_NormalizesLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "debug"},
		{" INFO ", "info"},
		{"warning", "warn"},
		{"", "info"},
		{"bogus", "info"},
		{"off", "off"},
		{"silent", "off"},
	}

	for _, tt := range tests {
		if got := New(tt.input).Level(); got != tt.want {
			t.Errorf("New(%q).Level() = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNilLogger_IsSafe(t *testing.T) {
	var l *Logger

	l.Tracef("trace %d", 0)
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	if l.Level() != "off" {
		t.Errorf("Expected nil logger level off, got %s", l.Level())
	}
}

func TestNop_DropsLines(t *testing.T) {
	l := Nop()
	if l.enabled() {
		t.Error("Expected nop logger to be disabled")
	}
	l.Infof("Round started: stream=%s", "s1")
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("trace") || !ValidLevel("ERROR") {
		t.Error("Expected known levels to be valid")
	}
	if ValidLevel("verbose") {
		t.Error("Expected unknown level to be invalid")
	}
}
