package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"outbreak/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tcs := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tc := range tcs {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "simulate": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing %q command", name)
		}
	}
}

func TestSimulateCommand(t *testing.T) {
	t.Setenv("OUTBREAK_LOG_LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"simulate", "--players", "4", "--games", "2", "--seed", "9", "--vote-timeout", "20ms"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if got := strings.Count(out.String(), "game "); got != 2 {
		t.Fatalf("expected two game summaries, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Win after") {
		t.Fatalf("expected a result line, got:\n%s", out.String())
	}
}
