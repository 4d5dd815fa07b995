package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	for _, k := range []string{"PORT", "LOG_LEVEL", "TURN_MODE", "TURN_SILENCE_NORMAL", "TURN_DENYLIST", "DEEPGRAM_MODEL"} {
		t.Setenv(k, "")
	}

	c := Load(nil)

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Turn.SilenceNormal != 4500*time.Millisecond {
		t.Fatalf("expected 4.5s silence threshold, got %v", c.Turn.SilenceNormal)
	}
	if c.Turn.Watchdog != 30*time.Second || c.Turn.EchoCooldown != 5*time.Second {
		t.Fatalf("unexpected turn timings %+v", c.Turn)
	}
	if c.Deepgram.Model != "nova-2" {
		t.Fatalf("expected default model, got %q", c.Deepgram.Model)
	}
	if len(c.Turn.Denylist) != 0 {
		t.Fatalf("expected empty denylist override, got %v", c.Turn.Denylist)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TURN_SILENCE_NORMAL", "3s")
	t.Setenv("TURN_DENYLIST", "thanks for watching | like and subscribe, folks")

	c := Load(nil)

	if c.Server.Port != "9000" {
		t.Fatalf("expected env port, got %q", c.Server.Port)
	}
	if c.Turn.SilenceNormal != 3*time.Second {
		t.Fatalf("expected 3s, got %v", c.Turn.SilenceNormal)
	}
	if len(c.Turn.Denylist) != 2 || c.Turn.Denylist[1] != "like and subscribe, folks" {
		t.Fatalf("unexpected denylist %q", c.Turn.Denylist)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	fs := Flags()
	if err := fs.Parse([]string{"--port", "7070", "--mode", "dictation", "-l", "debug"}); err != nil {
		t.Fatal(err)
	}

	c := Load(fs)

	if c.Server.Port != "7070" {
		t.Fatalf("expected flag port, got %q", c.Server.Port)
	}
	if c.Turn.Mode != "dictation" || c.Server.LogLevel != "debug" {
		t.Fatalf("flags not applied: mode=%q log=%q", c.Turn.Mode, c.Server.LogLevel)
	}
}
