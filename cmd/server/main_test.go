package main

import (
	"testing"

	"github.com/dkeye/watchparty/internal/config"
	"github.com/rs/zerolog"
)

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", "x.yaml"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := cmd.Flags().GetString("config"); got != "x.yaml" {
		t.Fatalf("config flag = %q", got)
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogger(&config.Config{Mode: "release", LogLevel: "warn"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %s", zerolog.GlobalLevel())
	}
	setupLogger(&config.Config{Mode: "release", LogLevel: "loud"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("fallback level = %s", zerolog.GlobalLevel())
	}
}
