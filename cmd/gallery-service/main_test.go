package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger_ParsesLevel(t *testing.T) {
	previous := log.GetLevel()
	defer log.SetLevel(previous)

	setupLogger("debug")
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	setupLogger("warn")
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
}

func TestSetupLogger_FallsBackToInfo(t *testing.T) {
	previous := log.GetLevel()
	defer log.SetLevel(previous)

	setupLogger("chatty")
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", log.GetLevel())
	}
}
