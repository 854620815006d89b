package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// LevelEnv overrides the log level for processes that don't take flags, like
// test binaries.
const LevelEnv = "CKPTSINK_LOG_LEVEL"

var globalLevel = &slog.LevelVar{}

func SetLevel(level slog.Level) {
	globalLevel.Set(level)
}

// SetLevelText sets the level from a name like "debug" or "warn".
func SetLevelText(text string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", text, err)
	}
	SetLevel(level)
	return nil
}

// SetLevelFromEnv applies LevelEnv when it is set.
func SetLevelFromEnv() error {
	if text := os.Getenv(LevelEnv); text != "" {
		return SetLevelText(text)
	}
	return nil
}
