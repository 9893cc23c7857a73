// Package config provides configuration helpers for the widget commands.
package config

import (
	"fmt"
	"os"
)

// Defaults shared by the commands.
const (
	DefaultWidgetPort = "8080"
	DefaultBridgePort = "3000"
	DefaultBridgeURL  = "http://localhost:3000"
	DefaultDataDir    = ".jewishdata"
)

// Env returns the value of an environment variable, or the fallback if unset.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GeminiAPIKey returns the Gemini API key from GEMINI_API_KEY.
// Exits with a usage hint if not set.
func GeminiAPIKey() string {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: GEMINI_API_KEY=... go run ./cmd/...")
		os.Exit(1)
	}
	return key
}

// DatabaseURL returns the archive Postgres DSN from DATABASE_URL.
// Exits with a usage hint if not set.
func DatabaseURL() string {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "Error: DATABASE_URL environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: DATABASE_URL=postgres://... go run ./cmd/bridge")
		os.Exit(1)
	}
	return dsn
}

// BridgeURL returns the archive bridge base URL from BRIDGE_URL or the default.
func BridgeURL() string {
	return Env("BRIDGE_URL", DefaultBridgeURL)
}

// DataDir returns the directory for persisted widget state
// (chat history, saved records, OAuth tokens).
func DataDir() string {
	if dir := os.Getenv("JEWISHDATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return home + "/" + DefaultDataDir
}
