package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")
	if p, err := Port("TEST_PORT", "1"); err != nil || p != "8080" {
		t.Fatalf("expected 8080, got %q (%v)", p, err)
	}
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "1"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DURATION", "250ms")
	t.Setenv("TEST_SECONDS", "3")
	t.Setenv("TEST_LIST", " a, ,b ,c")

	if got := Int("TEST_INT", 1); got != 42 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Int("TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatal("Bool: expected true")
	}
	if Bool("TEST_MISSING_BOOL", false) {
		t.Fatal("Bool: expected fallback false")
	}
	if got := Duration("TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Fatalf("Duration: got %s", got)
	}
	if got := Duration("TEST_SECONDS", time.Second); got != 3*time.Second {
		t.Fatalf("Duration seconds: got %s", got)
	}
	if got := List("TEST_LIST", ""); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("List: got %v", got)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOTENV_ONLY=from-file\nDOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOTENV_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENV_ONLY") })

	if err := LoadDotenv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv failed: %v", err)
	}
	if got := os.Getenv("DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("DOTENV_SET"); got != "from-env" {
		t.Fatalf("environment must win over .env, got %q", got)
	}
}
