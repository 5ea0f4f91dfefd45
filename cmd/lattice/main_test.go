package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("lattice %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func TestIngestThenStatus(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "lattice.db")
	artifact := filepath.Join(dir, "artifact.json")
	content := `{"url": "https://one.example/a",
		"body": "the broker fixer@relay.example moved funds",
		"report_id": "20250401_0900_alpha",
		"trust_tier": "trusted",
		"collected_at": "2025-04-01T00:00:00Z"}`
	if err := os.WriteFile(artifact, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCLI(t, "--db", db, "ingest", artifact)
	if !strings.Contains(out, "Created:     1") {
		t.Errorf("ingest output:\n%s", out)
	}

	out = runCLI(t, "--db", db, "status")
	if !strings.Contains(out, "20250401_0900_alpha") || !strings.Contains(out, "osint_20250401_0900") {
		t.Errorf("status output:\n%s", out)
	}

	out = runCLI(t, "--db", db, "entities")
	if !strings.Contains(out, "email:fixer@relay.example") {
		t.Errorf("entities output:\n%s", out)
	}

	out = runCLI(t, "--db", db, "entities", "--id", "email:fixer@relay.example")
	if !strings.Contains(out, "Mentions:  1") {
		t.Errorf("entity inspect output:\n%s", out)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "lattice.db")
	src := filepath.Join(dir, "artifacts")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `[{"url": "https://a.example", "body": "alpha", "report_id": "20250401_0900_alpha"},
	             {"url": "https://b.example", "body": "beta", "report_id": "20250401_0900_alpha"}]`
	if err := os.WriteFile(filepath.Join(src, "batch.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCLI(t, "--db", db, "ingest", src)
	if !strings.Contains(out, "Created:     2") {
		t.Errorf("ingest dir output:\n%s", out)
	}
}
