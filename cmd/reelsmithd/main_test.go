package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunStartsAndStopsCleanly(t *testing.T) {
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
`,
		filepath.Join(base, "staging"),
		filepath.Join(base, "reels"),
		filepath.Join(base, "logs"),
	)
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := run(ctx, configPath, &out); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "listening on 127.0.0.1:") {
		t.Fatalf("missing listen banner: %q", out.String())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	base := t.TempDir()
	shared := filepath.Join(base, "shared")
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
log_dir = %q
`, shared, shared, filepath.Join(base, "logs"))
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := run(context.Background(), configPath, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error when staging and library share a directory")
	}
}
