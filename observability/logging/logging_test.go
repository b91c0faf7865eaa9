package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("staked", "prod", Options{Output: &buf})
	logger.Info("bonded", "op", "bond")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "op"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["message"] != "bonded" {
		t.Fatalf("unexpected line %v", line)
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

func TestSetupBridgesStdLog(t *testing.T) {
	var buf bytes.Buffer
	Setup("staked", "", Options{Output: &buf})
	log.Print("legacy line")
	if !strings.Contains(buf.String(), `"message":"legacy line"`) {
		t.Fatalf("std log not bridged: %s", buf.String())
	}
	if strings.Contains(buf.String(), `"env"`) {
		t.Fatalf("empty env must be omitted: %s", buf.String())
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

func TestSetupDevUsesText(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("staked", "dev", Options{Output: &buf, Level: slog.LevelDebug})
	logger.Debug("claim")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("dev output should be text, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "claim") {
		t.Fatalf("missing message: %s", buf.String())
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

func TestSetupMirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staked.log")
	logger := Setup("staked", "prod", Options{Output: &bytes.Buffer{}, File: path, MaxSizeMB: 1})
	logger.Warn("paused")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"severity":"WARN"`) {
		t.Fatalf("file sink missing line: %s", data)
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("staker", "nhb1abc"); attr.Value.String() != "nhb1abc" {
		t.Fatalf("staker is allowlisted: %v", attr)
	}
	if attr := MaskField("Request_ID", "r-1"); attr.Value.String() != "r-1" {
		t.Fatalf("allowlist is case-insensitive: %v", attr)
	}
	if attr := MaskField("authorization", "Bearer x"); attr.Value.String() != RedactedValue {
		t.Fatalf("authorization must be masked: %v", attr)
	}
	if MaskValue("  ") != "  " || MaskValue("secret") != RedactedValue {
		t.Fatalf("unexpected MaskValue behaviour")
	}
	keys := RedactionAllowlist()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("allowlist not sorted: %v", keys)
		}
	}
}
