package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestChainedFieldsKeepComponent(t *testing.T) {
	entry := Logger().WithComponent("feed").WithFields(Fields{"instrument": "PI_XBTUSD"})
	if entry.Entry.Data["component"] != "feed" || entry.Entry.Data["instrument"] != "PI_XBTUSD" {
		t.Fatalf("unexpected fields: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	if err := Logger().Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := Logger()
	if err := log.Configure("error", "text", "stderr", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "bookflow.log")

	if err := Logger().Configure("info", "json", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := Logger().Configure("info", "json", path, 7); err != nil {
		t.Fatalf("configure rotating: %v", err)
	}
}

func TestJSONOutputFieldNames(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("feed").Info("hello")

	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "level", "message", "component"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing %q in %v", key, out)
		}
	}
}
