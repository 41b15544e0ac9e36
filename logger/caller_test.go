package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"bookflow/logger"
)

func TestCallerPointsAtCallSite(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := logger.Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("feed").WithFields(logger.Fields{"session": "s1"}).Info("subscribed")

	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid json output %q: %v", buf.String(), err)
	}
	file, _ := out["file"].(string)
	if !strings.HasPrefix(file, "caller_test.go:") {
		t.Fatalf("caller = %q, want this test file", file)
	}
	if out["component"] != "feed" {
		t.Fatalf("component = %v", out["component"])
	}
}
