package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWriterEmitsJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupWriter(Config{Level: "debug", Format: "json"}, &buf); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := WithComponent("billing")
	logger.Info().Str("billing_id", "bill-1").Msg("created")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "billing" || line["billing_id"] != "bill-1" || line["message"] != "created" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := SetupWriter(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown level to be rejected")
	}
}
