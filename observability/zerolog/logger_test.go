package zerolog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/Swind/go-task-kernel/core"
	zl "github.com/rs/zerolog"
)

// TestLogger_EmitsStructuredFields verifies the facade-to-zerolog binding
// Given: A logger writing JSON to a buffer
// When: A message with fields is logged
// Then: The JSON line carries the level, message and fields
func TestLogger_EmitsStructuredFields(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := New(zl.New(&buf))

	// Act
	logger.Warn("nudger was closed", core.F("fd", 7))

	// Assert
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["level"] != "warn" {
		t.Errorf("level = %v, want warn", line["level"])
	}
	if line["message"] != "nudger was closed" {
		t.Errorf("message = %v", line["message"])
	}
	if line["fd"] != float64(7) {
		t.Errorf("fd = %v, want 7", line["fd"])
	}
}

// TestLogger_LevelFiltering verifies that the wrapped logger's level applies
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(zl.New(&buf).Level(zl.InfoLevel))

	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug line should be filtered, got %q", buf.String())
	}

	logger.Error("kept")
	if buf.Len() == 0 {
		t.Fatal("error line should pass the level filter")
	}
}
