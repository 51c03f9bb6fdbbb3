package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Output = &buf
	opts.Level = level
	return New(opts), &buf
}

func TestLogger_WritesJSONWithFields(t *testing.T) {
	log, buf := newBuffered(LevelInfo)

	log.With(RunID("r1")).Info("import finished", Rows(3), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "import finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_RespectsLevel(t *testing.T) {
	log, buf := newBuffered(LevelWarn)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.WithLevel(LevelDebug).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestContextPropagation(t *testing.T) {
	log, _ := newBuffered(LevelInfo)
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
