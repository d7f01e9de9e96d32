package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	InitLogger("info", "json", zapcore.AddSync(&buf))
	t.Cleanup(func() { InitLogger("info", "console", nil) })

	GetLogger().With("component", "test").Info("hello", "domain", "us1")
	GetLogger().Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"domain":"us1"`)
	assert.NotContains(t, out, "hidden")
}

func TestParseLevel(t *testing.T) {
	lvl, ok := parseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, ok = parseLevel("loud")
	assert.False(t, ok)

	_, ok = parseLevel("")
	assert.False(t, ok)
}

func TestOrDefault(t *testing.T) {
	assert.NotNil(t, OrDefault(nil))
	nop := NewNop()
	assert.Equal(t, nop, OrDefault(nop))
	assert.NotNil(t, ForComponent(nil, "x"))
}
