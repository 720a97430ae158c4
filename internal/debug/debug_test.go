package debug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dyike/stella/config"
)

func TestDisabledDebuggerIsNoop(t *testing.T) {
	cfg := config.DefaultConfig()
	d := NewEinoDebugger(cfg)

	assert.False(t, d.IsEnabled())
	assert.Empty(t, d.URL())
	assert.NoError(t, d.Initialize(context.Background()))
}

func TestDebuggerURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 52538
	assert.Equal(t, "http://localhost:52538", NewEinoDebugger(cfg).URL())
}
