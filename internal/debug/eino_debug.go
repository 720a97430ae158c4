package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/phuslu/log"

	"github.com/dyike/stella/config"
)

// EinoDebugger starts the eino devops server so compiled graphs can be
// inspected from the Eino Dev plugin. It must run before graphs compile.
type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize eino debug plugin: %w", err)
	}
	log.Info().Str("url", d.URL()).Msg("eino debug server started")
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) URL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
