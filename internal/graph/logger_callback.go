package graph

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"github.com/dyike/stella/internal/models"
)

type startKey struct{}

// LoggerCallback logs node timings and routing decisions.
type LoggerCallback struct{}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	ev := log.Debug().Str("node", nodeName(info)).Dur("elapsed", elapsed(ctx))
	if s, ok := output.(*models.AgentState); ok {
		ev = ev.Str("id", s.ID).Str("task", s.TaskType.String())
	}
	ev.Msg("node finished")
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Error().Err(err).Str("node", nodeName(info)).Dur("elapsed", elapsed(ctx)).Msg("node failed")
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func nodeName(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	if info.Name != "" {
		return info.Name
	}
	return string(info.Component)
}

func elapsed(ctx context.Context) time.Duration {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}
