package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/agents"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/storage"
)

const defaultBatchConcurrency = 4

// Agent answers free-text financial queries.
type Agent struct {
	runnable         compose.Runnable[*models.AgentState, *models.AgentState]
	executors        *agents.Executors
	callback         *LoggerCallback
	recorder         Recorder
	batchConcurrency int
}

// Recorder receives every answered query.
type Recorder interface {
	Record(ctx context.Context, rec storage.QueryRecord) error
}

type Option func(*Agent)

// WithBatchConcurrency bounds how many batch queries run at once.
func WithBatchConcurrency(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.batchConcurrency = n
		}
	}
}

// WithRecorder logs every query and its response to r.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) {
		a.recorder = r
	}
}

func NewAgent(ctx context.Context, router *agents.Router, exec *agents.Executors, opts ...Option) (*Agent, error) {
	r, err := NewOrchestrator(ctx, router, exec)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	a := &Agent{
		runnable:         r,
		executors:        exec,
		callback:         &LoggerCallback{},
		batchConcurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run answers one query. It never fails: any error or panic becomes the
// generic processing message.
func (a *Agent) Run(ctx context.Context, req models.QueryRequest) (resp string) {
	id := uuid.NewString()
	start := time.Now()
	task := models.TaskUnknown
	status := storage.StatusDone
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("id", id).Str("panic", fmt.Sprint(r)).Msg("query panicked")
			resp = consts.MsgProcessingError
			status = storage.StatusError
		}
		a.record(ctx, storage.QueryRecord{
			ID:       id,
			Query:    req.Query,
			Source:   req.Source,
			Task:     task.String(),
			Response: resp,
			Status:   status,
			Elapsed:  time.Since(start),
		})
	}()

	if strings.TrimSpace(req.Query) == "" {
		status = storage.StatusError
		return consts.MsgProcessingError
	}

	state := models.NewAgentState(id, req)
	out, err := a.runnable.Invoke(ctx, state, compose.WithCallbacks(a.callback))
	if err != nil || out == nil {
		log.Error().Err(err).Str("id", id).Str("query", req.Query).Msg("error processing query")
		status = storage.StatusError
		return consts.MsgProcessingError
	}
	task = out.TaskType
	log.Info().Str("id", id).Str("task", task.String()).Dur("elapsed", time.Since(start)).Msg("query answered")
	return out.Response
}

func (a *Agent) record(ctx context.Context, rec storage.QueryRecord) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to record query")
	}
}

// RunBatch answers every query and returns responses in input order.
func (a *Agent) RunBatch(ctx context.Context, reqs []models.QueryRequest) []string {
	out := make([]string, len(reqs))
	var g errgroup.Group
	g.SetLimit(a.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = a.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Wait blocks until background work started by earlier queries is done.
func (a *Agent) Wait() {
	a.executors.Wait()
}
