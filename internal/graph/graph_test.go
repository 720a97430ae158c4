package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/agents"
	"github.com/dyike/stella/internal/llm"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/pool"
	"github.com/dyike/stella/internal/storage"
)

type stubMarket struct{}

func (stubMarket) GetMetrics(ctx context.Context, ticker string) *models.Metrics {
	return &models.Metrics{Ticker: ticker}
}

func (stubMarket) GetStockHighlights(ctx context.Context, ticker string) models.HighlightsSnapshot {
	return models.HighlightsSnapshot{}
}

func (stubMarket) LivePrice(ctx context.Context, ticker string) *float64 { return nil }

func (stubMarket) DisplayName(ctx context.Context, ticker string) string { return ticker }

type stubNews struct {
	mu        sync.Mutex
	companies []string
	panicOn   string
}

func (n *stubNews) CompanyNews(ctx context.Context, company string) []string {
	if company == n.panicOn {
		panic("feed exploded")
	}
	n.mu.Lock()
	n.companies = append(n.companies, company)
	n.mu.Unlock()
	return []string{company + " headline: details"}
}

func (n *stubNews) GeneralNews(ctx context.Context, topic string) []string {
	return []string{"topic " + topic}
}

func (n *stubNews) RecentNews(ctx context.Context, ticker, company string) []string {
	return []string{}
}

type clock struct{}

func (clock) Now() time.Time { return time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC) }

func newTestAgent(t *testing.T, gen llm.Generator, feed *stubNews) *Agent {
	t.Helper()
	root := t.TempDir()
	docs := agents.NewDocumentStore(filepath.Join(root, "reports"), filepath.Join(root, "overviews"))
	exec := agents.NewExecutors(stubMarket{}, feed, gen, docs, pool.New(4), clock{})
	a, err := NewAgent(context.Background(), agents.NewRouter(gen), exec, WithBatchConcurrency(3))
	require.NoError(t, err)
	return a
}

func TestRunInteractiveCompanyNews(t *testing.T) {
	var calls int
	var mu sync.Mutex
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "- Tesla bullet", nil
	})
	feed := &stubNews{}
	a := newTestAgent(t, gen, feed)

	out := a.Run(context.Background(), models.QueryRequest{
		Query:  "3: What is the latest news on Tesla",
		Source: "interactive",
	})
	assert.Equal(t, "- Tesla bullet", out)
	assert.Equal(t, []string{"Tesla"}, feed.companies)
	assert.Equal(t, 1, calls)
}

func TestRunShortCircuitsWithoutCompany(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "None", nil
	})
	feed := &stubNews{}
	a := newTestAgent(t, gen, feed)

	out := a.Run(context.Background(), models.QueryRequest{Query: "2: overview of something vague"})
	assert.Equal(t, consts.MsgNoCompany, out)
	assert.Empty(t, feed.companies)
}

func TestRunFallsBackToGeneralNews(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model down")
	})
	a := newTestAgent(t, gen, &stubNews{})

	out := a.Run(context.Background(), models.QueryRequest{Query: "MSFT"})
	assert.Equal(t, "topic MSFT", out)
}

func TestRunRecoversFromExecutorPanic(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "unused", nil
	})
	a := newTestAgent(t, gen, &stubNews{panicOn: "Tesla"})

	out := a.Run(context.Background(), models.QueryRequest{Query: "3: news on tesla"})
	assert.Equal(t, consts.MsgProcessingError, out)
}

func TestRunRejectsBlankQuery(t *testing.T) {
	a := newTestAgent(t, llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", nil
	}), &stubNews{})
	assert.Equal(t, consts.MsgProcessingError, a.Run(context.Background(), models.QueryRequest{Query: "  "}))
}

func TestRunBatchPreservesOrder(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model down")
	})
	a := newTestAgent(t, gen, &stubNews{panicOn: "Apple"})

	var reqs []models.QueryRequest
	for i := 0; i < 10; i++ {
		reqs = append(reqs, models.QueryRequest{Query: fmt.Sprintf("4: topic-%d", i)})
	}
	reqs[4] = models.QueryRequest{Query: "3: news on apple"}

	out := a.RunBatch(context.Background(), reqs)
	require.Len(t, out, len(reqs))
	for i, resp := range out {
		if i == 4 {
			assert.Equal(t, consts.MsgProcessingError, resp)
			continue
		}
		assert.Equal(t, fmt.Sprintf("topic topic-%d", i), resp)
	}
}

func TestTaskHandOff(t *testing.T) {
	next, err := taskHandOff(context.Background(), &models.AgentState{Resolved: true, TaskType: models.TaskReport})
	require.NoError(t, err)
	assert.Equal(t, compose.END, next)

	next, _ = taskHandOff(context.Background(), &models.AgentState{TaskType: models.TaskHighlights})
	assert.Equal(t, consts.Highlights, next)

	next, _ = taskHandOff(context.Background(), &models.AgentState{})
	assert.Equal(t, consts.GeneralNews, next)
}

type memRecorder struct {
	mu   sync.Mutex
	recs []storage.QueryRecord
}

func (r *memRecorder) Record(ctx context.Context, rec storage.QueryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func TestRunRecordsQueries(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model down")
	})
	root := t.TempDir()
	docs := agents.NewDocumentStore(filepath.Join(root, "reports"), filepath.Join(root, "overviews"))
	exec := agents.NewExecutors(stubMarket{}, &stubNews{panicOn: "Tesla"}, gen, docs, pool.New(2), clock{})
	rec := &memRecorder{}
	a, err := NewAgent(context.Background(), agents.NewRouter(gen), exec, WithRecorder(rec))
	require.NoError(t, err)

	a.Run(context.Background(), models.QueryRequest{Query: "4: rates", Source: "api"})
	a.Run(context.Background(), models.QueryRequest{Query: "3: news on tesla"})

	require.Len(t, rec.recs, 2)
	assert.Equal(t, "general_news", rec.recs[0].Task)
	assert.Equal(t, "topic rates", rec.recs[0].Response)
	assert.Equal(t, storage.StatusDone, rec.recs[0].Status)
	assert.Equal(t, "api", rec.recs[0].Source)
	assert.Equal(t, storage.StatusError, rec.recs[1].Status)
	assert.Equal(t, consts.MsgProcessingError, rec.recs[1].Response)
	assert.NotEqual(t, rec.recs[0].ID, rec.recs[1].ID)
}
