package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/stella/config"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/storage"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "not set", maskSecret(""))
	assert.Equal(t, "********", maskSecret("short"))
	assert.Equal(t, "sk-a...yz", maskSecret("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestShowConfigHidesSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-super-secret-value"
	cfg.Providers.BraveAPIKey = "brave-secret-value"

	var buf bytes.Buffer
	showConfig(&buf, cfg)
	out := buf.String()
	assert.NotContains(t, out, "sk-super-secret-value")
	assert.NotContains(t, out, "brave-secret-value")
	assert.Contains(t, out, "deepseek")
}

func TestValidateConfigRequiresLLMKey(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = root + "/data"
	cfg.Cache.Dir = root + "/data"
	cfg.ReportsDir = root + "/reports"
	cfg.OverviewsDir = root + "/overviews"
	cfg.HistoryDir = root + "/history"

	var buf bytes.Buffer
	assert.Error(t, validateConfig(&buf, cfg))

	cfg.LLM.APIKey = "sk-test"
	require.NoError(t, validateConfig(&buf, cfg))
	assert.Contains(t, buf.String(), "3 warnings")
}

func TestSelectCompanies(t *testing.T) {
	got, err := selectCompanies(pregenCompanies, nil)
	require.NoError(t, err)
	assert.Len(t, got, len(pregenCompanies))

	got, err = selectCompanies(pregenCompanies, []string{"tesla", "005930.ks"})
	require.NoError(t, err)
	assert.Equal(t, []models.CompanyRef{
		{Name: "Tesla", Ticker: "TSLA"},
		{Name: "Samsung", Ticker: "005930.KS"},
	}, got)

	_, err = selectCompanies(pregenCompanies, []string{"Initech"})
	assert.Error(t, err)
}

func TestPregenOptions(t *testing.T) {
	var none pregenOptions
	assert.Error(t, none.normalize())

	all := pregenOptions{all: true}
	require.NoError(t, all.normalize())
	companies := pregenCompanies[:2]
	jobs := all.jobs(companies)
	require.Len(t, jobs, 8)
	assert.Equal(t, stageWarmup, jobs[0].stage)
	assert.Equal(t, stageHistory, jobs[2].stage)
	assert.Equal(t, stageReport, jobs[4].stage)
	assert.Equal(t, stageOverview, jobs[7].stage)
	assert.Equal(t, "AAPL", jobs[7].company.Ticker)

	reports := pregenOptions{reports: true}
	require.NoError(t, reports.normalize())
	assert.Len(t, reports.jobs(companies), 2)
}

func TestWarmupError(t *testing.T) {
	price := 182.5
	full := &models.Metrics{Ticker: "TSLA", CurrentPrice: &price}
	snap := models.HighlightsSnapshot{CurrentPrice: &price}

	assert.NoError(t, warmupError("TSLA", full, snap))

	err := warmupError("TSLA", &models.Metrics{Ticker: "TSLA"}, models.HighlightsSnapshot{})
	require.Error(t, err)
	assert.Equal(t, "no metrics or highlights for TSLA", err.Error())

	err = warmupError("TSLA", full, models.HighlightsSnapshot{})
	require.Error(t, err)
	assert.Equal(t, "no highlights for TSLA", err.Error())
}

func TestReadQueries(t *testing.T) {
	in := "1: Tesla\n\n# comment\n  What is the latest news on Apple?  \n5: AAPL MSFT\n"
	got, err := readQueries(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"1: Tesla", "What is the latest news on Apple?", "5: AAPL MSFT"}, got)
}

func TestWriteAnswersJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnswers(&buf, []string{"q"}, []string{"a"}, true))
	var one models.AnalysisResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &one))
	assert.Equal(t, "a", one.Result)

	buf.Reset()
	require.NoError(t, writeAnswers(&buf, []string{"q1", "q2"}, []string{"a1", "a2"}, true))
	var many []models.AnalysisResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &many))
	assert.Equal(t, []models.AnalysisResponse{{Result: "a1"}, {Result: "a2"}}, many)
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, nil, false))
	assert.Contains(t, buf.String(), "No queries recorded yet.")

	buf.Reset()
	recs := []storage.QueryWithMeta{{
		QueryRecord: storage.QueryRecord{ID: "x", Query: "1: Tesla", Task: "report", Status: storage.StatusDone, Elapsed: time.Second},
		RowID:       7,
		CreatedAt:   "2025-03-14 10:00:00",
	}}
	require.NoError(t, writeHistory(&buf, recs, false))
	assert.Contains(t, buf.String(), "1: Tesla")
	assert.Contains(t, buf.String(), "--cursor 7")

	buf.Reset()
	require.NoError(t, writeHistory(&buf, recs, true))
	assert.Contains(t, buf.String(), `"cursor": 7`)
}

type fakeAsker struct {
	calls   []string
	history [][]models.ChatTurn
	err     error
}

func (f *fakeAsker) Ask(_ context.Context, query string, history []models.ChatTurn) (string, error) {
	f.calls = append(f.calls, query)
	f.history = append(f.history, history)
	if f.err != nil {
		return "", f.err
	}
	return "answer to " + query, nil
}

func TestChatSessionKeepsRecentTurns(t *testing.T) {
	a := &fakeAsker{}
	var buf bytes.Buffer
	s := newChatSession(a, &buf)
	ctx := context.Background()

	for i := 0; i < maxChatTurns+2; i++ {
		assert.False(t, s.handle(ctx, "query "+string(rune('a'+i))))
	}
	assert.Len(t, s.history, maxChatTurns)
	assert.Equal(t, "query c", s.history[0].Query)
	assert.Len(t, a.history[len(a.history)-1], maxChatTurns)

	assert.False(t, s.handle(ctx, "clear"))
	assert.Empty(t, s.history)

	assert.False(t, s.handle(ctx, "   "))
	assert.True(t, s.handle(ctx, "EXIT"))
	assert.Len(t, a.calls, maxChatTurns+2)
}

func TestChatSessionShowsErrors(t *testing.T) {
	a := &fakeAsker{err: errors.New("server returned 502 Bad Gateway")}
	var buf bytes.Buffer
	s := newChatSession(a, &buf)

	assert.False(t, s.handle(context.Background(), "2: Apple"))
	assert.Contains(t, buf.String(), "502 Bad Gateway")
	assert.Empty(t, s.history)
}

func TestRemoteAsker(t *testing.T) {
	var got models.QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.AnalysisResponse{Result: "Apple overview"})
	}))
	defer srv.Close()

	a := newRemoteAsker(srv.URL+"/", 5*time.Second)
	history := []models.ChatTurn{{Query: "hi", Response: "hello"}}
	out, err := a.Ask(context.Background(), "2: Apple", history)
	require.NoError(t, err)
	assert.Equal(t, "Apple overview", out)
	assert.Equal(t, "interactive", got.Source)
	assert.Equal(t, history, got.ChatHistory)
}

func TestRemoteAskerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newRemoteAsker(srv.URL, time.Second).Ask(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STELLA_CONFIG", "")

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "stella dev\n", buf.String())
}

func TestAskRequiresQueryOrFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STELLA_CONFIG", "")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ask"})
	assert.Error(t, cmd.Execute())
}
