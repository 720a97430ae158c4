package agents

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/phuslu/log"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/llm"
	"github.com/dyike/stella/internal/models"
)

var (
	prefixPattern    = regexp.MustCompile(`(?s)^(\d):\s*(.*)`)
	taskDigitPattern = regexp.MustCompile(`[1-5]`)
	tickerPattern    = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	companyLine      = regexp.MustCompile(`(?i)company:\s*([^,]+?)\s*(?:,\s*ticker:\s*([A-Za-z0-9.\-]+))?\s*\.?\s*$`)
	newsLeadIn       = regexp.MustCompile(`(?i)what is the latest news on`)
)

// Router classifies queries and extracts the entities each task needs.
type Router struct {
	gen llm.Generator
}

func NewRouter(gen llm.Generator) *Router {
	return &Router{gen: gen}
}

// Route is the first graph node. It fills the task and entities, or
// resolves the request outright when a required entity is missing.
func (r *Router) Route(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	log.Info().Str("id", s.ID).Str("query", s.Query).Msg("processing query")

	s.TaskType, s.Query = r.Classify(ctx, s.Query)

	switch s.TaskType {
	case models.TaskReport, models.TaskOverview, models.TaskCompanyNews:
		s.Company = r.ExtractCompany(ctx, s.Query)
		if s.Company == nil {
			s.Response = consts.MsgNoCompany
			s.Resolved = true
		}
	case models.TaskGeneralNews:
		s.Topic = NewsTopic(s.Query)
	case models.TaskHighlights:
		s.Companies = r.ExtractCompanies(ctx, s.Query)
		if len(s.Companies) == 0 {
			s.Response = consts.MsgNoCompanies
			s.Resolved = true
		}
	}

	ev := log.Info().Str("id", s.ID).Str("task", s.TaskType.String())
	if s.Company != nil {
		ev = ev.Str("company", s.Company.Name).Str("ticker", s.Company.Ticker)
	}
	ev.Int("companies", len(s.Companies)).Bool("resolved", s.Resolved).Msg("routed query")
	return s, nil
}

// Classify honours an explicit "N: " prefix and otherwise asks the model.
// It returns the task and the query with the prefix removed. Failures
// default to general news.
func (r *Router) Classify(ctx context.Context, query string) (models.TaskType, string) {
	if m := prefixPattern.FindStringSubmatch(query); m != nil {
		if t, ok := models.ParseTaskType(m[1]); ok {
			log.Info().Str("task", t.String()).Msg("extracted task type from prefix")
			return t, strings.TrimSpace(m[2])
		}
	}

	start := time.Now()
	prompt, err := llm.Render(ctx, llm.PromptRouter, map[string]any{"query": query})
	if err != nil {
		log.Error().Err(err).Msg("error in router classification")
		return models.TaskGeneralNews, query
	}
	out, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("error in router classification")
		return models.TaskGeneralNews, query
	}
	t, ok := models.ParseTaskType(taskDigitPattern.FindString(out))
	if !ok {
		log.Warn().Str("output", out).Msg("unrecognised classification")
		return models.TaskGeneralNews, query
	}
	log.Info().Str("task", t.String()).Dur("elapsed", time.Since(start)).Msg("classified task type")
	return t, query
}

// ExtractCompany finds one company: first from the known table, then from
// the model's "Company: X, Ticker: Y" answer.
func (r *Router) ExtractCompany(ctx context.Context, query string) *models.CompanyRef {
	if known := matchKnown(query); len(known) > 0 {
		ref := known[0]
		log.Debug().Str("company", ref.Name).Str("ticker", ref.Ticker).Msg("extracted company from table")
		return &ref
	}

	prompt, err := llm.Render(ctx, llm.PromptExtractCompany, map[string]any{"query": query})
	if err != nil {
		log.Error().Err(err).Msg("error extracting company")
		return nil
	}
	out, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("error extracting company")
		return nil
	}
	ref := parseCompanyLine(out)
	if ref != nil {
		log.Debug().Str("company", ref.Name).Str("ticker", ref.Ticker).Msg("extracted company via llm")
	}
	return ref
}

func parseCompanyLine(out string) *models.CompanyRef {
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(out, "None") {
		return nil
	}
	m := companyLine.FindStringSubmatch(out)
	if m == nil {
		return nil
	}
	name := strings.Trim(strings.TrimSpace(m[1]), `'"`)
	if name == "" {
		return nil
	}
	ticker := strings.ToUpper(strings.TrimRight(m[2], "."))
	if ticker == "" {
		ticker = strings.ToUpper(name)
	}
	return &models.CompanyRef{Name: name, Ticker: ticker}
}

// ExtractCompanies finds every company for the highlights task: known
// names, then upper-case ticker-like words, then the model as a last
// resort. Tickers are unique and upper-case in the result.
func (r *Router) ExtractCompanies(ctx context.Context, query string) []models.CompanyRef {
	seen := map[string]bool{}
	var out []models.CompanyRef
	add := func(ref models.CompanyRef) {
		ref.Ticker = strings.ToUpper(strings.TrimSpace(ref.Ticker))
		ref.Name = strings.TrimSpace(ref.Name)
		if ref.Ticker == "" || ref.Name == "" || seen[ref.Ticker] {
			return
		}
		seen[ref.Ticker] = true
		out = append(out, ref)
	}

	for _, ref := range matchKnown(query) {
		add(ref)
	}
	for _, word := range tickerPattern.FindAllString(query, -1) {
		if ref, ok := knownByTicker(word); ok {
			add(ref)
			continue
		}
		add(models.CompanyRef{Name: word, Ticker: word})
	}
	if len(out) > 0 {
		log.Debug().Int("companies", len(out)).Msg("extracted companies from query text")
		return out
	}

	prompt, err := llm.Render(ctx, llm.PromptExtractCompanies, map[string]any{"query": query})
	if err != nil {
		log.Error().Err(err).Msg("error extracting companies")
		return nil
	}
	raw, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("error extracting companies")
		return nil
	}
	for _, ref := range parseCompanyList(raw) {
		add(ref)
	}
	return out
}

// parseCompanyList decodes the model's JSON list, repairing common damage
// and dropping entries without both keys.
func parseCompanyList(raw string) []models.CompanyRef {
	raw = strings.TrimSpace(raw)
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		repaired, rerr := jsonrepair.RepairJSON(raw)
		if rerr != nil {
			log.Error().Err(rerr).Str("raw", raw).Msg("json decode error in llm extract")
			return nil
		}
		if err := json.Unmarshal([]byte(repaired), &entries); err != nil {
			log.Error().Err(err).Str("raw", raw).Msg("json decode error in llm extract")
			return nil
		}
	}

	var out []models.CompanyRef
	for _, e := range entries {
		name, okName := e["company"].(string)
		ticker, okTicker := e["ticker"].(string)
		if !okName || !okTicker {
			log.Error().Interface("entry", e).Msg("invalid llm company entry")
			continue
		}
		out = append(out, models.CompanyRef{Name: name, Ticker: ticker})
	}
	return out
}

// NewsTopic strips the stock lead-in phrase from a general-news query.
func NewsTopic(query string) string {
	return strings.TrimSpace(newsLeadIn.ReplaceAllString(query, ""))
}
