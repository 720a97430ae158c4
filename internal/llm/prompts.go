package llm

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed prompts
var promptFiles embed.FS

// Prompt names, one markdown file each under prompts/.
const (
	PromptRouter             = "router"
	PromptExtractCompany     = "extract_company"
	PromptExtractCompanies   = "extract_companies"
	PromptReport             = "report"
	PromptOverview           = "overview"
	PromptOverviewFromReport = "overview_from_report"
	PromptNewsSummary        = "news_summary"
	PromptHighlightsSummary  = "highlights_summary"
)

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(name string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return string(content), nil
}

// Render fills a named prompt with vars using Go template syntax.
func Render(ctx context.Context, name string, vars map[string]any) (string, error) {
	content, err := LoadPrompt(name)
	if err != nil {
		return "", err
	}
	tpl := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(content))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("prompt %s rendered no messages", name)
	}
	return msgs[0].Content, nil
}
