package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/dyike/stella/config"
	"github.com/dyike/stella/internal/app"
	"github.com/dyike/stella/internal/models"
)

const maxChatTurns = 10

type chatOptions struct {
	serverURL string
}

// asker answers one interactive query given the prior turns.
type asker interface {
	Ask(ctx context.Context, query string, history []models.ChatTurn) (string, error)
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts.cfg, co, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&co.serverURL, "server", "", "Send queries to a running stella server instead of a local engine")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, co chatOptions, out io.Writer) error {
	var a asker
	if co.serverURL != "" {
		a = newRemoteAsker(co.serverURL, cfg.LLMTimeout()+cfg.HTTPTimeout())
	} else {
		e, err := app.BuildEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()
		a = localAsker{agent: e.Agent}
	}

	displayWelcomeBanner(out)
	s := newChatSession(a, out)
	s.help()
	for {
		var line string
		err := survey.AskOne(&survey.Input{Message: "stella>"}, &line)
		if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "Bye.")
			return nil
		}
		if err != nil {
			return err
		}
		if s.handle(ctx, line) {
			return nil
		}
	}
}

type chatSession struct {
	asker   asker
	out     io.Writer
	history []models.ChatTurn
}

func newChatSession(a asker, out io.Writer) *chatSession {
	return &chatSession{asker: a, out: out}
}

// handle processes one input line and reports whether the session ended.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false
	case "exit", "quit":
		fmt.Fprintln(s.out, "Bye.")
		return true
	case "help":
		s.help()
		return false
	case "history":
		s.showHistory()
		return false
	case "clear":
		s.history = nil
		displayInfo(s.out, "Conversation cleared.")
		return false
	}

	start := time.Now()
	answer, err := s.asker.Ask(ctx, line, s.history)
	if err != nil {
		displayError(s.out, err)
		return false
	}
	displayAnswer(s.out, answer)
	fmt.Fprintln(s.out, labelStyle.Render(fmt.Sprintf("answered in %s", time.Since(start).Round(time.Millisecond))))

	s.history = append(s.history, models.ChatTurn{Query: line, Response: answer})
	if len(s.history) > maxChatTurns {
		s.history = s.history[len(s.history)-maxChatTurns:]
	}
	return false
}

func (s *chatSession) help() {
	fmt.Fprintln(s.out, kv([][2]string{
		{"1: <company>", "full report"},
		{"2: <company>", "company overview"},
		{"3: <company>", "company news"},
		{"4: <topic>", "general news"},
		{"5: <companies>", "market highlights"},
		{"history", "show this conversation"},
		{"clear", "forget this conversation"},
		{"exit", "leave"},
	}))
	displayInfo(s.out, "Queries without a prefix are routed automatically.")
}

func (s *chatSession) showHistory() {
	if len(s.history) == 0 {
		displayInfo(s.out, "No questions yet.")
		return
	}
	for i, t := range s.history {
		fmt.Fprintf(s.out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%2d.", i+1)), t.Query)
		fmt.Fprintf(s.out, "    %s\n", labelStyle.Render(truncate(t.Response, 70)))
	}
}

type localAsker struct {
	agent interface {
		Run(ctx context.Context, req models.QueryRequest) string
	}
}

func (l localAsker) Ask(ctx context.Context, query string, history []models.ChatTurn) (string, error) {
	return l.agent.Run(ctx, models.QueryRequest{
		Query:       query,
		Source:      "interactive",
		ChatHistory: history,
	}), nil
}

// remoteAsker posts to a stella server's /analyze endpoint.
type remoteAsker struct {
	client *resty.Client
}

func newRemoteAsker(baseURL string, timeout time.Duration) *remoteAsker {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "stella-cli/"+Version)
	return &remoteAsker{client: client}
}

func (r *remoteAsker) Ask(ctx context.Context, query string, history []models.ChatTurn) (string, error) {
	var result models.AnalysisResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(models.QueryRequest{Query: query, Source: "interactive", ChatHistory: history}).
		SetResult(&result).
		Post("/analyze")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("server returned %s", resp.Status())
	}
	return result.Result, nil
}
