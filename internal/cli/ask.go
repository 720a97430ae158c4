package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/stella/internal/app"
	"github.com/dyike/stella/internal/models"
)

type askOptions struct {
	source   string
	file     string
	jsonMode bool
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	ao := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [QUERY]",
		Short: "Answer one query, or every query in a file",
		Example: `  stella ask "1: Tesla"
  stella ask "What is the latest news on Apple?" --source api --json
  stella ask --file queries.txt`,
		Args: func(cmd *cobra.Command, args []string) error {
			if ao.file == "" && len(args) != 1 {
				return fmt.Errorf("expected exactly one query or --file")
			}
			if ao.file != "" && len(args) > 0 {
				return fmt.Errorf("a query argument cannot be combined with --file")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var queries []string
			if ao.file != "" {
				f, err := os.Open(ao.file)
				if err != nil {
					return err
				}
				defer f.Close()
				if queries, err = readQueries(f); err != nil {
					return err
				}
				if len(queries) == 0 {
					return fmt.Errorf("no queries in %s", ao.file)
				}
			} else {
				queries = args
			}

			e, err := app.BuildEngine(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			reqs := make([]models.QueryRequest, len(queries))
			for i, q := range queries {
				reqs[i] = models.QueryRequest{Query: q, Source: ao.source}
			}
			var answers []string
			if len(reqs) == 1 {
				answers = []string{e.Agent.Run(cmd.Context(), reqs[0])}
			} else {
				answers = e.Agent.RunBatch(cmd.Context(), reqs)
			}
			return writeAnswers(cmd.OutOrStdout(), queries, answers, ao.jsonMode)
		},
	}
	cmd.Flags().StringVar(&ao.source, "source", "interactive", `Request source; "interactive" gives prose, anything else raw data`)
	cmd.Flags().StringVarP(&ao.file, "file", "f", "", "Read one query per line from a file and run them as a batch")
	cmd.Flags().BoolVar(&ao.jsonMode, "json", false, "Print results as JSON")
	return cmd
}

// readQueries returns the non-blank lines of r, skipping # comments.
func readQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func writeAnswers(w io.Writer, queries, answers []string, jsonMode bool) error {
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(answers) == 1 {
			return enc.Encode(models.AnalysisResponse{Result: answers[0]})
		}
		out := make([]models.AnalysisResponse, len(answers))
		for i, a := range answers {
			out[i] = models.AnalysisResponse{Result: a}
		}
		return enc.Encode(out)
	}

	if len(answers) == 1 {
		_, err := fmt.Fprintln(w, answers[0])
		return err
	}
	for i, a := range answers {
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("[%d/%d] %s", i+1, len(answers), queries[i])))
		displayAnswer(w, a)
		fmt.Fprintln(w)
	}
	return nil
}
