package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyike/stella/config"
	"github.com/dyike/stella/internal/app"
	"github.com/dyike/stella/internal/debug"
	"github.com/dyike/stella/internal/logger"
	"github.com/dyike/stella/internal/server"
	"github.com/dyike/stella/internal/utils"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// rootOptions carries the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	debug      bool
	cfg        *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "stella",
		Short: "Stella - LLM financial query agent",
		Long: `Stella answers natural-language questions about companies and markets.
Each query is routed to one of five tasks: company report, company overview,
company news, general news or multi-company highlights.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := utils.ResolveConfigPath(opts.configPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if opts.debug {
				cfg.Debug = true
			}
			logger.Init(cfg.LogLevel, cfg.Debug)
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts.cfg, chatOptions{}, cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path (also STELLA_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newPregenerateCmd(opts))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stella %s\n", Version)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cmd.OutOrStdout(), opts.cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), opts.cfg)
		},
	})

	return configCmd
}

func showConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, titleStyle.Render("Stella configuration"))
	fmt.Fprintln(w, kv([][2]string{
		{"Data dir", cfg.DataDir},
		{"Reports dir", cfg.ReportsDir},
		{"Overviews dir", cfg.OverviewsDir},
		{"History dir", cfg.HistoryDir},
		{"Query log", orNone(cfg.HistoryDB)},
		{"Log level", cfg.LogLevel},
		{"Debug", fmt.Sprint(cfg.Debug)},
	}))
	fmt.Fprintln(w)
	fmt.Fprintln(w, kv([][2]string{
		{"LLM provider", cfg.LLM.Provider},
		{"LLM model", cfg.LLM.Model},
		{"LLM base URL", orNone(cfg.LLM.BaseURL)},
		{"LLM API key", maskSecret(cfg.LLM.APIKey)},
		{"LLM timeout", cfg.LLM.Timeout},
	}))
	fmt.Fprintln(w)
	fmt.Fprintln(w, kv([][2]string{
		{"Cache backend", cfg.Cache.Backend},
		{"Cache dir", cfg.Cache.Dir},
		{"Metrics TTL", cfg.Cache.MetricsTTL},
		{"News TTL", cfg.Cache.NewsTTL},
		{"Highlights TTL", cfg.Cache.HighlightsTTL},
		{"Single flight", fmt.Sprint(cfg.Cache.SingleFlight)},
		{"Pool size", fmt.Sprint(cfg.Pool.Size)},
		{"Batch concurrency", fmt.Sprint(cfg.Pool.BatchConcurrency)},
		{"Server addr", cfg.Server.Addr},
	}))
	fmt.Fprintln(w)
	fmt.Fprintln(w, kv([][2]string{
		{"Alpha Vantage", maskSecret(cfg.Providers.AlphaVantageAPIKey)},
		{"Brave Search", maskSecret(cfg.Providers.BraveAPIKey)},
		{"Longport app key", maskSecret(cfg.Providers.LongportAppKey)},
		{"Longport secret", maskSecret(cfg.Providers.LongportAppSecret)},
		{"Longport token", maskSecret(cfg.Providers.LongportAccessToken)},
	}))
	if cfg.EinoDebugEnabled {
		fmt.Fprintln(w)
		fmt.Fprintln(w, kv([][2]string{{"Eino debug", debug.NewEinoDebugger(cfg).URL()}}))
	}
}

// maskSecret keeps only enough of a credential to recognise it.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "not set"
	case len(s) <= 8:
		return "********"
	default:
		return s[:4] + "..." + s[len(s)-2:]
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// configWarnings lists optional credentials that are missing. A missing
// LLM key is reported separately since nothing works without it.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Providers.AlphaVantageAPIKey == "" {
		warnings = append(warnings, "Alpha Vantage key not set; Yahoo is the only market source")
	}
	if cfg.Providers.BraveAPIKey == "" {
		warnings = append(warnings, "Brave Search key not set; general news uses Google News only")
	}
	if !cfg.HasLongportCredentials() {
		warnings = append(warnings, "Longport credentials incomplete; Longport history is disabled")
	}
	return warnings
}

func validateConfig(w io.Writer, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("directory validation failed: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured for LLM provider %q", cfg.LLM.Provider)
	}
	warnings := configWarnings(cfg)
	for _, msg := range warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+msg))
	}
	if len(warnings) == 0 {
		displaySuccess(w, "configuration is valid")
	} else {
		displaySuccess(w, fmt.Sprintf("configuration is valid with %d warnings", len(warnings)))
	}
	return nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var einoDebug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if einoDebug {
				cfg.EinoDebugEnabled = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// devops must observe graph compilation, so it starts first.
			if err := debug.NewEinoDebugger(cfg).Initialize(ctx); err != nil {
				return err
			}
			e, err := app.BuildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			var history server.HistoryLister
			if e.History != nil {
				history = e.History
			}
			return server.New(cfg.Server, e.Agent, history, cfg.Debug).ListenAndServe(ctx)
		},
	}
	cmd.Flags().BoolVar(&einoDebug, "eino-debug", false, "Start the eino devops server for graph inspection")
	return cmd
}
