package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dl-alexandre/idxmirror/internal/config"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/progress"
	"github.com/dl-alexandre/idxmirror/internal/types"
	"github.com/dl-alexandre/idxmirror/internal/utils"
	"github.com/dl-alexandre/idxmirror/pkg/version"
)

// app carries the state of one invocation
type app struct {
	stdout io.Writer
	stderr io.Writer

	globalFlags types.GlobalFlags
	mirrorFlags types.MirrorFlags

	cfg       *config.Config
	logger    logging.Logger
	transport *logging.DebugTransport
	terminal  *progress.Terminal
	traceID   string
	exitCode  int
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "idxmirror <destdir>",
		Short: "Mirror a remote HTTP directory listing into a local directory",
		Long: `idxmirror discovers every file below a remote directory-listing server and
copies it into a local directory. Files whose local modification time matches
the remote one are skipped with a conditional GET; changed files are fetched
again and replaced atomically.

Exclude patterns are rooted at the remote root. "*" matches within one path
segment and a pattern that names a directory excludes everything below it.`,
		Version:       version.Version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			a.exitCode = a.runMirror(cmd.Context(), args[0])
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar((*string)(&a.globalFlags.OutputFormat), "output", "", "Output format (json, table)")
	pf.BoolVar(&a.globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	pf.BoolVarP(&a.globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.BoolVarP(&a.globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&a.globalFlags.Debug, "debug", false, "Enable debug output, including HTTP tracing")
	pf.StringVar(&a.globalFlags.Config, "config", "", "Path to configuration file")
	pf.StringVar(&a.globalFlags.LogFile, "log-file", "", "Path to log file")

	f := rootCmd.Flags()
	f.StringArrayVar(&a.mirrorFlags.Excludes, "exclude", nil, "Exclude pattern (repeatable)")
	f.StringArrayVar(&a.mirrorFlags.ExcludeFiles, "exclude-file", nil, "File containing exclude patterns, one per line (repeatable)")
	f.StringVar(&a.mirrorFlags.BaseURL, "base-url", "", "Base URL of the remote listing (default "+utils.DefaultBaseURL+")")
	f.StringVar(&a.mirrorFlags.Root, "root", utils.DefaultRootPath, "Remote directory to start from")
	f.IntVar(&a.mirrorFlags.Retries, "retries", utils.DefaultMaxRetries, "Attempts per file before it counts as failed")
	f.DurationVar(&a.mirrorFlags.RetryDelay, "retry-delay", utils.DefaultRetryDelayMs*time.Millisecond, "Pause between attempts")
	f.IntVar(&a.mirrorFlags.Concurrency, "concurrency", utils.DefaultConcurrency, "Files transferred at once")
	f.DurationVar(&a.mirrorFlags.Timeout, "timeout", utils.DefaultRequestTimeoutSecs*time.Second, "Wait limit for response headers")
	f.BoolVar(&a.globalFlags.DryRun, "dry-run", false, "List the files that would be synchronized without fetching them")
	f.BoolVar(&a.globalFlags.NoProgress, "no-progress", false, "Do not draw progress bars")

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	return rootCmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "Print the version number of idxmirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if a.cfg.OutputFormat == types.OutputFormatJSON {
				return a.output().WriteSuccess("version", info)
			}
			_, err := fmt.Fprintln(a.stdout, info.String())
			return err
		},
	}
}

// setup validates flags, loads configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.validateGlobalFlags(); err != nil {
		return err
	}

	cfg, err := config.Load(a.globalFlags.Config)
	if err != nil {
		return err
	}
	if err := a.applyFlags(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	a.terminal = progress.NewTerminal(a.stderr)
	logConfig := logging.LogConfig{
		Level:           logLevel(cfg.LogLevel),
		OutputFile:      a.globalFlags.LogFile,
		MaxFileSize:     logging.DefaultLogConfig().MaxFileSize,
		EnableConsole:   true,
		EnableDebug:     cfg.LogLevel == "debug",
		RedactSensitive: true,
		EnableColor:     cfg.ColorOutput && a.terminal.Interactive(),
		ConsoleWriter:   a.terminal,
	}

	logger, transport, err := logging.NewDebugLoggerWithTransport(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.traceID = uuid.New().String()
	if a.globalFlags.LogFile != "" || cfg.LogLevel == "verbose" || cfg.LogLevel == "debug" {
		logger = logger.WithTraceID(a.traceID)
	}
	a.logger = logger
	a.transport = transport
	return nil
}

func (a *app) validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if a.globalFlags.JSON {
		a.globalFlags.OutputFormat = types.OutputFormatJSON
	}

	switch a.globalFlags.OutputFormat {
	case "", types.OutputFormatJSON, types.OutputFormatTable:
	default:
		return fmt.Errorf("invalid output format: %s", a.globalFlags.OutputFormat)
	}
	if a.globalFlags.Quiet && (a.globalFlags.Verbose || a.globalFlags.Debug) {
		return fmt.Errorf("--quiet cannot be combined with --verbose or --debug")
	}
	return nil
}

// applyFlags layers explicitly set flags over the loaded configuration
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if a.globalFlags.OutputFormat != "" {
		cfg.OutputFormat = a.globalFlags.OutputFormat
	}
	switch {
	case a.globalFlags.Debug:
		cfg.LogLevel = "debug"
	case a.globalFlags.Verbose:
		cfg.LogLevel = "verbose"
	case a.globalFlags.Quiet:
		cfg.LogLevel = "quiet"
	}
	if a.globalFlags.NoProgress {
		cfg.ShowProgress = false
	}

	if changed("base-url") {
		cfg.BaseURL = a.mirrorFlags.BaseURL
	}
	if changed("retries") {
		cfg.MaxRetries = a.mirrorFlags.Retries
	}
	if changed("retry-delay") {
		cfg.RetryDelay = int(a.mirrorFlags.RetryDelay / time.Millisecond)
	}
	if changed("concurrency") {
		cfg.Concurrency = a.mirrorFlags.Concurrency
	}
	if changed("timeout") {
		cfg.RequestTimeout = int(a.mirrorFlags.Timeout / time.Second)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (a *app) output() *OutputWriter {
	quiet := a.cfg != nil && a.cfg.LogLevel == "quiet"
	format := types.OutputFormatTable
	if a.cfg != nil {
		format = a.cfg.OutputFormat
	}
	return NewOutputWriter(a.stdout, format, quiet, a.traceID)
}

func logLevel(name string) logging.LogLevel {
	switch name {
	case "quiet":
		return logging.WARN
	case "verbose", "debug":
		return logging.DEBUG
	default:
		return logging.INFO
	}
}

// Run executes the command line in args and returns the process exit code
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return utils.ExitFailure
	}
	return a.exitCode
}

// Execute runs the root command against the process arguments
func Execute(ctx context.Context) int {
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
