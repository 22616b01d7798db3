// Package cli wires the premerge commands. Commands write the pipeline
// document to the output stream only once it is fully encoded; logs go to
// the error stream.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/premerge/internal/changes"
	"github.com/kingrea/premerge/internal/config"
	"github.com/kingrea/premerge/internal/logging"
	"github.com/kingrea/premerge/internal/pipeline"
	"github.com/kingrea/premerge/internal/registry"
	"github.com/kingrea/premerge/internal/resolver"
	"github.com/kingrea/premerge/internal/tui"
)

const summaryWidth = 100

// Streams are the standard streams a command reads from and writes to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Option customizes the command tree.
type Option func(*app)

// WithWorkDir sets the checkout the commands operate on.
func WithWorkDir(dir string) Option {
	return func(a *app) { a.workDir = dir }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup config.EnvLookup) Option {
	return func(a *app) { a.lookup = lookup }
}

// WithHeadMessage replaces the git lookup of the HEAD commit message.
func WithHeadMessage(fn func(ctx context.Context, cfg *config.Config) (string, error)) Option {
	return func(a *app) { a.headMessage = fn }
}

type app struct {
	streams     Streams
	workDir     string
	lookup      config.EnvLookup
	headMessage func(ctx context.Context, cfg *config.Config) (string, error)
	logger      *zap.Logger

	configPath  string
	envFile     string
	verbose     bool
	files       []string
	stdin       bool
	interactive bool
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, streams Streams, opts ...Option) int {
	cmd := NewRootCommand(streams, opts...)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(streams.Err, "premerge: %v\n", err)
	}
	return ExitCode(err)
}

// NewRootCommand builds the premerge command tree.
func NewRootCommand(streams Streams, opts ...Option) *cobra.Command {
	if streams.In == nil {
		streams.In = strings.NewReader("")
	}
	a := &app{streams: streams, lookup: os.LookupEnv, headMessage: gitHeadMessage, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			a.workDir = wd
		}
	}

	root := &cobra.Command{
		Use:   "premerge",
		Short: "Generate the premerge Buildkite pipeline for a change",
		Long: `premerge maps the files touched by a change to the projects that must be
built and tested on each platform, and prints a Buildkite pipeline document.

Modified files come from --files, --stdin, MODIFIED_FILES, or a git diff
against the merge base with the pull request base branch.`,
		Args:          positional(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := a.lookup(config.EnvLogLevel)
			return a.initLogger(level)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: a.runGenerate,
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "settings file (default "+config.DefaultConfigPath+")")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file that fills unset variables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.StringSliceVar(&a.files, "files", nil, "modified files, comma separated")
	flags.BoolVar(&a.stdin, "stdin", false, "read modified files from stdin, one per line")

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Print the pipeline document (default)",
		Args:  positional(cobra.NoArgs),
		RunE:  a.runGenerate,
	}

	explain := &cobra.Command{
		Use:   "explain",
		Short: "Show why each project is built on each platform",
		Args:  positional(cobra.NoArgs),
		RunE:  a.runExplain,
	}
	explain.Flags().BoolVarP(&a.interactive, "interactive", "i", false, "browse plans in a terminal UI")

	validate := &cobra.Command{
		Use:   "validate [path|-]",
		Short: "Validate a registry file, or stdin with -",
		Args:  positional(cobra.MaximumNArgs(1)),
		RunE:  a.runValidate,
	}

	root.AddCommand(generate, explain, validate)
	return root
}

func positional(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return invalidInvocationf("%v", err)
		}
		return nil
	}
}

func (a *app) initLogger(level string) error {
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, a.streams.Err)
	if err != nil {
		return configError("log level", err)
	}
	a.logger = logger
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.workDir, config.Options{
		ConfigPath: a.configPath,
		EnvFile:    a.envFile,
		Lookup:     a.lookup,
	})
	if err != nil {
		return nil, configError("load configuration", err)
	}
	if err := a.initLogger(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) resolve(ctx context.Context) (*config.Config, resolver.Result, error) {
	if a.stdin && len(a.files) > 0 {
		return nil, resolver.Result{}, invalidInvocationf("--files and --stdin are mutually exclusive")
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, resolver.Result{}, err
	}
	def, err := cfg.Registry()
	if err != nil {
		return nil, resolver.Result{}, configError("load registry", err)
	}
	r, err := resolver.New(def,
		resolver.WithPlatforms(cfg.EnabledPlatforms()...),
		resolver.WithLogger(a.logger),
	)
	if err != nil {
		return nil, resolver.Result{}, configError("load registry", err)
	}

	files, err := a.modifiedFiles(ctx, cfg)
	if err != nil {
		return nil, resolver.Result{}, runtimeError("compute modified files", err)
	}
	a.logger.Debug("modified files", zap.Int("count", len(files)))
	result := r.Resolve(files)
	a.logger.Info("resolved change",
		zap.Strings("modified", result.Modified),
		zap.Int("plans", len(result.Plans)),
		zap.Int("triggers", len(result.Triggers)))
	return cfg, result, nil
}

func (a *app) modifiedFiles(ctx context.Context, cfg *config.Config) ([]string, error) {
	var source changes.Source
	switch {
	case len(a.files) > 0:
		source = changes.StaticSource(a.files)
	case a.stdin:
		files, err := readLines(a.streams.In)
		if err != nil {
			return nil, err
		}
		source = changes.StaticSource(files)
	case cfg.HasModifiedFiles:
		source = changes.StaticSource(cfg.ModifiedFiles)
	default:
		a.logger.Debug("diffing against base branch", zap.String("base", cfg.BaseBranch))
		source = changes.GitSource{Dir: cfg.WorkDir, BaseBranch: cfg.BaseBranch, Fetch: cfg.File.FetchBase}
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.GitTimeout())
	defer cancel()
	return source.ModifiedFiles(ctx)
}

func (a *app) runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, result, err := a.resolve(ctx)
	if err != nil {
		return err
	}

	info := pipeline.BuildInfo{Commit: cfg.Commit, Branch: cfg.Branch}
	if len(result.Triggers) > 0 {
		msgCtx, cancel := context.WithTimeout(ctx, cfg.GitTimeout())
		message, msgErr := a.headMessage(msgCtx, cfg)
		cancel()
		if msgErr != nil {
			a.logger.Warn("could not read head commit message", zap.Error(msgErr))
		}
		info.Message = pipeline.BuildMessage(changes.ReviewID(message), cfg.Branch)
	}

	doc := pipeline.Build(result, cfg.ApplyPlatforms(pipeline.DefaultPlatforms()), info)
	if err := doc.Write(a.streams.Out); err != nil {
		return runtimeError("write pipeline", err)
	}
	return nil
}

func (a *app) runExplain(cmd *cobra.Command, args []string) error {
	_, result, err := a.resolve(cmd.Context())
	if err != nil {
		return err
	}
	if a.interactive {
		return tui.Run(result, tea.WithInput(a.streams.In), tea.WithOutput(a.streams.Out), tea.WithContext(cmd.Context()))
	}
	_, err = fmt.Fprintln(a.streams.Out, tui.RenderSummary(result, summaryWidth))
	return err
}

func (a *app) runValidate(cmd *cobra.Command, args []string) error {
	var (
		def  registry.Definition
		path string
		err  error
	)
	switch {
	case len(args) == 1 && args[0] == "-":
		path = "stdin"
		def, err = registry.LoadDefinitionReader(a.streams.In)
	case len(args) == 1:
		path = args[0]
		def, err = registry.LoadDefinitionFile(path)
	default:
		cfg, loadErr := a.loadConfig()
		if loadErr != nil {
			return loadErr
		}
		path = cfg.RegistryPath()
		def, err = cfg.Registry()
	}
	if err != nil {
		return configError("validate registry", err)
	}
	if path == "" {
		path = "built-in registry"
	}
	_, err = fmt.Fprintf(a.streams.Out, "%s: ok (%d projects, %d runtimes, %d triggers)\n",
		path, len(def.Projects), len(def.Runtimes), len(def.Triggers))
	return err
}

func gitHeadMessage(ctx context.Context, cfg *config.Config) (string, error) {
	return changes.GitSource{Dir: cfg.WorkDir}.HeadMessage(ctx)
}

func readLines(r io.Reader) ([]string, error) {
	if r == nil {
		return nil, nil
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}
