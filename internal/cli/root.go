package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/dust/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dialect string // overrides DUST_DIALECT when set
	DSN     string // overrides DUST_DSN when set
	EnvFile string

	// Logger is built by the root command. Nil means no logging.
	Logger *zap.Logger
}

// NewRootCommand creates the root command for the dust CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dust",
		Short: "dust - schema-driven entity store",
		Long:  "Declare entity types, derive their relational schema and move entities between SQL storage and JSON.",
		// main reports errors so they are printed once.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, config.ValidFormats)
			}
			logger, err := newLogger(opts.Verbose)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			opts.Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite|postgres), default $"+config.EnvDialect+" or "+config.DefaultDialect)
	cmd.PersistentFlags().StringVar(&opts.DSN, "db", "", "database DSN, default $"+config.EnvDSN+" or "+config.DefaultDSN)
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file to read (default "+config.DefaultEnvFile+" if present)")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config resolves the effective settings: defaults, dotenv file and
// environment, then any flags that were set.
func (o *RootOptions) Config() (config.Config, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return cfg, err
	}
	if o.Dialect != "" {
		cfg.Dialect = o.Dialect
	}
	if o.DSN != "" {
		cfg.DSN = o.DSN
	}
	cfg.Verbose = o.Verbose
	if o.Format != "" {
		cfg.Format = o.Format
	}
	return cfg, cfg.Validate()
}

func (o *RootOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// newLogger builds a development logger when verbose and a warn-level
// production logger otherwise. Both write to stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range config.ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
