package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateResult reports the statements migrate applied.
type MigrateResult struct {
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var units []string

	cmd := &cobra.Command{
		Use:           "migrate <types>",
		Short:         "Create missing tables for the declared types",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args[0], units, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&units, "unit", "u", nil, "limit to these units (default all)")
	return cmd
}

func runMigrate(opts *RootOptions, typesPath string, units []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := openSession(cmd.Context(), opts, typesPath)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	applied, err := s.store.Migrate(cmd.Context(), units...)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeDatabase, err))
	}
	for _, stmt := range applied {
		formatter.VerboseLog("%s;", stmt)
	}

	if formatter.Format == "json" {
		if applied == nil {
			applied = []string{}
		}
		return formatter.Success(MigrateResult{Dialect: s.store.Dialect().Name(), Statements: applied})
	}
	if len(applied) == 0 {
		fmt.Fprintln(formatter.Writer, "✓ Schema up to date")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ Created %d table(s)\n", len(applied))
	return nil
}
