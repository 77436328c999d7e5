package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SchemaResult lists DDL statements.
type SchemaResult struct {
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var units []string

	cmd := &cobra.Command{
		Use:   "schema <types>",
		Short: "Print the DDL for tables missing from the database",
		Long: `Print the CREATE TABLE statements that migrate would apply.

Tables that already exist in the database are skipped. The built-in unit,
type and field tables are always included.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], units, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&units, "unit", "u", nil, "limit to these units (default all)")
	return cmd
}

func runSchema(opts *RootOptions, typesPath string, units []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := openSession(cmd.Context(), opts, typesPath)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	ddl, err := s.store.GenerateSchema(cmd.Context(), units...)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeDatabase, err))
	}

	if formatter.Format == "json" {
		if ddl == nil {
			ddl = []string{}
		}
		return formatter.Success(SchemaResult{Dialect: s.store.Dialect().Name(), Statements: ddl})
	}
	fmt.Fprint(formatter.Writer, joinStatements(ddl))
	return nil
}

// joinStatements renders DDL as a script, one statement per block.
func joinStatements(ddl []string) string {
	if len(ddl) == 0 {
		return ""
	}
	return strings.Join(ddl, ";\n\n") + ";\n"
}
