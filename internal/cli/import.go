package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dust/internal/codec"
	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/store"
)

// ImportResult reports what import persisted.
type ImportResult struct {
	Entities int              `json:"entities"`
	Pass     store.PassResult `json:"pass"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <types> <file>",
		Short: "Import a JSON array of entities into the database",
		Long: `Decode a JSON array of flat entity objects, as written by export, and
persist it. Missing tables are created first and stored entities are loaded
so existing entities are updated rather than duplicated.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runImport(opts *RootOptions, typesPath, file string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	data, err := os.ReadFile(file)
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("read %s: %v", file, err)})
	}

	s, err := openSession(ctx, opts, typesPath)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	if _, err := s.store.Migrate(ctx); err != nil {
		return formatter.Fail(withCode(ErrCodeDatabase, err))
	}

	e, stop := s.startEngine(ctx)
	defer stop()

	if _, err := e.Load(ctx); err != nil {
		return formatter.Fail(withCode(ErrCodeDatabase, err))
	}

	var decoded int
	err = e.Do(ctx, func(es *entity.Store) error {
		entities, err := codec.New(es).FromJSON(data)
		decoded = len(entities)
		return err
	})
	if err != nil {
		return formatter.Fail(withCode(ErrCodeDecode, err))
	}
	formatter.VerboseLog("Decoded %d entities from %s", decoded, file)

	pass, err := e.Flush(ctx)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeDatabase, err))
	}

	return formatter.PassResult(pass.ID, ImportResult{Entities: decoded, Pass: pass},
		fmt.Sprintf("✓ Imported %d entities (%d inserted, %d updated)", decoded, pass.Inserted, pass.Updated))
}
