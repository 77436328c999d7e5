package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dust/internal/codec"
	"github.com/roach88/dust/internal/engine"
	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/queryir"
)

// ExportResult reports what export wrote.
type ExportResult struct {
	Unit     string   `json:"unit"`
	Type     string   `json:"type,omitempty"`
	Where    []string `json:"where,omitempty"`
	Entities int      `json:"entities"`
	Output   string   `json:"output"`
}

type exportOptions struct {
	unit     string
	typeName string
	where    []string
	output   string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <types>",
		Short: "Export stored entities as a JSON array",
		Long: `Load the entities of a unit from the database and write them as a
canonical JSON array of flat entity objects.

--where restricts the export to entities of --type whose single-valued
fields match every condition, for example:

  dust export types/ --unit shop --type product --where 'price>=10' --where 'stock!=null'

Without --output the array is written to stdout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.unit, "unit", "", "unit to export (required)")
	cmd.Flags().StringVar(&opts.typeName, "type", "", "limit to one type")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "condition field<op>value, repeatable (requires --type)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func runExport(rootOpts *RootOptions, typesPath string, opts *exportOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)
	ctx := cmd.Context()

	conds, err := queryir.ParseConditions(opts.where)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeFilter, err))
	}
	if len(conds) > 0 && opts.typeName == "" {
		return formatter.Fail(withCode(ErrCodeFilter, errors.New("--where requires --type")))
	}

	s, err := openSession(ctx, rootOpts, typesPath)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	e, stop := s.startEngine(ctx)
	defer stop()

	// keep limits the export to the entities a filtered load returned.
	var keep map[entity.GlobalID]bool
	if len(conds) == 0 {
		loaded, err := e.Load(ctx, opts.unit)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeDatabase, err))
		}
		formatter.VerboseLog("Loaded %d entities", loaded)
	} else {
		keep, err = queryExport(ctx, e, opts, conds)
		if err != nil {
			return formatter.Fail(err)
		}
		formatter.VerboseLog("Loaded %d entities matching %d condition(s)", len(keep), len(conds))
	}

	var (
		data  []byte
		count int
	)
	err = e.Do(ctx, func(es *entity.Store) error {
		c := codec.New(es)
		selected, err := c.Select(entity.Scope(opts.unit, opts.typeName))
		if err != nil {
			return err
		}
		if keep != nil {
			matched := selected[:0]
			for _, ent := range selected {
				if keep[ent.GlobalID()] {
					matched = append(matched, ent)
				}
			}
			selected = matched
		}
		count = len(selected)
		data, err = c.MarshalAll(selected)
		return err
	})
	if err != nil {
		var se *entity.SchemaError
		if errors.As(err, &se) {
			return formatter.Fail(withCode(ErrCodeConfig, err))
		}
		return formatter.Fail(err)
	}

	if opts.output == "" {
		fmt.Fprintln(formatter.Writer, string(data))
		return nil
	}
	if err := os.WriteFile(opts.output, append(data, '\n'), 0o644); err != nil {
		return formatter.Fail(withCode(ErrCodeWriteFailed, fmt.Errorf("write %s: %w", opts.output, err)))
	}

	if formatter.Format == "json" {
		return formatter.Success(ExportResult{
			Unit:     opts.unit,
			Type:     opts.typeName,
			Where:    opts.where,
			Entities: count,
			Output:   opts.output,
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Exported %d entities to %s\n", count, opts.output)
	return nil
}

// queryExport binds conds to the exported type and loads the matching
// entities. It returns the set of loaded global ids.
func queryExport(ctx context.Context, e *engine.Engine, opts *exportOptions, conds []queryir.Condition) (map[entity.GlobalID]bool, error) {
	var pred queryir.Predicate
	err := e.Do(ctx, func(es *entity.Store) error {
		mt, ok := es.MetaType(opts.typeName)
		if !ok || mt.Unit != opts.unit {
			return withCode(ErrCodeConfig, fmt.Errorf("type %s is not declared in unit %s", opts.typeName, opts.unit))
		}
		var err error
		pred, err = queryir.Bind(mt, conds)
		if err != nil {
			return withCode(ErrCodeFilter, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gids, err := e.Query(ctx, queryir.Select{Type: opts.typeName, Filter: pred})
	if err != nil {
		return nil, withCode(ErrCodeDatabase, err)
	}
	keep := make(map[entity.GlobalID]bool, len(gids))
	for _, gid := range gids {
		keep[gid] = true
	}
	return keep, nil
}
