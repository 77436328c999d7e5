package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dust/internal/compiler"
	"github.com/roach88/dust/internal/entity"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                        `json:"valid"`
	Types  int                         `json:"types"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <types>",
		Short: "Validate type declarations",
		Long: `Validate CUE or YAML type declarations without touching a database.

Checks syntax, datatypes and cardinalities, name and id collisions, then
registers the types in a scratch store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, typesPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, err := LoadTypes(typesPath)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Read %d declaration file(s) from %s", len(loadResult.Files), typesPath)

	validationErrors := ValidateTypes(loadResult.Types)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, len(loadResult.Types))
}

// ValidateTypes checks declarations and, when they pass, registers them in
// a scratch store to catch conflicts with the built-in types.
func ValidateTypes(decls []entity.TypeDecl) []compiler.ValidationError {
	if len(decls) == 0 {
		return []compiler.ValidationError{{
			Field:   "types",
			Message: "no types declared",
			Code:    ErrCodeGeneric,
		}}
	}
	if errs := compiler.Validate(decls); len(errs) > 0 {
		return errs
	}

	s := entity.NewStore()
	defer s.Close()
	if err := s.RegisterTypes(decls...); err != nil {
		return []compiler.ValidationError{{
			Field:   "types",
			Message: err.Error(),
			Code:    ErrCodeInvalidDeclaration,
		}}
	}
	return nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, types int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: types})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d type(s) valid\n", types)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
