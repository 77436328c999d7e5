package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dust/internal/compiler"
	"github.com/roach88/dust/internal/entity"
)

// LoadResult holds the type declarations read from a file or directory.
type LoadResult struct {
	Types []entity.TypeDecl
	Files []string // declaration files that were read
}

// LoadError represents an error that occurred while reading declarations.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	File    string
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadTypes reads type declarations from path: a .cue or .yaml file, or a
// directory holding such files. A directory's CUE files are loaded as one
// instance; its YAML files are read one by one in lexical order.
func LoadTypes(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("types path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing types path: %v", err)}
	}

	if !info.IsDir() {
		return loadFile(path)
	}

	cueFiles, yamlFiles, err := FindTypeFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no .cue or .yaml files found in %s", path)}
	}

	result := &LoadResult{}
	if len(cueFiles) > 0 {
		value, err := loadCUEDir(path)
		if err != nil {
			return nil, err
		}
		decls, err := compiler.CompileTypes(value)
		if err != nil {
			return nil, convertCompileError(err)
		}
		result.Types = append(result.Types, decls...)
		result.Files = append(result.Files, cueFiles...)
	}
	for _, f := range yamlFiles {
		decls, err := compiler.LoadYAML(f)
		if err != nil {
			return nil, convertCompileError(err)
		}
		result.Types = append(result.Types, decls...)
		result.Files = append(result.Files, f)
	}
	return result, nil
}

func loadFile(path string) (*LoadResult, error) {
	var (
		decls []entity.TypeDecl
		err   error
	)
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		decls, err = compiler.LoadYAML(path)
	case ".cue":
		var value cue.Value
		value, err = loadCUEFile(path)
		if err != nil {
			return nil, err
		}
		decls, err = compiler.CompileTypes(value)
	default:
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("unsupported types file %s", path)}
	}
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Types: decls, Files: []string{path}}, nil
}

func loadCUEDir(dir string) (cue.Value, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, nil
}

func loadCUEFile(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading CUE file: %v", err), File: path}
	}
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), File: path}
	}
	return value, nil
}

// FindTypeFiles walks dir and returns its .cue and .yaml/.yml files.
func FindTypeFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
		return nil
	})
	return cueFiles, yamlFiles, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
			File:    compileErr.File,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No declaration files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Configuration error
	ErrCodeDatabase    = "E009" // Database open, migrate or persist error
	ErrCodeDecode      = "E010" // Import document could not be decoded
	ErrCodeFilter      = "E011" // Export filter could not be parsed or bound
	ErrCodeScenario    = "E012" // One or more scenarios failed

	// Declaration errors
	ErrCodeInvalidDeclaration = "E020" // Malformed type or field declaration
	ErrCodeInvalidDatatype    = "E021" // Unknown datatype
	ErrCodeInvalidCardinality = "E022" // Unknown cardinality
	ErrCodeInvalidID          = "E023" // Type or field id is not an integer
	ErrCodeSyntax             = "E024" // YAML syntax error
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "yaml":
		return ErrCodeSyntax
	case strings.HasSuffix(field, ".datatype"):
		return ErrCodeInvalidDatatype
	case strings.HasSuffix(field, ".cardinality"):
		return ErrCodeInvalidCardinality
	case strings.HasSuffix(field, ".id"), strings.HasSuffix(field, ".order"):
		return ErrCodeInvalidID
	default:
		return ErrCodeInvalidDeclaration
	}
}
