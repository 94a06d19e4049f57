package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses workspace documents written in CUE.
type CUEParser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
	now       func() time.Time
}

// NewCUEParser creates a parser backed by the embedded workspace schema.
func NewCUEParser() *CUEParser {
	schemas := NewSchemaRegistry()

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return &CUEParser{
		ctx:       schemas.Context(),
		schemas:   schemas,
		validator: v,
		now:       time.Now,
	}
}

// Schemas returns the registry the parser validates against.
func (cp *CUEParser) Schemas() *SchemaRegistry {
	return cp.schemas
}

// Load parses sources and returns the workspace, or a validation error
// listing every problem found.
func (cp *CUEParser) Load(ctx context.Context, sources []string) (*Workspace, error) {
	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return &parsed.Workspace, nil
}

// Parse reads each source, a .cue file or a directory of them, unifies
// them into one document and validates it. Problems in the documents are
// reported in ParsedWorkspace.Errors; the error return is reserved for
// unreadable sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedWorkspace, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var doc cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		files := []string{source}
		if info.IsDir() {
			files, err = cueFiles(source)
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				parseErrors = append(parseErrors, ValidationError{
					File:     source,
					Message:  "no CUE files found",
					Severity: "error",
				})
				continue
			}
		}

		for _, file := range files {
			val, errs := cp.loadFile(file)
			sourceFiles = append(sourceFiles, file)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
				continue
			}
			if doc.Exists() {
				doc = doc.Unify(val)
			} else {
				doc = val
			}
		}
	}

	if len(parseErrors) > 0 {
		return cp.failed(sourceFiles, parseErrors), nil
	}
	return cp.extract(doc, sourceFiles), nil
}

// ParseInline parses a document held in memory.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedWorkspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return cp.failed([]string{"inline"}, convertCUEErrors(err)), nil
	}
	return cp.extract(val, []string{"inline"}), nil
}

// cueFiles lists the .cue files directly inside dir.
func cueFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

func (cp *CUEParser) failed(sourceFiles []string, errs []ValidationError) *ParsedWorkspace {
	return &ParsedWorkspace{
		SourceFiles: sourceFiles,
		ParsedAt:    cp.now(),
		Errors:      errs,
	}
}

// extract unifies the document with the schema, decodes it and runs the
// struct validator over the result.
func (cp *CUEParser) extract(doc cue.Value, sourceFiles []string) *ParsedWorkspace {
	parsed := &ParsedWorkspace{
		SourceFiles: sourceFiles,
		ParsedAt:    cp.now(),
	}

	unified, err := cp.schemas.Unify("workspace", doc)
	if err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed
	}

	if err := unified.Decode(&parsed.Workspace); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Message:  fmt.Sprintf("failed to decode workspace: %v", err),
			Severity: "error",
		})
		return parsed
	}

	if err := cp.validator.Struct(parsed.Workspace); err != nil {
		parsed.Errors = append(parsed.Errors, convertValidatorErrors(err)...)
	}
	return parsed
}

func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError

	for _, e := range cueerrors.Errors(err) {
		var file string
		var line, column int
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  strings.TrimSpace(cueerrors.Details(e, nil)),
			Severity: "error",
		})
	}
	return out
}

func convertValidatorErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Workspace.")
		message := fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			message = fmt.Sprintf("%s failed %s=%s validation", fe.Field(), fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{Path: path, Message: message, Severity: "error"})
	}
	return out
}
