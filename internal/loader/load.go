package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/aotc/internal/graph"
)

//go:embed schema.cue
var schemaCUE string

// Format selects the encoding of a model description.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// LoadError reports a model description that could not be loaded.
type LoadError struct {
	Path    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// IsLoadError reports whether err is a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", &LoadError{Path: path, Message: "unknown model format (want .yaml, .yml or .cue)"}
}

// Load reads the model description at path.
func Load(path string) (*graph.Module, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return LoadBytes(path, data, format)
}

// LoadBytes decodes a description held in memory. name is used in errors.
func LoadBytes(name string, data []byte, format Format) (*graph.Module, error) {
	d, err := Decode(name, data, format)
	if err != nil {
		return nil, err
	}
	return d.Build(name)
}

// Decode parses a description without building the module.
func Decode(name string, data []byte, format Format) (*Description, error) {
	switch format {
	case FormatYAML:
		return decodeYAML(name, data)
	case FormatCUE:
		return decodeCUE(name, data)
	}
	return nil, &LoadError{Path: name, Message: fmt.Sprintf("unknown model format %q", format)}
}

func decodeYAML(name string, data []byte) (*Description, error) {
	var d Description
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, &LoadError{Path: name, Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	return &d, nil
}

func decodeCUE(name string, data []byte) (*Description, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("model schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}
	model := schema.LookupPath(cue.ParsePath("#Model")).Unify(v)
	if err := model.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(name, err)
	}

	raw, err := model.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(name, err)
	}
	var d Description
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return nil, &LoadError{Path: name, Message: fmt.Sprintf("decode cue: %v", err)}
	}
	return &d, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: name, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Path: name, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
