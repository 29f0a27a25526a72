package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the YAML config file. Relative paths are resolved against the
// file's directory.
type File struct {
	Model        string `yaml:"model"`
	ModelName    string `yaml:"model_name"`
	ModelVersion string `yaml:"model_version"`
	Method       string `yaml:"method"`
	InputDims    string `yaml:"input_dims"`
	Target       string `yaml:"target"`
	MaxRounds    int    `yaml:"max_rounds"`
	BuildToken   string `yaml:"build_token"`
	OutputAsm    string `yaml:"output_asm"`
	OutputModel  string `yaml:"output_model"`
	Cache        string `yaml:"cache"`

	dir string
}

// ReadFile loads a config file. Unknown keys are rejected.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, &ConfigError{Field: "config", Message: fmt.Sprintf("%s: %v", path, err)}
	}
	f.dir = filepath.Dir(path)
	return &f, nil
}

// under fills the unset fields of opts from f.
func (f *File) under(opts Options) Options {
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&opts.ModelPath, f.path(f.Model))
	set(&opts.ModelName, f.ModelName)
	set(&opts.ModelVersion, f.ModelVersion)
	set(&opts.Method, f.Method)
	set(&opts.InputDims, f.InputDims)
	set(&opts.Target, f.Target)
	set(&opts.BuildToken, f.BuildToken)
	set(&opts.OutputAsm, f.path(f.OutputAsm))
	set(&opts.OutputModel, f.path(f.OutputModel))
	set(&opts.CachePath, f.path(f.Cache))
	if opts.MaxRounds == 0 {
		opts.MaxRounds = f.MaxRounds
	}
	return opts
}

func (f *File) path(p string) string {
	if p == "" || filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}
