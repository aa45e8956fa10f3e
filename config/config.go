// Package config loads the failsafe configuration file and applies it to a
// pattern registry.
//
// The file is a hierarchical document keyed {kind}.{name}, carrying the
// same fields the pattern constructors take. ${VAR} references are expanded
// from the environment before parsing. Unknown kinds, names and fields are
// ignored so a shared file can carry settings for patterns a given process
// does not register.
//
//	ratelimit:
//	  api:
//	    max_executions: 100
//	    per_time_secs: 1
//	circuitbreaker:
//	  db:
//	    failure_threshold: 5
//	    enabled: true
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/jonwraymond/failsafe/registry"
)

// DefaultFileName is looked for when no explicit path is given.
const DefaultFileName = "failsafe.yaml"

// File is a parsed configuration document.
type File struct {
	settings map[string]any
}

// Load reads, env-expands and parses the configuration file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnvStrict(string(raw))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "yaml"
	}
	v.SetConfigType(ext)
	if err := v.ReadConfig(bytes.NewReader([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &File{settings: v.AllSettings()}, nil
}

// Pattern returns the fields configured for (kind, name), or nil.
func (f *File) Pattern(kind, name string) map[string]any {
	byName, ok := f.settings[kind].(map[string]any)
	if !ok {
		return nil
	}
	fields, ok := byName[name].(map[string]any)
	if !ok {
		return nil
	}
	return fields
}

// Kinds returns the top-level kinds present in the file.
func (f *File) Kinds() []string {
	kinds := make([]string, 0, len(f.settings))
	for k := range f.settings {
		kinds = append(kinds, k)
	}
	return kinds
}

// Apply pushes the file's settings into every matching registered pattern.
// The reserved "enabled" field drives the gate bit; remaining fields go
// through UpdateConfig one at a time, skipping fields the pattern does not
// whitelist. Invalid values abort with an error.
func (f *File) Apply(reg *registry.Registry, logger zerolog.Logger) error {
	for _, info := range reg.List() {
		fields := f.Pattern(info.Kind, info.Name)
		if fields == nil {
			continue
		}

		p, ok := reg.Get(info.Kind, info.Name)
		if !ok {
			continue
		}

		for k, v := range fields {
			if k == "enabled" {
				on, ok := registry.AsBool(v)
				if !ok {
					return fmt.Errorf("config: %s.%s: invalid enabled value %v", info.Kind, info.Name, v)
				}
				if on {
					p.Enable()
				} else {
					p.Disable()
				}
				continue
			}

			err := p.UpdateConfig(map[string]any{k: v})
			switch {
			case errors.Is(err, registry.ErrFieldNotAllowed):
				logger.Debug().
					Str("kind", info.Kind).
					Str("name", info.Name).
					Str("field", k).
					Msg("skipping non-updatable config field")
			case err != nil:
				return fmt.Errorf("config: %s.%s: %w", info.Kind, info.Name, err)
			}
		}
	}
	return nil
}
