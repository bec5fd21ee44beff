package main

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/go-wally/internal/config"
)

// write prints v to stdout in the configured format.
func (a *app) write(v any) error {
	if a.cfg.Output == config.OutputYAML {
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
