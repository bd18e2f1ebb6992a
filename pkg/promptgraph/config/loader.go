package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoder parses a document into a map.
type decoder func(data []byte, v any) error

var decoders = map[string]decoder{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads an engine file, choosing the format by extension
// (.yaml, .yml or .json). ${VAR} and $VAR references are expanded from
// the environment before parsing, so a store DSN can carry a password
// without writing it to disk. Unset variables expand to "".
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(decode, []byte(os.ExpandEnv(string(data))))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) {
	cfg, err := parse(yaml.Unmarshal, data)
	if err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) {
	cfg, err := parse(json.Unmarshal, data)
	if err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return cfg, nil
}

func parse(decode decoder, data []byte) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, err
	}
	return New(m), nil
}
