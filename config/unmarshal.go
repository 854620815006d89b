package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Unmarshal parses a YAML job configuration, resolving `${NAME}` parameter
// references first. Unknown keys are an error.
func Unmarshal(data []byte, params *Params) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid config document format: %w", err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("config document is empty")
	}

	if err := ResolveParams(&doc, params); err != nil {
		return nil, fmt.Errorf("failed to resolve params: %w", err)
	}

	config := &Config{}
	if err := decodeStrict(&doc, config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("resolved job config", "name", config.Job.Name, "sink", config.Sink.Type, "parallelism", config.Job.Parallelism)
	return config, nil
}

// ReadFile reads and unmarshals a config file.
func ReadFile(path string, params *Params) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Unmarshal(data, params)
}

// decodeStrict re-encodes the resolved document so the decoder can reject
// unknown fields, which yaml.Node.Decode does not support.
func decodeStrict(doc *yaml.Node, out any) error {
	resolved, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(resolved))
	dec.KnownFields(true)
	return dec.Decode(out)
}
