package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Load reads the YAML file at path, expands ${NAME}/${NAME:-default}
// references against the environment (after loading a .env file if one is
// present, mirroring the teacher's godotenv.Load() call in config.Load),
// unmarshals it and validates it (spec §4.5, §9).
func Load(path string) (*Document, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	expanded, err := interpolate(string(data), osLookup)
	if err != nil {
		return nil, model.Wrap(model.ErrConfigParse, fmt.Sprintf("%s: environment interpolation", path), err)
	}

	doc := defaults()
	if err := yaml.Unmarshal([]byte(expanded), doc); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadError wraps a configuration file read/parse failure, distinguished
// from validation failures at the exit-code layer (spec §6.5).
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
