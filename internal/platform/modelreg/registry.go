package modelreg

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is the catalog of detection models and identification algorithms
// the vision service supports, loaded once at startup from a YAML file. The
// per-model params are merged verbatim into dispatch requests.
type Registry struct {
	DetectionModels map[string]DetectionModel `yaml:"detection_models"`
	IDAlgorithms    map[string]IDAlgorithm    `yaml:"id_algorithms"`
}

type DetectionModel struct {
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`
}

type IDAlgorithm struct {
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`
}

func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	return &reg, nil
}

func (r *Registry) DetectionModel(name string) (DetectionModel, error) {
	name = strings.TrimSpace(name)
	m, ok := r.DetectionModels[name]
	if !ok {
		return DetectionModel{}, fmt.Errorf("unknown detection model %q", name)
	}
	return m, nil
}

func (r *Registry) IDAlgorithm(name string) (IDAlgorithm, error) {
	name = strings.TrimSpace(name)
	a, ok := r.IDAlgorithms[name]
	if !ok {
		return IDAlgorithm{}, fmt.Errorf("unknown id algorithm %q", name)
	}
	return a, nil
}
