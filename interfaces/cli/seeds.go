package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/orchestrator"
)

// ErrNoSeeds is returned when the seed file names no targets.
var ErrNoSeeds = errors.New("seed file names no targets")

// seedDoc is the on-disk form of one seed entry.
type seedDoc struct {
	Target struct {
		ID            string `yaml:"id" json:"id"`
		Description   string `yaml:"description" json:"description"`
		RegionClassID string `yaml:"region_class_id" json:"region_class_id"`
	} `yaml:"target" json:"target"`
	Hypotheses []struct {
		ID          string `yaml:"id" json:"id"`
		RouteSketch string `yaml:"route_sketch" json:"route_sketch"`
		Shape       string `yaml:"shape" json:"shape"`
	} `yaml:"hypotheses" json:"hypotheses"`
}

// loadSeeds parses a YAML or JSON seed file into engine seeds.
func loadSeeds(path string) ([]orchestrator.Seed, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator flags
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var docs []seedDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &docs)
	default:
		err = yaml.Unmarshal(data, &docs)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSeeds, path)
	}

	seeds := make([]orchestrator.Seed, 0, len(docs))
	for i, doc := range docs {
		if doc.Target.ID == "" {
			return nil, fmt.Errorf("seed %d: target id is required", i)
		}
		target := hypothesis.NewTargetState(doc.Target.ID, doc.Target.Description)
		target.RegionClassID = doc.Target.RegionClassID

		seed := orchestrator.Seed{Target: target}
		for j, hd := range doc.Hypotheses {
			if hd.ID == "" {
				return nil, fmt.Errorf("seed %d hypothesis %d: id is required", i, j)
			}
			shape := hypothesis.Shape(hd.Shape)
			if hd.Shape == "" {
				shape = hypothesis.ShapeSimple
			}
			if !shape.IsValid() {
				return nil, fmt.Errorf("seed %d hypothesis %s: unknown shape %q", i, hd.ID, hd.Shape)
			}
			seed.Hypotheses = append(seed.Hypotheses, hypothesis.New(hd.ID, target.ID, hd.RouteSketch, shape))
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
