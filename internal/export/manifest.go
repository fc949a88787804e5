package export

import (
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Manifest describes one export for downstream consumers.
type Manifest struct {
	GeneratedAt time.Time      `yaml:"generated_at"`
	RunID       string         `yaml:"run_id"`
	File        string         `yaml:"file"`
	Stage       string         `yaml:"stage"`
	Columns     []string       `yaml:"columns"`
	Segments    []SegmentCount `yaml:"segments,omitempty"`
	Rows        int            `yaml:"rows"`
}

// SegmentCount is the number of exported customers with one label.
type SegmentCount struct {
	Label     string `yaml:"label"`
	Segment   int    `yaml:"segment"`
	Customers int    `yaml:"customers"`
}

// ManifestPath returns the manifest location for an export file.
func ManifestPath(csvPath string) string {
	return csvPath + ".manifest.yaml"
}

// NewManifest describes customers exported to file under stage. An empty
// runID gets a fresh one.
func NewManifest(runID, file string, stage model.Stage, customers []model.Customer) Manifest {
	if runID == "" {
		runID = uuid.NewString()
	}

	m := Manifest{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		File:        file,
		Stage:       stage.String(),
		Columns:     stage.Columns(),
		Rows:        len(customers),
	}

	if stage >= model.StageSegmented {
		var counts [model.NumSegments]int
		for i := range customers {
			if s := customers[i].Segment; s >= 0 && s < model.NumSegments {
				counts[s]++
			}
		}
		for s, n := range counts {
			if n == 0 {
				continue
			}
			m.Segments = append(m.Segments, SegmentCount{Segment: s, Label: model.SegmentLabel(s), Customers: n})
		}
	}

	return m
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	// #nosec G304 - path is derived from the export location
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}
