// SPDX-License-Identifier: MIT
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"trackscan/internal/feature"

	"gopkg.in/yaml.v3"
)

// ErrMissingFeature is returned when a model references a feature the
// vector does not carry.
var ErrMissingFeature = errors.New("missing feature")

// Term standardises one feature as (x-Center)/Scale and weights it.
type Term struct {
	Feature string  `yaml:"feature"`
	Weight  float64 `yaml:"weight"`
	Center  float64 `yaml:"center"`
	Scale   float64 `yaml:"scale"`
}

// Model is a logistic scorer over named features. The score is
// sigmoid(Bias + sum(Weight*(x-Center)/Scale)), which lies in (0,1).
type Model struct {
	Classifier string  `yaml:"classifier"`
	Bias       float64 `yaml:"bias"`
	Terms      []Term  `yaml:"terms"`
}

var _ Scorer = (*Model)(nil)

// LoadModel reads a model from a YAML file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if len(m.Terms) == 0 {
		return nil, fmt.Errorf("model %s has no terms", path)
	}
	return &m, nil
}

// Score implements Scorer.
func (m *Model) Score(ctx context.Context, v feature.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	z := m.Bias
	for _, t := range m.Terms {
		x, ok := v.Lookup(t.Feature)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingFeature, t.Feature)
		}
		scale := t.Scale
		if scale == 0 {
			scale = 1
		}
		z += t.Weight * (x - t.Center) / scale
	}
	if math.IsNaN(z) {
		return 0, fmt.Errorf("model %s produced NaN", m.Classifier)
	}
	return 1 / (1 + math.Exp(-z)), nil
}

func (m *Model) Close() error { return nil }

// DefaultModel returns the built-in baseline for id. The weights are hand-set
// heuristics over the spectral summary; trained weights belong in models_dir.
func DefaultModel(id ID) *Model {
	m := &Model{Classifier: id.String(), Terms: defaultTerms[id]}
	return m
}

var defaultTerms = map[ID][]Term{
	MoodHappy: {
		{Feature: "centroid_mean", Weight: 1.5, Center: 0.12, Scale: 0.05},
		{Feature: "pulse_clarity", Weight: 1.0, Center: 0.3, Scale: 0.15},
		{Feature: "rms_mean", Weight: 0.5, Center: 0.1, Scale: 0.05},
		{Feature: "flatness_mean", Weight: -0.5, Center: 0.2, Scale: 0.1},
	},
	MoodSad: {
		{Feature: "centroid_mean", Weight: -1.5, Center: 0.12, Scale: 0.05},
		{Feature: "rms_mean", Weight: -1.0, Center: 0.1, Scale: 0.05},
		{Feature: "onset_rate", Weight: -1.0, Center: 2, Scale: 1},
	},
	MoodRelaxed: {
		{Feature: "rms_std", Weight: -1.0, Center: 0.05, Scale: 0.03},
		{Feature: "flux_mean", Weight: -1.5, Center: 0.1, Scale: 0.05},
		{Feature: "onset_rate", Weight: -1.0, Center: 2, Scale: 1},
	},
	MoodAggressive: {
		{Feature: "rms_mean", Weight: 1.5, Center: 0.1, Scale: 0.05},
		{Feature: "flatness_mean", Weight: 1.0, Center: 0.2, Scale: 0.1},
		{Feature: "band_high_mid_mean", Weight: 1.0, Center: 0.1, Scale: 0.05},
	},
	MoodParty: {
		{Feature: "pulse_clarity", Weight: 1.5, Center: 0.3, Scale: 0.15},
		{Feature: "band_bass_mean", Weight: 1.0, Center: 0.25, Scale: 0.1},
		{Feature: "rms_mean", Weight: 1.0, Center: 0.1, Scale: 0.05},
	},
	MoodElectronic: {
		{Feature: "band_sub_mean", Weight: 1.0, Center: 0.05, Scale: 0.03},
		{Feature: "flatness_std", Weight: -1.0, Center: 0.1, Scale: 0.05},
		{Feature: "pulse_clarity", Weight: 1.0, Center: 0.3, Scale: 0.15},
	},
	MoodAcoustic: {
		{Feature: "flatness_mean", Weight: -1.5, Center: 0.2, Scale: 0.1},
		{Feature: "band_sub_mean", Weight: -1.0, Center: 0.05, Scale: 0.03},
		{Feature: "zcr_mean", Weight: -0.5, Center: 0.1, Scale: 0.05},
	},
	Danceability: {
		{Feature: "pulse_clarity", Weight: 2.0, Center: 0.3, Scale: 0.15},
		{Feature: "onset_rate", Weight: 1.0, Center: 2, Scale: 1},
	},
	TonalAtonal: {
		{Feature: "flatness_mean", Weight: 2.0, Center: 0.3, Scale: 0.1},
		{Feature: "zcr_std", Weight: 0.5, Center: 0.05, Scale: 0.03},
	},
}
