// Package config loads a machine profile (JSON or YAML) and builds a
// *vmill.MachineBrain from it through the brain's ordinary command
// surface — this package is pure sugar over AddAxis/AddChannel/etc,
// never a second path into the brain's state.
package config

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/danxdz/vmill"
	"github.com/danxdz/vmill/axis"
	"github.com/danxdz/vmill/channel"
)

// AxisConfig describes one axis to add to the brain.
type AxisConfig struct {
	Kind          string  `json:"kind" yaml:"kind"`
	Min           float64 `json:"min" yaml:"min"`
	Max           float64 `json:"max" yaml:"max"`
	Accel         float64 `json:"accel" yaml:"accel"`
	RapidVelocity float64 `json:"rapid_velocity" yaml:"rapid_velocity"`
	Invert        bool    `json:"invert" yaml:"invert"`
	MachineZero   float64 `json:"machine_zero" yaml:"machine_zero"`
}

// ChannelAxisConfig maps one channel-visible letter to a named axis.
type ChannelAxisConfig struct {
	Axis  string `json:"axis" yaml:"axis"`
	Label string `json:"label" yaml:"label"`
}

// ChannelConfig describes one channel to add to the brain.
type ChannelConfig struct {
	ID   int                 `json:"id" yaml:"id"`
	Axes []ChannelAxisConfig `json:"axes" yaml:"axes"`
}

// MachineConfig is the whole machine profile: named axes, named work
// offsets, and the channels that view a subset of the axes.
type MachineConfig struct {
	Axes        map[string]AxisConfig `json:"axes" yaml:"axes"`
	WorkOffsets []string              `json:"work_offsets" yaml:"work_offsets"`
	Channels    []ChannelConfig       `json:"channels" yaml:"channels"`
}

// applyDefaults fills in zero-valued fields with conservative defaults,
// the same role standalone/config/config.go's applyDefaults plays for
// the teacher's printer profiles.
func applyDefaults(cfg *MachineConfig) {
	if cfg.WorkOffsets == nil {
		cfg.WorkOffsets = []string{"G54"}
	}
	for name, a := range cfg.Axes {
		if a.Accel == 0 {
			a.Accel = 500.0
		}
		if a.RapidVelocity == 0 {
			a.RapidVelocity = 100.0
		}
		if a.Min == 0 && a.Max == 0 {
			a.Max = 1000.0
		}
		cfg.Axes[name] = a
	}
}

// DefaultMillConfig returns a default three-axis XYZ mill profile with
// a single channel viewing all three axes under G54.
func DefaultMillConfig() *MachineConfig {
	return &MachineConfig{
		Axes: map[string]AxisConfig{
			"x": {Kind: "linear", Min: 0, Max: 300, Accel: 800, RapidVelocity: 150},
			"y": {Kind: "linear", Min: 0, Max: 300, Accel: 800, RapidVelocity: 150},
			"z": {Kind: "linear", Min: -150, Max: 0, Accel: 600, RapidVelocity: 100},
		},
		WorkOffsets: []string{"G54", "G55", "G56", "G57", "G58", "G59"},
		Channels: []ChannelConfig{
			{
				ID: 0,
				Axes: []ChannelAxisConfig{
					{Axis: "x", Label: "X"},
					{Axis: "y", Label: "Y"},
					{Axis: "z", Label: "Z"},
				},
			},
		},
	}
}

// LoadJSON parses a JSON machine profile.
func LoadJSON(data []byte) (*MachineConfig, error) {
	var cfg MachineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse json")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadYAML parses a YAML machine profile.
func LoadYAML(data []byte) (*MachineConfig, error) {
	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Build constructs a brain from the configuration, wiring every axis,
// work offset, and channel through the brain's own command surface.
func Build(cfg *MachineConfig) (*vmill.MachineBrain, error) {
	b := vmill.New()

	axisIDs := make(map[string]axis.ID, len(cfg.Axes))
	for name, a := range cfg.Axes {
		kind := axis.Linear
		if a.Kind == "rotary" {
			kind = axis.Rotary
		}
		id, err := b.AddAxis(name, kind, a.Min, a.Max)
		if err != nil {
			return nil, errors.Wrapf(err, "config: add axis %q", name)
		}
		if err := b.SetAxisAccel(id, a.Accel); err != nil {
			return nil, errors.Wrapf(err, "config: axis %q accel", name)
		}
		if err := b.SetAxisRapidVelocity(id, a.RapidVelocity); err != nil {
			return nil, errors.Wrapf(err, "config: axis %q rapid velocity", name)
		}
		if err := b.SetAxisInvert(id, a.Invert); err != nil {
			return nil, errors.Wrapf(err, "config: axis %q invert", name)
		}
		if err := b.SetAxisMachineZero(id, a.MachineZero); err != nil {
			return nil, errors.Wrapf(err, "config: axis %q machine zero", name)
		}
		axisIDs[name] = id
	}

	for _, label := range cfg.WorkOffsets {
		b.AddWorkOffset(label)
	}

	for _, chCfg := range cfg.Channels {
		mappings := make([]channel.AxisMapping, 0, len(chCfg.Axes))
		for _, m := range chCfg.Axes {
			id, ok := axisIDs[m.Axis]
			if !ok {
				return nil, errors.Errorf("config: channel %d references unknown axis %q", chCfg.ID, m.Axis)
			}
			mappings = append(mappings, channel.AxisMapping{AxisID: int(id), Label: m.Label})
		}
		if err := b.AddChannel(chCfg.ID, mappings); err != nil {
			return nil, errors.Wrapf(err, "config: add channel %d", chCfg.ID)
		}
	}

	return b, nil
}
