package config

import "testing"

func TestLoadJSONAppliesDefaults(t *testing.T) {
	data := []byte(`{
		"axes": {"x": {"kind": "linear", "min": 0, "max": 200}},
		"channels": [{"id": 0, "axes": [{"axis": "x", "label": "X"}]}]
	}`)

	cfg, err := LoadJSON(data)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(cfg.WorkOffsets) == 0 {
		t.Errorf("expected a default work offset to be filled in")
	}
	x := cfg.Axes["x"]
	if x.Accel == 0 {
		t.Errorf("expected a default acceleration to be filled in")
	}
	if x.RapidVelocity == 0 {
		t.Errorf("expected a default rapid velocity to be filled in")
	}
}

func TestLoadYAMLParsesAxesAndChannels(t *testing.T) {
	data := []byte(`
axes:
  x:
    kind: linear
    min: 0
    max: 300
    accel: 800
    rapid_velocity: 150
channels:
  - id: 0
    axes:
      - axis: x
        label: X
`)
	cfg, err := LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Axes["x"].Max != 300 {
		t.Errorf("expected axis x max 300, got %g", cfg.Axes["x"].Max)
	}
	if len(cfg.Channels) != 1 || len(cfg.Channels[0].Axes) != 1 {
		t.Fatalf("expected one channel with one axis mapping, got %+v", cfg.Channels)
	}
}

func TestBuildWiresAxesAndChannels(t *testing.T) {
	cfg := DefaultMillConfig()
	b, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	snap := b.GetFullState()
	if len(snap.Axes) != 3 {
		t.Fatalf("expected 3 axes, got %d", len(snap.Axes))
	}
	if len(snap.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(snap.Channels))
	}
	if len(snap.Channels[0].AxisMappings) != 3 {
		t.Errorf("expected the channel to map all 3 axes, got %d", len(snap.Channels[0].AxisMappings))
	}
	if len(snap.WorkOffsets) != 6 {
		t.Errorf("expected 6 work offsets (G54-G59), got %d", len(snap.WorkOffsets))
	}
}

func TestBuildRejectsChannelReferencingUnknownAxis(t *testing.T) {
	cfg := &MachineConfig{
		Axes: map[string]AxisConfig{"x": {Kind: "linear", Max: 100, Accel: 500, RapidVelocity: 100}},
		Channels: []ChannelConfig{
			{ID: 0, Axes: []ChannelAxisConfig{{Axis: "nonexistent", Label: "X"}}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected Build to reject a channel referencing an unknown axis")
	}
}
