package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPresetKnownNames(t *testing.T) {
	for _, name := range PresetNames() {
		cfg, err := Preset(name)
		if err != nil {
			t.Fatalf("preset %s: %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("preset %s invalid: %v", name, err)
		}
	}
}

func TestPresetUnknownNamesTheValue(t *testing.T) {
	_, err := Preset("fictional")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "fictional") {
		t.Fatalf("error does not name the architecture: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	mutate := func(f func(*Config)) Config {
		c := DefaultConfig()
		f(&c)
		return c
	}
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero_embed", mutate(func(c *Config) { c.EncoderEmbedDim = 0 })},
		{"no_layers", mutate(func(c *Config) { c.DecoderLayers = nil })},
		{"zero_kernel", mutate(func(c *Config) { c.EncoderLayers[0].Kernel = 0 })},
		{"negative_channels", mutate(func(c *Config) { c.DecoderLayers[2].Channels = -1 })},
		{"attention_length", mutate(func(c *Config) { c.DecoderAttention = []bool{true} })},
		{"tied_width", mutate(func(c *Config) { c.ShareEmbed = true })},
		{"zero_maxpos", mutate(func(c *Config) { c.MaxTargetPositions = 0 })},
		{"dropout_one", mutate(func(c *Config) { c.Dropout = 1 })},
		{"dropout_negative", mutate(func(c *Config) { c.Dropout = -0.1 })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsSharedEmbedWithMatchingDims(t *testing.T) {
	c := DefaultConfig()
	c.ShareEmbed = true
	c.DecoderOutEmbedDim = c.DecoderEmbedDim
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBroadcastAttention(t *testing.T) {
	got := BroadcastAttention(true, 3)
	if len(got) != 3 || !got[0] || !got[1] || !got[2] {
		t.Fatalf("got %v", got)
	}
}

func TestAttentionLayoutDefaultsToAll(t *testing.T) {
	c := DefaultConfig()
	layout := c.attentionLayout()
	if len(layout) != len(c.DecoderLayers) {
		t.Fatalf("layout length %d", len(layout))
	}
	for i, use := range layout {
		if !use {
			t.Fatalf("layer %d defaulted to no attention", i)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arch.yaml")
	src := `encoder_embed_dim: 32
encoder_layers:
  - {channels: 64, kernel: 3}
decoder_embed_dim: 32
decoder_layers:
  - {channels: 64, kernel: 3}
decoder_out_embed_dim: 32
dropout: 0.2
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EncoderEmbedDim != 32 || len(cfg.EncoderLayers) != 1 || cfg.EncoderLayers[0].Channels != 64 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Dropout != 0.2 {
		t.Fatalf("dropout: got %g", cfg.Dropout)
	}
	// fields absent from the file keep their defaults
	if cfg.MaxSourcePositions != 1024 {
		t.Fatalf("max source positions: got %d", cfg.MaxSourcePositions)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arch.yaml")
	if err := os.WriteFile(path, []byte("dropout: 1.5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}
