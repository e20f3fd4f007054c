package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConvSpec describes one convolution layer of the stack: its output channel
// width and kernel size.
type ConvSpec struct {
	Channels int `yaml:"channels" json:"channels"`
	Kernel   int `yaml:"kernel" json:"kernel"`
}

// Config is the validated architecture description for one model. Invalid
// combinations fail Validate with the offending value in the error; nothing
// is silently coerced.
type Config struct {
	EncoderEmbedDim    int        `yaml:"encoder_embed_dim" json:"encoder_embed_dim"`
	EncoderLayers      []ConvSpec `yaml:"encoder_layers" json:"encoder_layers"`
	DecoderEmbedDim    int        `yaml:"decoder_embed_dim" json:"decoder_embed_dim"`
	DecoderLayers      []ConvSpec `yaml:"decoder_layers" json:"decoder_layers"`
	DecoderOutEmbedDim int        `yaml:"decoder_out_embed_dim" json:"decoder_out_embed_dim"`

	// DecoderAttention selects which decoder layers attend to the encoder.
	// nil means every layer; otherwise the length must equal the number of
	// decoder layers.
	DecoderAttention []bool `yaml:"decoder_attention" json:"decoder_attention"`

	Dropout            float32 `yaml:"dropout" json:"dropout"`
	MaxSourcePositions int     `yaml:"max_source_positions" json:"max_source_positions"`
	MaxTargetPositions int     `yaml:"max_target_positions" json:"max_target_positions"`

	// ShareEmbed ties the decoder's vocabulary projection to its token
	// embedding table. Requires DecoderOutEmbedDim == DecoderEmbedDim.
	ShareEmbed bool `yaml:"share_embed" json:"share_embed"`
}

func repeatSpec(channels, kernel, n int) []ConvSpec {
	out := make([]ConvSpec, n)
	for i := range out {
		out[i] = ConvSpec{Channels: channels, Kernel: kernel}
	}
	return out
}

// DefaultConfig returns the base architecture: 20 encoder and decoder layers
// of 512 channels with kernel 3.
func DefaultConfig() Config {
	return Config{
		EncoderEmbedDim:    512,
		EncoderLayers:      repeatSpec(512, 3, 20),
		DecoderEmbedDim:    512,
		DecoderLayers:      repeatSpec(512, 3, 20),
		DecoderOutEmbedDim: 256,
		Dropout:            0.1,
		MaxSourcePositions: 1024,
		MaxTargetPositions: 1024,
	}
}

// presets is the static table of named architectures. Layer stacks are
// structured data, never expressions evaluated at runtime.
var presets = map[string]func() Config{
	"base": DefaultConfig,
	"iwslt-de-en": func() Config {
		c := DefaultConfig()
		c.EncoderEmbedDim = 256
		c.EncoderLayers = repeatSpec(256, 3, 4)
		c.DecoderEmbedDim = 256
		c.DecoderLayers = repeatSpec(256, 3, 3)
		c.DecoderOutEmbedDim = 256
		return c
	},
	"wmt-en-ro": func() Config {
		c := DefaultConfig()
		c.DecoderOutEmbedDim = 512
		return c
	},
	"wmt-en-de": func() Config {
		convs := append(repeatSpec(512, 3, 9), repeatSpec(1024, 3, 4)...)
		convs = append(convs, repeatSpec(2048, 1, 2)...)
		c := DefaultConfig()
		c.EncoderEmbedDim = 768
		c.EncoderLayers = convs
		c.DecoderEmbedDim = 768
		c.DecoderLayers = append([]ConvSpec(nil), convs...)
		c.DecoderOutEmbedDim = 512
		return c
	},
	"wmt-en-fr": func() Config {
		convs := append(repeatSpec(512, 3, 6), repeatSpec(768, 3, 4)...)
		convs = append(convs, repeatSpec(1024, 3, 3)...)
		convs = append(convs, ConvSpec{Channels: 2048, Kernel: 1})
		convs = append(convs, ConvSpec{Channels: 4096, Kernel: 1})
		c := DefaultConfig()
		c.EncoderEmbedDim = 768
		c.EncoderLayers = convs
		c.DecoderEmbedDim = 768
		c.DecoderLayers = append([]ConvSpec(nil), convs...)
		c.DecoderOutEmbedDim = 512
		return c
	},
}

// Preset returns the named architecture, or an error naming the unknown
// architecture.
func Preset(name string) (Config, error) {
	f, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("model: unknown architecture %q (known: %v)", name, PresetNames())
	}
	return f(), nil
}

// PresetNames lists the known architecture names in stable order.
func PresetNames() []string {
	return []string{"base", "iwslt-de-en", "wmt-en-de", "wmt-en-fr", "wmt-en-ro"}
}

// LoadConfig reads an architecture description from a YAML file and
// validates it.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("model: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("model: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BroadcastAttention expands a single attention flag to every decoder layer.
func BroadcastAttention(use bool, layers int) []bool {
	out := make([]bool, layers)
	for i := range out {
		out[i] = use
	}
	return out
}

// Validate checks the configuration for the failure modes that must be
// caught at construction.
func (c *Config) Validate() error {
	if c.EncoderEmbedDim <= 0 || c.DecoderEmbedDim <= 0 || c.DecoderOutEmbedDim <= 0 {
		return fmt.Errorf("model: embedding dims must be positive, got encoder=%d decoder=%d out=%d",
			c.EncoderEmbedDim, c.DecoderEmbedDim, c.DecoderOutEmbedDim)
	}
	if len(c.EncoderLayers) == 0 || len(c.DecoderLayers) == 0 {
		return fmt.Errorf("model: encoder and decoder need at least one layer, got %d and %d",
			len(c.EncoderLayers), len(c.DecoderLayers))
	}
	for i, spec := range append(append([]ConvSpec(nil), c.EncoderLayers...), c.DecoderLayers...) {
		if spec.Channels <= 0 || spec.Kernel <= 0 {
			return fmt.Errorf("model: layer %d has invalid spec (channels=%d kernel=%d)", i, spec.Channels, spec.Kernel)
		}
	}
	if c.DecoderAttention != nil && len(c.DecoderAttention) != len(c.DecoderLayers) {
		return fmt.Errorf("model: attention list length %d does not match %d decoder layers",
			len(c.DecoderAttention), len(c.DecoderLayers))
	}
	if c.ShareEmbed && c.DecoderOutEmbedDim != c.DecoderEmbedDim {
		return fmt.Errorf("model: shared embeddings require matching dims, got out=%d embed=%d",
			c.DecoderOutEmbedDim, c.DecoderEmbedDim)
	}
	if c.MaxSourcePositions <= 0 || c.MaxTargetPositions <= 0 {
		return fmt.Errorf("model: max positions must be positive, got source=%d target=%d",
			c.MaxSourcePositions, c.MaxTargetPositions)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("model: dropout must be in [0, 1), got %g", c.Dropout)
	}
	return nil
}

// attentionLayout resolves DecoderAttention to a per-layer slice.
func (c *Config) attentionLayout() []bool {
	if c.DecoderAttention == nil {
		return BroadcastAttention(true, len(c.DecoderLayers))
	}
	return c.DecoderAttention
}
