package encoder

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/23skdu/longbow-bowyer/internal/activation"
)

// ConfigError is an invalid or inconsistent configuration. Always fatal;
// raised at the point of detection, never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds the architecture hyperparameters of the encoder. It is
// consumed by value at build and encode time and never mutated afterwards.
type Config struct {
	// VocabSize is the size of the word-id vocabulary.
	VocabSize int `json:"vocab_size"`
	// HiddenSize is the width of the encoder layers and the pooler.
	HiddenSize int `json:"hidden_size"`
	// NumHiddenLayers is the depth of the transformer stack.
	NumHiddenLayers int `json:"num_hidden_layers"`
	// NumAttentionHeads must divide HiddenSize evenly.
	NumAttentionHeads int `json:"num_attention_heads"`
	// IntermediateSize is the width of the feed-forward expansion.
	IntermediateSize int `json:"intermediate_size"`
	// HiddenAct names the feed-forward nonlinearity ("gelu", "relu",
	// "tanh", "linear").
	HiddenAct string `json:"hidden_act"`
	// HiddenDropoutProb applies to fully connected outputs in the
	// embeddings, encoder and pooler paths.
	HiddenDropoutProb float32 `json:"hidden_dropout_prob"`
	// AttentionProbsDropoutProb applies to the attention probabilities
	// themselves.
	AttentionProbsDropoutProb float32 `json:"attention_probs_dropout_prob"`
	// MaxPositionEmbeddings is the longest sequence the position table
	// supports.
	MaxPositionEmbeddings int `json:"max_position_embeddings"`
	// TypeVocabSize is the segment-id vocabulary size.
	TypeVocabSize int `json:"type_vocab_size"`
	// InitializerRange is the stddev of the truncated normal initializer
	// for every learnable tensor.
	InitializerRange float32 `json:"initializer_range"`

	// HiddenActFunc, when non-nil, overrides HiddenAct with a custom
	// kernel. Not serialized.
	HiddenActFunc activation.Func `json:"-"`
}

// DefaultConfig returns the standard base hyperparameters for the given
// vocabulary size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:                 vocabSize,
		HiddenSize:                768,
		NumHiddenLayers:           12,
		NumAttentionHeads:         12,
		IntermediateSize:          3072,
		HiddenAct:                 "gelu",
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		MaxPositionEmbeddings:     512,
		TypeVocabSize:             16,
		InitializerRange:          0.02,
	}
}

// ConfigFromJSON parses a configuration document. Unknown keys are ignored;
// absent keys keep their zero values. Validation happens at model build, not
// here, so partially specified documents can still be patched up by callers.
func ConfigFromJSON(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ConfigFromJSON(data)
}

// ToJSON serializes the configuration.
func (c Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks the configuration for structural consistency.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return configErrorf("vocab_size", "must be positive, got %d", c.VocabSize)
	}
	if c.HiddenSize <= 0 {
		return configErrorf("hidden_size", "must be positive, got %d", c.HiddenSize)
	}
	if c.NumHiddenLayers < 0 {
		return configErrorf("num_hidden_layers", "must be non-negative, got %d", c.NumHiddenLayers)
	}
	if c.NumAttentionHeads <= 0 {
		return configErrorf("num_attention_heads", "must be positive, got %d", c.NumAttentionHeads)
	}
	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return configErrorf("hidden_size",
			"hidden size (%d) is not a multiple of the number of attention heads (%d)",
			c.HiddenSize, c.NumAttentionHeads)
	}
	if c.IntermediateSize <= 0 {
		return configErrorf("intermediate_size", "must be positive, got %d", c.IntermediateSize)
	}
	if c.HiddenDropoutProb < 0 || c.HiddenDropoutProb > 1 {
		return configErrorf("hidden_dropout_prob", "must be in [0, 1], got %v", c.HiddenDropoutProb)
	}
	if c.AttentionProbsDropoutProb < 0 || c.AttentionProbsDropoutProb > 1 {
		return configErrorf("attention_probs_dropout_prob", "must be in [0, 1], got %v", c.AttentionProbsDropoutProb)
	}
	if c.MaxPositionEmbeddings <= 0 {
		return configErrorf("max_position_embeddings", "must be positive, got %d", c.MaxPositionEmbeddings)
	}
	if c.TypeVocabSize <= 0 {
		return configErrorf("type_vocab_size", "must be positive, got %d", c.TypeVocabSize)
	}
	if c.InitializerRange <= 0 {
		return configErrorf("initializer_range", "must be positive, got %v", c.InitializerRange)
	}
	if c.HiddenActFunc == nil {
		if _, err := activation.Resolve(c.HiddenAct); err != nil {
			return configErrorf("hidden_act", "%v", err)
		}
	}
	return nil
}

// inference returns a copy with both dropout rates forced to zero. The copy
// is what flows through a non-training forward pass, so dropout can never
// fire during inference.
func (c Config) inference() Config {
	c.HiddenDropoutProb = 0
	c.AttentionProbsDropoutProb = 0
	return c
}

// hiddenAct resolves the configured feed-forward activation.
func (c Config) hiddenAct() (activation.Func, error) {
	if c.HiddenActFunc != nil {
		return c.HiddenActFunc, nil
	}
	f, err := activation.Resolve(c.HiddenAct)
	if err != nil {
		return nil, configErrorf("hidden_act", "%v", err)
	}
	return f, nil
}
