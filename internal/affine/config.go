package affine

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Config is the serializable description of a layer: everything New needs
// to reconstruct an equivalent unbuilt layer. Weights travel separately
// through the Store contract.
type Config struct {
	Units             int     `json:"units"`
	Activation        string  `json:"activation,omitempty"`
	UseBias           bool    `json:"use_bias"`
	KernelInitializer string  `json:"kernel_initializer"`
	BiasInitializer   string  `json:"bias_initializer"`
	KernelRegularizer string  `json:"kernel_regularizer,omitempty"`
	BiasRegularizer   string  `json:"bias_regularizer,omitempty"`
	KernelConstraint  string  `json:"kernel_constraint,omitempty"`
	BiasConstraint    string  `json:"bias_constraint,omitempty"`
	LoraRank          int     `json:"lora_rank,omitempty"`
	LoraAlpha         float64 `json:"lora_alpha,omitempty"`
	Mode              string  `json:"quantization_mode,omitempty"`
	AmaxHistoryLength int     `json:"amax_history_length,omitempty"`
	InputDim          int     `json:"input_dim,omitempty"`
}

// Config captures the layer's construction parameters. InputDim is only
// set once the layer is built.
func (l *Layer) Config() Config {
	cfg := Config{
		Units:             l.units,
		Activation:        l.activation.Name,
		UseBias:           l.useBias,
		KernelInitializer: l.kernelInit.Name,
		BiasInitializer:   l.biasInit.Name,
		KernelRegularizer: l.kernelReg.Name,
		BiasRegularizer:   l.biasReg.Name,
		KernelConstraint:  l.kernelConstraint.Name,
		BiasConstraint:    l.biasConstraint.Name,
		InputDim:          l.inputDim,
	}
	if cfg.Activation == "linear" {
		cfg.Activation = ""
	}
	if l.mode != ModeNone {
		cfg.Mode = l.mode.String()
		if l.mode == ModeFloat8 {
			cfg.AmaxHistoryLength = l.amaxHistoryLen
		}
	}
	if l.lora != nil {
		cfg.LoraRank = l.lora.rank
		cfg.LoraAlpha = l.lora.alpha
	} else if l.pendingLoraRank > 0 {
		cfg.LoraRank = l.pendingLoraRank
		cfg.LoraAlpha = l.pendingLoraAlpha
	}
	return cfg
}

// FromConfig reconstructs an unbuilt layer from a Config. If the config
// records an input dimension the layer is built immediately.
func FromConfig(cfg Config) (*Layer, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	l, err := New(cfg.Units, Options{
		Activation:        cfg.Activation,
		NoBias:            !cfg.UseBias,
		KernelInitializer: cfg.KernelInitializer,
		BiasInitializer:   cfg.BiasInitializer,
		KernelRegularizer: cfg.KernelRegularizer,
		BiasRegularizer:   cfg.BiasRegularizer,
		KernelConstraint:  cfg.KernelConstraint,
		BiasConstraint:    cfg.BiasConstraint,
		LoraRank:          cfg.LoraRank,
		LoraAlpha:         cfg.LoraAlpha,
		Mode:              mode,
		AmaxHistoryLength: cfg.AmaxHistoryLength,
	})
	if err != nil {
		return nil, err
	}
	if cfg.InputDim > 0 {
		if err := l.Build(cfg.InputDim); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// JSON encodes the config for the checkpoint manifest.
func (c Config) JSON() ([]byte, error) {
	return json.Marshal(c)
}

func ConfigFromJSON(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("affine: decoding layer config: %w", err)
	}
	return c, nil
}
