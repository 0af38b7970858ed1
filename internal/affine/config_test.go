package affine

import (
	"errors"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	l := mustLayer(t, 8, Options{
		Activation:        "relu",
		BiasInitializer:   "ones",
		KernelRegularizer: "l2",
		LoraRank:          4,
	})
	mustBuild(t, l, 16)

	cfg := l.Config()
	data, err := cfg.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	decoded, err := ConfigFromJSON(data)
	if err != nil {
		t.Fatalf("ConfigFromJSON: %v", err)
	}
	if decoded != cfg {
		t.Fatalf("decoded config %+v differs from %+v", decoded, cfg)
	}

	rebuilt, err := FromConfig(decoded)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if !rebuilt.Built() || rebuilt.InputDim() != 16 {
		t.Fatalf("rebuilt layer built=%v inputDim=%d, want a built 16-feature layer", rebuilt.Built(), rebuilt.InputDim())
	}
	if !rebuilt.LoraEnabled() {
		t.Fatal("lora not re-enabled from config")
	}
	if got := rebuilt.Config(); got != cfg {
		t.Fatalf("rebuilt config %+v differs from %+v", got, cfg)
	}
}

func TestConfigDefaults(t *testing.T) {
	l := mustLayer(t, 4, Options{})
	cfg := l.Config()
	if cfg.Activation != "" {
		t.Fatalf("linear activation serialized as %q, want empty", cfg.Activation)
	}
	if cfg.KernelInitializer != "glorot_uniform" || cfg.BiasInitializer != "zeros" {
		t.Fatalf("initializers %q/%q, want defaults", cfg.KernelInitializer, cfg.BiasInitializer)
	}
	if !cfg.UseBias {
		t.Fatal("bias disabled by default")
	}
	if cfg.InputDim != 0 {
		t.Fatalf("unbuilt layer reports input dim %d", cfg.InputDim)
	}
}

func TestConfigPendingLora(t *testing.T) {
	l := mustLayer(t, 4, Options{LoraRank: 2, LoraAlpha: 8})
	cfg := l.Config()
	if cfg.LoraRank != 2 || cfg.LoraAlpha != 8 {
		t.Fatalf("pending lora not in config: rank=%d alpha=%v", cfg.LoraRank, cfg.LoraAlpha)
	}
}

func TestConfigQuantized(t *testing.T) {
	l := mustLayer(t, 4, Options{})
	mustBuild(t, l, 6)
	if err := l.Quantize(ModeInt4); err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	cfg := l.Config()
	if cfg.Mode != "int4" {
		t.Fatalf("mode %q, want int4", cfg.Mode)
	}
	if cfg.AmaxHistoryLength != 0 {
		t.Fatal("history length reported outside float8 mode")
	}

	rebuilt, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if rebuilt.Mode() != ModeInt4 || rebuilt.InputDim() != 6 {
		t.Fatalf("rebuilt mode=%v inputDim=%d, want int4 over 6 features", rebuilt.Mode(), rebuilt.InputDim())
	}
}

func TestConfigFloat8History(t *testing.T) {
	l := mustLayer(t, 4, Options{Mode: ModeFloat8, AmaxHistoryLength: 16})
	mustBuild(t, l, 6)
	cfg := l.Config()
	if cfg.Mode != "float8" || cfg.AmaxHistoryLength != 16 {
		t.Fatalf("config mode=%q history=%d, want float8/16", cfg.Mode, cfg.AmaxHistoryLength)
	}

	rebuilt, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(rebuilt.f8.inputsAmaxHistory) != 16 {
		t.Fatalf("rebuilt history depth %d, want 16", len(rebuilt.f8.inputsAmaxHistory))
	}
}

func TestConfigFromJSONInvalid(t *testing.T) {
	if _, err := ConfigFromJSON([]byte("{units:")); err == nil {
		t.Fatal("malformed json accepted")
	}
}

func TestFromConfigUnknownMode(t *testing.T) {
	if _, err := FromConfig(Config{Units: 2, Mode: "int2"}); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("got %v, want ErrUnsupportedMode", err)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeNone, true},
		{"none", ModeNone, true},
		{"int8", ModeInt8, true},
		{"int4", ModeInt4, true},
		{"float8", ModeFloat8, true},
		{"fp16", ModeNone, false},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrUnsupportedMode) {
			t.Fatalf("ParseMode(%q) err = %v, want ErrUnsupportedMode", tc.in, err)
		}
	}
}
