package config

import (
	"strings"
	"testing"
)

const sampleConfig = `# scenario 1
xtal_length 50.5
xtal_radius 34.5
pc_length 2.1
pc_radius 1.4
xtal_grid 0.5
impurity_z0 -0.318
impurity_gradient 0.025
xtal_HV 2500
max_iterations 30000
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.XtalLength != 50.5 {
		t.Fatalf("XtalLength = %g, want 50.5", cfg.XtalLength)
	}
	if cfg.MaxIterations != 30000 {
		t.Fatalf("MaxIterations = %d, want 30000", cfg.MaxIterations)
	}
}

func TestParseUnknownKeyIgnored(t *testing.T) {
	src := sampleConfig + "frobnicate 1\n"
	if _, err := Parse(strings.NewReader(src)); err != nil {
		t.Fatalf("unknown key should be ignored with a warning, got error: %v", err)
	}
}

func TestParseRejectsSameSignBiasImpurity(t *testing.T) {
	src := strings.ReplaceAll(sampleConfig, "impurity_z0 -0.318", "impurity_z0 0.318")
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatalf("expected ConfigError for same-sign bias/impurity")
	}
}

func TestParseMalformedLine(t *testing.T) {
	src := "xtal_length\n"
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatalf("expected ConfigError for missing value")
	}
}
