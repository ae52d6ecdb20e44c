// Package config parses the whitespace-separated key/value
// configuration file: one `key value` pair per line, `#` introduces a
// comment, and unknown keys are ignored with a warning.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// ConfigError reports a missing required key, a parse failure, or an
// inconsistent bias/impurity sign.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Reason)
}

// Config is the parsed, validated form of the key-value file.
type Config struct {
	VerbosityLevel int

	XtalLength         float64
	XtalRadius         float64
	TopBulletRadius    float64
	BottomBulletRadius float64
	PCLength           float64
	PCRadius           float64
	BulletizePC        bool
	TaperLength        float64
	WrapAroundRadius   float64
	DitchDepth         float64
	DitchThickness     float64
	LiThickness        float64

	XtalGrid float64

	ImpurityZ0       float64
	ImpurityGradient float64
	XtalHV           float64

	MaxIterations int

	WriteField bool
	WriteWP    bool

	DriftName string
	FieldName string
	WPName    string

	XtalTemp float64

	PreampTau float64

	TimeStepsCalc int
	StepTimeCalc  float64
	StepTimeOut   float64

	ChargeCloudSize float64
	UseDiffusion    bool
}

// Default returns the configuration defaults used when a key is left
// unset in the input file.
func Default() Config {
	return Config{
		VerbosityLevel:  0,
		MaxIterations:   30000,
		XtalTemp:        77,
		UseDiffusion:    false,
		ChargeCloudSize: 0,
		PreampTau:       0,
		TimeStepsCalc:   4000,
		StepTimeCalc:    1,
		StepTimeOut:     10,
		FieldName:       "field.dat",
		WPName:          "wp.dat",
		DriftName:       "drift.dat",
		WriteField:      true,
		WriteWP:         true,
	}
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the same format as Load from an already-open reader.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Config{}, &ConfigError{Reason: fmt.Sprintf("malformed line %q: need key and value", line)}
		}
		key, value := fields[0], strings.Join(fields[1:], " ")

		if err := cfg.set(key, value); err != nil {
			return Config{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	asFloat := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, &ConfigError{Reason: fmt.Sprintf("key %q: %v", key, err)}
		}
		return v, nil
	}
	asInt := func() (int, error) {
		v, err := strconv.Atoi(value)
		if err != nil {
			return 0, &ConfigError{Reason: fmt.Sprintf("key %q: %v", key, err)}
		}
		return v, nil
	}
	asBool := func() (bool, error) {
		v, err := strconv.Atoi(value)
		if err != nil {
			return false, &ConfigError{Reason: fmt.Sprintf("key %q: %v", key, err)}
		}
		return v != 0, nil
	}

	var err error
	switch key {
	case "verbosity_level":
		c.VerbosityLevel, err = asInt()
	case "xtal_length":
		c.XtalLength, err = asFloat()
	case "xtal_radius":
		c.XtalRadius, err = asFloat()
	case "top_bullet_radius":
		c.TopBulletRadius, err = asFloat()
	case "bottom_bullet_radius":
		c.BottomBulletRadius, err = asFloat()
	case "pc_length":
		c.PCLength, err = asFloat()
	case "pc_radius":
		c.PCRadius, err = asFloat()
	case "bulletize_PC":
		c.BulletizePC, err = asBool()
	case "taper_length":
		c.TaperLength, err = asFloat()
	case "wrap_around_radius":
		c.WrapAroundRadius, err = asFloat()
	case "ditch_depth":
		c.DitchDepth, err = asFloat()
	case "ditch_thickness":
		c.DitchThickness, err = asFloat()
	case "Li_thickness":
		c.LiThickness, err = asFloat()
	case "xtal_grid":
		c.XtalGrid, err = asFloat()
	case "impurity_z0":
		c.ImpurityZ0, err = asFloat()
	case "impurity_gradient":
		c.ImpurityGradient, err = asFloat()
	case "xtal_HV":
		c.XtalHV, err = asFloat()
	case "max_iterations":
		c.MaxIterations, err = asInt()
	case "write_field":
		c.WriteField, err = asBool()
	case "write_WP":
		c.WriteWP, err = asBool()
	case "drift_name":
		c.DriftName = value
	case "field_name":
		c.FieldName = value
	case "wp_name":
		c.WPName = value
	case "xtal_temp":
		c.XtalTemp, err = asFloat()
	case "preamp_tau":
		c.PreampTau, err = asFloat()
	case "time_steps_calc":
		c.TimeStepsCalc, err = asInt()
	case "step_time_calc":
		c.StepTimeCalc, err = asFloat()
	case "step_time_out":
		c.StepTimeOut, err = asFloat()
	case "charge_cloud_size":
		c.ChargeCloudSize, err = asFloat()
	case "use_diffusion":
		c.UseDiffusion, err = asBool()
	default:
		log.Printf("config: warning: unknown key %q ignored", key)
		return nil
	}
	return err
}

// validate enforces the bias/impurity opposite-sign convention and
// the presence of required keys.
func (c *Config) validate() error {
	if c.XtalLength <= 0 || c.XtalRadius <= 0 {
		return &ConfigError{Reason: "xtal_length and xtal_radius are required and must be positive"}
	}
	if c.XtalGrid <= 0 {
		return &ConfigError{Reason: "xtal_grid is required and must be positive"}
	}
	if c.XtalHV == 0 || c.ImpurityZ0 == 0 {
		return &ConfigError{Reason: "xtal_HV and impurity_z0 must both be non-zero"}
	}
	if (c.XtalHV > 0) == (c.ImpurityZ0 > 0) {
		return &ConfigError{Reason: "xtal_HV and impurity_z0 must have opposite signs"}
	}
	return nil
}
