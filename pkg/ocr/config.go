package ocr

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable constants of the extraction pipeline. The
// defaults are the values the capture app shipped with; none of them has a
// documented derivation.
type Config struct {
	ScaleFactor      int     `yaml:"scale_factor"`
	ContrastFactor   float64 `yaml:"contrast_factor"`
	Threshold        float64 `yaml:"threshold"`
	MaxSurfacePixels int     `yaml:"max_surface_pixels"`
	MinDigits        int     `yaml:"min_digits"`
	DPI              int     `yaml:"dpi"`
	CharWhitelist    string  `yaml:"char_whitelist"`
}

// DefaultConfig returns the shipped pipeline constants.
func DefaultConfig() Config {
	return Config{
		ScaleFactor:      2,
		ContrastFactor:   1.5,
		Threshold:        160,
		MaxSurfacePixels: 64 << 20,
		MinDigits:        4,
		DPI:              300,
		CharWhitelist:    "0123456789",
	}
}

// LoadConfigFile reads a YAML tuning file. Keys missing from the file keep
// their default value.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read ocr config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse ocr config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("ocr config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first out-of-range constant. Threshold must lie
// strictly between 0 and 255, and a single source pixel at ScaleFactor
// must fit in MaxSurfacePixels.
func (c Config) Validate() error {
	switch {
	case c.ScaleFactor < 1:
		return fmt.Errorf("scale_factor must be >= 1, got %d", c.ScaleFactor)
	case c.MaxSurfacePixels < 1:
		return fmt.Errorf("max_surface_pixels must be >= 1, got %d", c.MaxSurfacePixels)
	case int64(c.ScaleFactor) > int64(c.MaxSurfacePixels)/int64(c.ScaleFactor):
		return fmt.Errorf("scale_factor %d exceeds max_surface_pixels %d", c.ScaleFactor, c.MaxSurfacePixels)
	case c.ContrastFactor <= 0:
		return fmt.Errorf("contrast_factor must be > 0, got %g", c.ContrastFactor)
	case c.Threshold <= 0 || c.Threshold >= 255:
		return fmt.Errorf("threshold must be in (0, 255), got %g", c.Threshold)
	case c.MinDigits < 1:
		return fmt.Errorf("min_digits must be >= 1, got %d", c.MinDigits)
	case c.DPI < 1:
		return fmt.Errorf("dpi must be >= 1, got %d", c.DPI)
	case c.CharWhitelist == "":
		return fmt.Errorf("char_whitelist must not be empty")
	}
	return nil
}

// applyDefaults fills unset fields. Set but invalid values are replaced
// too, with a log line naming them.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ScaleFactor <= 0 {
		warnReset("scale_factor", c.ScaleFactor != 0, c.ScaleFactor, d.ScaleFactor)
		c.ScaleFactor = d.ScaleFactor
	}
	if c.ContrastFactor <= 0 {
		warnReset("contrast_factor", c.ContrastFactor != 0, c.ContrastFactor, d.ContrastFactor)
		c.ContrastFactor = d.ContrastFactor
	}
	if c.Threshold <= 0 || c.Threshold >= 255 {
		warnReset("threshold", c.Threshold != 0, c.Threshold, d.Threshold)
		c.Threshold = d.Threshold
	}
	if c.MaxSurfacePixels <= 0 {
		warnReset("max_surface_pixels", c.MaxSurfacePixels != 0, c.MaxSurfacePixels, d.MaxSurfacePixels)
		c.MaxSurfacePixels = d.MaxSurfacePixels
	}
	if c.MinDigits <= 0 {
		warnReset("min_digits", c.MinDigits != 0, c.MinDigits, d.MinDigits)
		c.MinDigits = d.MinDigits
	}
	if c.DPI <= 0 {
		warnReset("dpi", c.DPI != 0, c.DPI, d.DPI)
		c.DPI = d.DPI
	}
	if c.CharWhitelist == "" {
		c.CharWhitelist = d.CharWhitelist
	}
}

func warnReset(key string, set bool, got, def any) {
	if set {
		log.Printf("ocr config: %s=%v out of range, using %v", key, got, def)
	}
}

// primaryOptions is the engine setup for the line-oriented first pass.
func (c Config) primaryOptions() Options {
	return Options{
		CharWhitelist:    c.CharWhitelist,
		NumericMode:      true,
		ParseMode:        ParseLine,
		DPI:              c.DPI,
		InterwordSpacing: false,
	}
}
