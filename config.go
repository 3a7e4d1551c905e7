package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"meterreader/pkg/geo"
	"meterreader/pkg/ocr"
)

// appConfig is the service configuration, read from the environment after
// .env has been loaded.
type appConfig struct {
	ListenAddr      string
	JWTSecret       []byte
	UploadMaxBytes  int64
	TessdataPrefix  string
	Languages       []string
	LocationTimeout time.Duration
	OCR             ocr.Config
}

func loadAppConfig() (appConfig, error) {
	cfg := appConfig{
		ListenAddr:      envString("LISTEN_ADDR", ":8081"),
		UploadMaxBytes:  envInt64("UPLOAD_MAX_BYTES", 10<<20),
		TessdataPrefix:  os.Getenv("TESSDATA_PREFIX"),
		Languages:       splitLanguages(envString("OCR_LANGUAGES", "eng")),
		LocationTimeout: envDuration("LOCATION_TIMEOUT", geo.DefaultTimeout),
		OCR:             ocr.DefaultConfig(),
	}
	if s := os.Getenv("JWT_SECRET"); s != "" {
		cfg.JWTSecret = []byte(s)
	}
	if path := os.Getenv("OCR_CONFIG_FILE"); path != "" {
		fileCfg, err := ocr.LoadConfigFile(path)
		if err != nil {
			return appConfig{}, err
		}
		cfg.OCR = fileCfg
	}
	// env vars win over the tuning file
	cfg.OCR.ScaleFactor = int(envInt64("OCR_SCALE_FACTOR", int64(cfg.OCR.ScaleFactor)))
	cfg.OCR.ContrastFactor = envFloat("OCR_CONTRAST_FACTOR", cfg.OCR.ContrastFactor)
	cfg.OCR.Threshold = envFloat("OCR_THRESHOLD", cfg.OCR.Threshold)
	cfg.OCR.MinDigits = int(envInt64("OCR_MIN_DIGITS", int64(cfg.OCR.MinDigits)))
	cfg.OCR.DPI = int(envInt64("OCR_DPI", int64(cfg.OCR.DPI)))

	if err := cfg.OCR.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("ocr settings: %w", err)
	}
	if cfg.UploadMaxBytes <= 0 {
		return appConfig{}, fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", cfg.UploadMaxBytes)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: ignoring %s=%q", key, v)
		return def
	}
	return d
}

// splitLanguages accepts "eng+tha" or "eng,tha".
func splitLanguages(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || r == ' ' })
	if len(parts) == 0 {
		return []string{"eng"}
	}
	return parts
}

// loadDotEnv sets KEY=value pairs from path without overriding variables
// already in the environment. Blank lines and # comments are skipped, an
// "export " prefix is accepted and matching quotes around a value are
// removed.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("%s:%d: expected KEY=value", path, n)
		}
		val = unquote(strings.TrimSpace(val))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, val); err != nil {
				return fmt.Errorf("%s:%d: %w", path, n, err)
			}
		}
	}
	return sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
