package main

import (
	"log"
	"os"
	"strings"

	"meterreader/pkg/ocr"

	"github.com/gin-gonic/gin"
)

func main() {
	// Auto-load ./.env if present before reading vars
	if err := loadDotEnv(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env: %v", err)
	}
	cfg, err := loadAppConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	engine := ocr.NewTesseractEngine(cfg.Languages...)
	engine.TessdataPrefix = cfg.TessdataPrefix
	extractor := ocr.NewExtractor(engine, ocr.WithConfig(cfg.OCR))

	// Support a lightweight probe command: `./meterreader probe`
	// It checks the OCR engine once and exits. Useful for container health setup.
	if len(os.Args) > 1 && os.Args[1] == "probe" {
		if err := extractor.Probe(); err != nil {
			log.Fatalf("probe failed: %v", err)
		}
		log.Printf("ocr engine ready langs=%s", strings.Join(cfg.Languages, "+"))
		return
	}
	if err := extractor.Probe(); err != nil {
		// keep serving; /read and /capture report UNSUPPORTED_ENVIRONMENT
		log.Printf("warning: %v", err)
	}
	if len(cfg.JWTSecret) == 0 {
		log.Printf("warning: JWT_SECRET not set, endpoints are unauthenticated")
	}

	srv := &server{
		reader:          extractor,
		maxUpload:       cfg.UploadMaxBytes,
		locationTimeout: cfg.LocationTimeout,
		jwtSecret:       cfg.JWTSecret,
	}
	r := gin.Default()
	r.MaxMultipartMemory = cfg.UploadMaxBytes
	setupRoutes(r, srv)

	log.Printf("listening addr=%s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
