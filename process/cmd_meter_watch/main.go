package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"meterreader/pkg/ocr"
	"meterreader/process/batch"
)

func main() {
	dirFlag := flag.String("dir", "public/meters", "directory to scan for meter photos")
	processed := flag.String("processed", "", "move completed photos to this directory (empty keeps them)")
	maxBytes := flag.Int64("max-bytes", 0, "downscale moved photos above this size (0 disables)")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	langs := flag.String("langs", "eng", "tesseract languages, e.g. eng+tha")
	tessdata := flag.String("tessdata", os.Getenv("TESSDATA_PREFIX"), "tessdata directory")
	configFile := flag.String("config", os.Getenv("OCR_CONFIG_FILE"), "optional YAML tuning file")
	verbose := flag.Bool("verbose", false, "Verbose per-file logging")
	flag.Parse()

	cfg := ocr.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = ocr.LoadConfigFile(*configFile); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	engine := ocr.NewTesseractEngine(strings.Split(*langs, "+")...)
	engine.TessdataPrefix = *tessdata
	extractor := ocr.NewExtractor(engine, ocr.WithConfig(cfg))
	if err := extractor.Probe(); err != nil {
		log.Fatalf("ocr engine unavailable: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out sync.Mutex
	r := &batch.Runner{
		Dir:               *dirFlag,
		Reader:            extractor,
		Workers:           *workers,
		ProcessedDir:      *processed,
		MaxProcessedBytes: *maxBytes,
		Verbose:           *verbose,
		OnResult: func(res batch.Result) {
			out.Lock()
			defer out.Unlock()
			fmt.Printf("%s\t%s\t%s\n", res.File, res.Outcome.Status, res.Outcome.Digits)
		},
	}
	results, err := r.Scan(ctx)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	counts := map[ocr.Status]int{}
	for _, res := range results {
		counts[res.Outcome.Status]++
	}
	log.Printf("scan done files=%d success=%d no_match=%d engine_error=%d",
		len(results), counts[ocr.StatusSuccess], counts[ocr.StatusNoMatch], counts[ocr.StatusEngineError])

	if *watch {
		if err := r.Watch(ctx); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}
