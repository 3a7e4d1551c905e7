package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"meterreader/pkg/ocr"

	"github.com/disintegration/imaging"
)

// Writes the binarized raster the primary pass sees next to the input as
// <name>.enhanced.png.
func main() {
	configFile := flag.String("config", "", "optional YAML tuning file")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("usage: go run ./process/cmd_debug_preproc [-config ocr.yaml] <photo>")
		os.Exit(2)
	}
	in := flag.Arg(0)

	cfg := ocr.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = ocr.LoadConfigFile(*configFile); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	data, err := os.ReadFile(in)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	src, err := ocr.DecodeImage(data)
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	raster, err := ocr.NewPreprocessor(cfg).Preprocess(src)
	if err != nil {
		log.Fatalf("preprocess: %v", err)
	}
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".enhanced.png"
	if err := imaging.Save(raster, out); err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("src=%dx%d enhanced=%dx%d scale=%d contrast=%.2f threshold=%.0f out=%s\n",
		src.Bounds().Dx(), src.Bounds().Dy(), raster.Bounds().Dx(), raster.Bounds().Dy(),
		cfg.ScaleFactor, cfg.ContrastFactor, cfg.Threshold, out)
}
