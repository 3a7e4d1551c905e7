package main

import (
	"context"
	"fmt"
	"os"

	"meterreader/pkg/ocr"
)

func main() {
	p := "public/meters/sample.jpg"
	if len(os.Args) > 1 {
		p = os.Args[1]
	}
	data, err := os.ReadFile(p)
	if err != nil {
		fmt.Printf("read err=%v\n", err)
		os.Exit(1)
	}
	x := ocr.NewExtractor(ocr.NewTesseractEngine(), ocr.WithProgress(func(pr ocr.Progress) {
		fmt.Printf("progress stage=%s pass=%d percent=%d\n", pr.Stage, pr.Pass, pr.Percent)
	}))
	out := x.Extract(context.Background(), data)
	for i, pass := range out.Passes {
		fmt.Printf("pass=%d mode=%s input=%s conf=%.1f digits=%q text=%q\n", i+1, pass.Mode, pass.Input, pass.Confidence, pass.Digits, pass.Text)
	}
	fmt.Printf("status=%s digits=%q dur=%s err=%v\n", out.Status, out.Digits, out.Duration, out.Err)
}
