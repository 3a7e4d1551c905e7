package ocr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Extractor reads the numeric value of a meter from a photo. It keeps no
// state between calls and is safe for concurrent use; every call opens its
// own engine session.
type Extractor struct {
	engine   Engine
	cfg      Config
	pre      Preprocessor
	progress ProgressFunc
	logger   *log.Logger
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithConfig overrides the pipeline constants.
func WithConfig(cfg Config) ExtractorOption {
	return func(x *Extractor) {
		cfg.applyDefaults()
		x.cfg = cfg
	}
}

// WithProgress installs a progress hook.
func WithProgress(fn ProgressFunc) ExtractorOption {
	return func(x *Extractor) { x.progress = fn }
}

// WithLogger sets the diagnostics logger (defaults to log.Default()).
func WithLogger(l *log.Logger) ExtractorOption {
	return func(x *Extractor) { x.logger = l }
}

// NewExtractor wires an engine into the two-pass extraction pipeline.
func NewExtractor(engine Engine, opts ...ExtractorOption) *Extractor {
	x := &Extractor{engine: engine, cfg: DefaultConfig(), logger: log.Default()}
	for _, opt := range opts {
		opt(x)
	}
	x.pre = NewPreprocessor(x.cfg)
	return x
}

// Config returns the pipeline constants in effect.
func (x *Extractor) Config() Config { return x.cfg }

// Probe reports whether the engine can run in this environment.
func (x *Extractor) Probe() error {
	if x.engine == nil {
		return fmt.Errorf("%w: no engine configured", ErrUnsupportedEnvironment)
	}
	if p, ok := x.engine.(Prober); ok {
		if err := p.Probe(); err != nil {
			if errors.Is(err, ErrUnsupportedEnvironment) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
		}
	}
	return nil
}

// Extract runs preprocessing, the line-mode primary pass and, when the
// primary candidate is shorter than MinDigits, one block-mode fallback pass
// on the original image. Failures are returned as an Outcome, never as a
// panic.
func (x *Extractor) Extract(ctx context.Context, image []byte) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusEngineError, Passes: out.Passes, Err: fmt.Errorf("%w: %v", ErrEnginePanic, r)}
			x.logger.Printf("OCR panic recovered: %v", r)
		}
		out.Duration = time.Since(start)
		x.report(Progress{Stage: StageDone, Percent: 100})
	}()

	if err := x.Probe(); err != nil {
		x.logger.Printf("OCR environment check failed: %v", err)
		return Outcome{Status: StatusUnsupportedEnvironment, Err: err}
	}

	x.report(Progress{Stage: StagePreprocessing})
	enhanced, err := x.enhance(image)
	if err != nil {
		x.logger.Printf("OCR preprocessing failed bytes=%d: %v", len(image), err)
		return Outcome{Status: StatusEngineError, Err: err}
	}

	var passes []RecognitionPass
	var digits string
	err = withSession(ctx, x.engine, func(s Session) error {
		var perr error
		passes, digits, perr = x.runPasses(ctx, s, enhanced, image)
		return perr
	})
	if err != nil {
		x.logger.Printf("OCR engine failed passes=%d: %v", len(passes), err)
		return Outcome{Status: StatusEngineError, Passes: passes, Err: err}
	}

	status := StatusSuccess
	if digits == "" {
		status = StatusNoMatch
	}
	x.logger.Printf("OCR final status=%s digits=%q passes=%d", status, digits, len(passes))
	return Outcome{Status: status, Digits: digits, Passes: passes}
}

// enhance decodes and preprocesses the upload, returning the raster as PNG.
// The decoded source and the raster are dropped once encoded.
func (x *Extractor) enhance(image []byte) ([]byte, error) {
	src, err := DecodeImage(image)
	if err != nil {
		return nil, err
	}
	raster, err := x.pre.Preprocess(src)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	return encodePNG(raster)
}

func (x *Extractor) runPasses(ctx context.Context, s Session, enhanced, original []byte) ([]RecognitionPass, string, error) {
	opts := x.cfg.primaryOptions()
	primary, err := x.runPass(ctx, s, 1, opts, InputEnhanced, enhanced)
	if err != nil {
		return nil, "", fmt.Errorf("primary pass: %w", err)
	}
	passes := []RecognitionPass{primary}
	best := primary.Digits
	if len(best) >= x.cfg.MinDigits {
		return passes, best, nil
	}

	x.logger.Printf("OCR primary result too short digits=%q min=%d, running fallback pass", best, x.cfg.MinDigits)
	opts.ParseMode = ParseBlock
	fallback, err := x.runPass(ctx, s, 2, opts, InputOriginal, original)
	if err != nil {
		return passes, "", fmt.Errorf("fallback pass: %w", err)
	}
	passes = append(passes, fallback)
	if len(fallback.Digits) > len(best) {
		best = fallback.Digits
	}
	return passes, best, nil
}

func (x *Extractor) runPass(ctx context.Context, s Session, n int, opts Options, input PassInput, img []byte) (RecognitionPass, error) {
	if err := s.Configure(opts); err != nil {
		return RecognitionPass{}, fmt.Errorf("configure %s mode: %w", opts.ParseMode, err)
	}
	x.report(Progress{Stage: StageRecognizing, Pass: n})
	rec, err := s.Recognize(ctx, img)
	if err != nil {
		return RecognitionPass{}, fmt.Errorf("recognize %s image: %w", input, err)
	}
	x.report(Progress{Stage: StageRecognizing, Pass: n, Percent: 100})
	pass := RecognitionPass{
		Mode:       opts.ParseMode,
		Input:      input,
		Text:       rec.Text,
		Confidence: rec.Confidence,
		Digits:     bestDigits(rec.Text, x.cfg.MinDigits),
	}
	x.logger.Printf("OCR pass=%d mode=%s input=%s conf=%.1f runs=%v digits=%q text=%q",
		n, pass.Mode, pass.Input, pass.Confidence, digitRuns(rec.Text), pass.Digits, logText(rec.Text, 80))
	return pass, nil
}

func (x *Extractor) report(p Progress) {
	if x.progress != nil {
		x.progress(p)
	}
}
