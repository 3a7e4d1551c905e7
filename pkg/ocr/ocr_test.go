package ocr

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func newTestExtractor(f *fakeEngine, opts ...ExtractorOption) *Extractor {
	return NewExtractor(f, append([]ExtractorOption{WithLogger(quietLogger())}, opts...)...)
}

func TestExtractPrimaryLongEnoughSkipsFallback(t *testing.T) {
	f := &fakeEngine{results: texts("Ab12 3456 Cd")}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 20, 10))
	if out.Status != StatusSuccess || out.Digits != "3456" {
		t.Fatalf("expected SUCCESS 3456 got %s %q err=%v", out.Status, out.Digits, out.Err)
	}
	if len(out.Passes) != 1 || len(f.inputs) != 1 {
		t.Fatalf("expected a single pass got passes=%d engine calls=%d", len(out.Passes), len(f.inputs))
	}
	if f.opened != 1 || f.closed != 1 {
		t.Fatalf("expected session opened/closed once got %d/%d", f.opened, f.closed)
	}
}

func TestExtractPrimaryOptions(t *testing.T) {
	f := &fakeEngine{results: texts("12", "56789")}
	newTestExtractor(f).Extract(context.Background(), samplePNG(t, 20, 10))
	if len(f.configured) != 2 {
		t.Fatalf("expected two configure calls got %d", len(f.configured))
	}
	want := Options{CharWhitelist: "0123456789", NumericMode: true, ParseMode: ParseLine, DPI: 300, InterwordSpacing: false}
	if f.configured[0] != want {
		t.Fatalf("primary options %+v want %+v", f.configured[0], want)
	}
	if f.configured[1].ParseMode != ParseBlock {
		t.Fatalf("fallback should use block mode got %s", f.configured[1].ParseMode)
	}
}

func TestExtractFallbackUsesOriginalImage(t *testing.T) {
	photo := samplePNG(t, 20, 10)
	f := &fakeEngine{results: texts("12", "56789")}
	out := newTestExtractor(f).Extract(context.Background(), photo)
	if out.Status != StatusSuccess || out.Digits != "56789" {
		t.Fatalf("expected fallback digits 56789 got %s %q", out.Status, out.Digits)
	}
	if len(f.inputs) != 2 {
		t.Fatalf("expected 2 engine calls got %d", len(f.inputs))
	}
	if bytes.Equal(f.inputs[0], photo) {
		t.Fatalf("primary pass should see the enhanced raster, not the upload")
	}
	if !bytes.Equal(f.inputs[1], photo) {
		t.Fatalf("fallback pass should see the original upload")
	}
	if out.Passes[0].Input != InputEnhanced || out.Passes[1].Input != InputOriginal {
		t.Fatalf("unexpected pass inputs %s %s", out.Passes[0].Input, out.Passes[1].Input)
	}
	if f.closed != 1 {
		t.Fatalf("expected one close got %d", f.closed)
	}
}

func TestExtractFallbackIffShort(t *testing.T) {
	cases := []struct {
		primary  string
		fallback bool
	}{
		{"", true},
		{"7", true},
		{"123", true},
		{"12-34", false},
		{"1234", false},
		{"meter 000123456", false},
	}
	for _, c := range cases {
		f := &fakeEngine{results: texts(c.primary, "99")}
		out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
		ran := len(out.Passes) == 2
		if ran != c.fallback {
			t.Fatalf("primary %q: fallback ran=%v want %v", c.primary, ran, c.fallback)
		}
	}
}

func TestExtractTieKeepsPrimary(t *testing.T) {
	f := &fakeEngine{results: texts("12", "34")}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Digits != "12" {
		t.Fatalf("tie should keep primary candidate got %q", out.Digits)
	}
}

func TestExtractShorterFallbackKeepsPrimary(t *testing.T) {
	f := &fakeEngine{results: texts("123", "9")}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Digits != "123" || out.Status != StatusSuccess {
		t.Fatalf("expected primary 123 got %s %q", out.Status, out.Digits)
	}
}

func TestExtractNoMatch(t *testing.T) {
	f := &fakeEngine{results: texts("no digits here", "still nothing")}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Status != StatusNoMatch || out.Digits != "" {
		t.Fatalf("expected NO_MATCH got %s %q", out.Status, out.Digits)
	}
	if f.closed != 1 {
		t.Fatalf("expected one close got %d", f.closed)
	}
}

func TestExtractEngineErrors(t *testing.T) {
	cases := map[string]*fakeEngine{
		"primary":  {errs: []error{errBoom}},
		"fallback": {results: texts("1"), errs: []error{nil, errBoom}},
		"close":    {results: texts("123456"), closeErr: errBoom},
	}
	for name, f := range cases {
		out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
		if out.Status != StatusEngineError {
			t.Fatalf("%s: expected ENGINE_ERROR got %s", name, out.Status)
		}
		if !errors.Is(out.Err, errBoom) {
			t.Fatalf("%s: expected cause boom got %v", name, out.Err)
		}
		if f.opened != 1 || f.closed != 1 {
			t.Fatalf("%s: expected session opened/closed once got %d/%d", name, f.opened, f.closed)
		}
	}
}

func TestExtractPanicReleasesSession(t *testing.T) {
	for _, pass := range []int{1, 2} {
		f := &fakeEngine{results: texts("1", "2"), panicPass: pass}
		out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
		if out.Status != StatusEngineError || !errors.Is(out.Err, ErrEnginePanic) {
			t.Fatalf("pass %d: expected ENGINE_ERROR panic got %s %v", pass, out.Status, out.Err)
		}
		if f.closed != 1 {
			t.Fatalf("pass %d: expected one close got %d", pass, f.closed)
		}
	}
}

func TestExtractOpenFailure(t *testing.T) {
	f := &fakeEngine{openErr: errBoom}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Status != StatusEngineError || f.closed != 0 {
		t.Fatalf("expected ENGINE_ERROR without close got %s closed=%d", out.Status, f.closed)
	}
}

func TestExtractUnsupportedEnvironment(t *testing.T) {
	f := &fakeEngine{probeErr: errBoom}
	out := newTestExtractor(f).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Status != StatusUnsupportedEnvironment || !errors.Is(out.Err, ErrUnsupportedEnvironment) {
		t.Fatalf("expected UNSUPPORTED_ENVIRONMENT got %s %v", out.Status, out.Err)
	}
	if f.opened != 0 || len(f.inputs) != 0 {
		t.Fatalf("no engine work expected, opened=%d calls=%d", f.opened, len(f.inputs))
	}

	out = NewExtractor(nil, WithLogger(quietLogger())).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Status != StatusUnsupportedEnvironment {
		t.Fatalf("nil engine: expected UNSUPPORTED_ENVIRONMENT got %s", out.Status)
	}
}

func TestExtractUndecodableImage(t *testing.T) {
	f := &fakeEngine{results: texts("1234")}
	for name, payload := range map[string][]byte{"empty": nil, "garbage": []byte("not an image")} {
		out := newTestExtractor(f).Extract(context.Background(), payload)
		if out.Status != StatusEngineError {
			t.Fatalf("%s: expected ENGINE_ERROR got %s", name, out.Status)
		}
	}
	if f.opened != 0 {
		t.Fatalf("decode failures must not open a session, opened=%d", f.opened)
	}
}

func TestExtractRenderingUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSurfacePixels = 10
	f := &fakeEngine{results: texts("1234")}
	out := newTestExtractor(f, WithConfig(cfg)).Extract(context.Background(), samplePNG(t, 8, 8))
	if out.Status != StatusEngineError || !errors.Is(out.Err, ErrRenderingUnavailable) {
		t.Fatalf("expected ENGINE_ERROR rendering unavailable got %s %v", out.Status, out.Err)
	}
}

func TestExtractMinDigitsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDigits = 6
	f := &fakeEngine{results: texts("12345", "1234567")}
	out := newTestExtractor(f, WithConfig(cfg)).Extract(context.Background(), samplePNG(t, 8, 8))
	if len(out.Passes) != 2 || out.Digits != "1234567" {
		t.Fatalf("expected fallback with min 6 got passes=%d digits=%q", len(out.Passes), out.Digits)
	}
}

func TestExtractProgress(t *testing.T) {
	var stages []Progress
	f := &fakeEngine{results: texts("12", "56789")}
	newTestExtractor(f, WithProgress(func(p Progress) { stages = append(stages, p) })).
		Extract(context.Background(), samplePNG(t, 8, 8))
	want := []Progress{
		{Stage: StagePreprocessing},
		{Stage: StageRecognizing, Pass: 1},
		{Stage: StageRecognizing, Pass: 1, Percent: 100},
		{Stage: StageRecognizing, Pass: 2},
		{Stage: StageRecognizing, Pass: 2, Percent: 100},
		{Stage: StageDone, Percent: 100},
	}
	assertProgress(t, stages, want)
}

func TestExtractProgressOnEngineError(t *testing.T) {
	var stages []Progress
	f := &fakeEngine{errs: []error{errBoom}}
	newTestExtractor(f, WithProgress(func(p Progress) { stages = append(stages, p) })).
		Extract(context.Background(), samplePNG(t, 8, 8))
	// the failed recognition never reaches 100
	want := []Progress{
		{Stage: StagePreprocessing},
		{Stage: StageRecognizing, Pass: 1},
		{Stage: StageDone, Percent: 100},
	}
	assertProgress(t, stages, want)
}

func assertProgress(t *testing.T, got, want []Progress) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("progress %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress[%d] %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestExtractConcurrentCalls(t *testing.T) {
	x := newTestExtractor(&fakeEngine{results: texts("424242")})
	photo := samplePNG(t, 16, 16)
	done := make(chan Outcome, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- x.Extract(context.Background(), photo) }()
	}
	for i := 0; i < 8; i++ {
		if out := <-done; out.Status != StatusSuccess {
			t.Fatalf("concurrent call failed: %s %v", out.Status, out.Err)
		}
	}
}
