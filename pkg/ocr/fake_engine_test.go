package ocr

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
)

// fakeEngine replays canned recognitions, one per pass, and records what
// the extractor asked of it.
type fakeEngine struct {
	mu        sync.Mutex
	results   []Recognition
	errs      []error
	panicPass int
	openErr   error
	closeErr  error
	probeErr  error

	opened     int
	closed     int
	configured []Options
	inputs     [][]byte
}

func (f *fakeEngine) Probe() error { return f.probeErr }

func (f *fakeEngine) Open(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{engine: f}, nil
}

type fakeSession struct {
	engine *fakeEngine
	pass   int
}

func (s *fakeSession) Configure(opts Options) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.configured = append(s.engine.configured, opts)
	return nil
}

func (s *fakeSession) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.pass++
	s.engine.inputs = append(s.engine.inputs, append([]byte(nil), img...))
	if s.engine.panicPass == s.pass {
		panic("engine crashed")
	}
	i := s.pass - 1
	if i < len(s.engine.errs) && s.engine.errs[i] != nil {
		return Recognition{}, s.engine.errs[i]
	}
	if i < len(s.engine.results) {
		return s.engine.results[i], nil
	}
	return Recognition{}, nil
}

func (s *fakeSession) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.closed++
	return s.engine.closeErr
}

func texts(ts ...string) []Recognition {
	out := make([]Recognition, len(ts))
	for i, t := range ts {
		out[i] = Recognition{Text: t, Confidence: 80}
	}
	return out
}

// samplePNG returns a small encoded photo stand-in.
func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{200, 200, 200, 255})
	for x := 0; x < w/2; x++ {
		img.Set(x, h/2, color.NRGBA{10, 10, 10, 255})
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode sample: %v", err)
	}
	return buf.Bytes()
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

var errBoom = errors.New("boom")
