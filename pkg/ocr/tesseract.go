package ocr

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine is the gosseract-backed Engine. Each session owns one
// gosseract client.
type TesseractEngine struct {
	Languages      []string
	TessdataPrefix string

	clientFactory func() *gosseract.Client
	check         func() error

	mu    sync.Mutex
	ready bool
}

// NewTesseractEngine constructs an engine for the given languages ("eng"
// when none are given).
func NewTesseractEngine(languages ...string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	e := &TesseractEngine{Languages: languages, clientFactory: gosseract.NewClient}
	e.check = e.probe
	return e
}

// Open creates a client with the engine languages loaded.
func (e *TesseractEngine) Open(ctx context.Context) (Session, error) {
	c, err := e.newClient()
	if err != nil {
		return nil, err
	}
	return &tesseractSession{client: c}, nil
}

// Probe runs a recognition on a blank image, so a missing libtesseract or
// traineddata is reported before any real work. Only success is cached; a
// failed check runs again on the next call.
func (e *TesseractEngine) Probe() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	check := e.check
	if check == nil {
		check = e.probe
	}
	if err := check(); err != nil {
		return err
	}
	e.ready = true
	return nil
}

func (e *TesseractEngine) probe() error {
	blank, err := encodePNG(imaging.New(32, 32, color.NRGBA{255, 255, 255, 255}))
	if err != nil {
		return err
	}
	c, err := e.newClient()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	defer c.Close()
	if err := c.SetImageFromBytes(blank); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("%w: tesseract langs=%s: %v", ErrUnsupportedEnvironment, strings.Join(e.Languages, "+"), err)
	}
	return nil
}

func (e *TesseractEngine) newClient() (*gosseract.Client, error) {
	c := e.clientFactory()
	if e.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.TessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.Languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return c, nil
}

type tesseractSession struct {
	client *gosseract.Client
}

func (s *tesseractSession) Configure(opts Options) error {
	if err := s.client.SetWhitelist(opts.CharWhitelist); err != nil {
		return fmt.Errorf("set whitelist: %w", err)
	}
	if err := s.client.SetPageSegMode(pageSegMode(opts.ParseMode)); err != nil {
		return fmt.Errorf("set page seg mode: %w", err)
	}
	vars := map[string]string{
		"classify_bln_numeric_mode": boolFlag(opts.NumericMode),
		"preserve_interword_spaces": boolFlag(opts.InterwordSpacing),
	}
	if opts.DPI > 0 {
		vars["user_defined_dpi"] = fmt.Sprint(opts.DPI)
	}
	for k, v := range vars {
		if err := s.client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

func (s *tesseractSession) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	if err := s.client.SetImageFromBytes(img); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize text: %w", err)
	}
	return Recognition{Text: text, Confidence: meanWordConfidence(s.client)}, nil
}

func (s *tesseractSession) Close() error {
	return s.client.Close()
}

// meanWordConfidence averages the word confidences of the last recognition.
func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

func pageSegMode(m ParseMode) gosseract.PageSegMode {
	if m == ParseBlock {
		return gosseract.PSM_SINGLE_BLOCK
	}
	return gosseract.PSM_SINGLE_LINE
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
