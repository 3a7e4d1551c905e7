package ocr

import (
	"fmt"
	"time"
)

// Status is the terminal state of one extraction call.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoMatch
	StatusEngineError
	StatusUnsupportedEnvironment
)

var statusNames = map[Status]string{
	StatusSuccess:                "SUCCESS",
	StatusNoMatch:                "NO_MATCH",
	StatusEngineError:            "ENGINE_ERROR",
	StatusUnsupportedEnvironment: "UNSUPPORTED_ENVIRONMENT",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText lets Status render as its name in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseMode is the layout hint passed to the engine.
type ParseMode int

const (
	ParseLine ParseMode = iota
	ParseBlock
)

func (m ParseMode) String() string {
	if m == ParseBlock {
		return "BLOCK"
	}
	return "LINE"
}

func (m ParseMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// PassInput names which image a recognition pass was run on.
type PassInput int

const (
	InputEnhanced PassInput = iota
	InputOriginal
)

func (p PassInput) String() string {
	if p == InputOriginal {
		return "original"
	}
	return "enhanced"
}

func (p PassInput) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Options configures an engine session before a recognition pass.
type Options struct {
	CharWhitelist    string
	NumericMode      bool
	ParseMode        ParseMode
	DPI              int
	InterwordSpacing bool
}

// Recognition is the raw engine output for one image.
type Recognition struct {
	Text       string
	Confidence float64 // mean word confidence, 0..100
}

// RecognitionPass records one engine invocation and its scored candidate.
type RecognitionPass struct {
	Mode       ParseMode `json:"mode"`
	Input      PassInput `json:"input"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Digits     string    `json:"digits"`
}

// Outcome is what Extract returns to the caller. Err carries the cause of
// ENGINE_ERROR and UNSUPPORTED_ENVIRONMENT for logging; it is never a
// user-facing message.
type Outcome struct {
	Status   Status
	Digits   string
	Passes   []RecognitionPass
	Duration time.Duration
	Err      error
}

// Stage reports where an extraction call currently is.
type Stage string

const (
	StagePreprocessing Stage = "preprocessing"
	StageRecognizing   Stage = "recognizing"
	StageDone          Stage = "done"
)

// Progress is delivered to an optional ProgressFunc hook.
type Progress struct {
	Stage Stage
	Pass  int // 1 primary, 2 fallback, 0 otherwise
	// Percent of the current stage, 0 on entry and 100 once it completed.
	// The engine reports no intermediate values.
	Percent int
}

// ProgressFunc receives progress events synchronously on the calling goroutine.
type ProgressFunc func(Progress)
