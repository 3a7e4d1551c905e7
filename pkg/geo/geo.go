// Package geo resolves where a meter photo was taken. It only produces an
// optional position or a failure reason; it does not interpret coordinates.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout matches the high-accuracy request timeout of the capture app.
const DefaultTimeout = 15 * time.Second

// Code is the reason a position could not be produced.
type Code int

const (
	Unknown Code = iota
	PermissionDenied
	PositionUnavailable
	Timeout
)

var codeNames = map[Code]string{
	Unknown:             "UNKNOWN",
	PermissionDenied:    "PERMISSION_DENIED",
	PositionUnavailable: "POSITION_UNAVAILABLE",
	Timeout:             "TIMEOUT",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// MarshalText renders the code name in JSON.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseCode accepts a code name (any case, dashes or underscores) or the
// numeric GeolocationPositionError codes browsers report (1, 2, 3).
func ParseCode(s string) Code {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch norm {
	case "1", "PERMISSION_DENIED":
		return PermissionDenied
	case "2", "POSITION_UNAVAILABLE":
		return PositionUnavailable
	case "3", "TIMEOUT":
		return Timeout
	}
	return Unknown
}

// Position is a WGS84 fix. Accuracy is in meters, 0 when unknown.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Source    string  `json:"source"`
}

// Valid reports whether the coordinates are inside WGS84 bounds.
func (p Position) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Error is a positioning failure with its reason code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "geo: " + e.Code.String()
	}
	return fmt.Sprintf("geo: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotReported marks a device that sent neither a fix nor a failure.
var ErrNotReported = errors.New("no position reported")

// CodeOf extracts the reason code from err.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unknown
}

// Locator produces the current position.
type Locator interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Position, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context) (Position, error) { return f(ctx) }

// Chain tries locators in order and returns the first fix. When all fail it
// returns the first locator's error, the most direct reason.
type Chain []Locator

func (c Chain) CurrentPosition(ctx context.Context) (Position, error) {
	var first error
	for _, l := range c {
		p, err := l.CurrentPosition(ctx)
		if err == nil {
			return p, nil
		}
		if first == nil {
			first = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if first == nil {
		first = &Error{Code: PositionUnavailable, Err: ErrNotReported}
	}
	return Position{}, first
}

// Locate asks l for a position, giving up after timeout (DefaultTimeout when
// timeout <= 0). A deadline is reported as a Timeout error.
func Locate(ctx context.Context, l Locator, timeout time.Duration) (Position, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := l.CurrentPosition(ctx)
		ch <- result{p, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			var ge *Error
			if !errors.As(r.err, &ge) {
				r.err = &Error{Code: CodeOf(r.err), Err: r.err}
			}
			return Position{}, r.err
		}
		if !r.pos.Valid() {
			return Position{}, &Error{Code: PositionUnavailable, Err: fmt.Errorf("coordinates out of range %f,%f", r.pos.Latitude, r.pos.Longitude)}
		}
		return r.pos, nil
	case <-ctx.Done():
		return Position{}, &Error{Code: Timeout, Err: ctx.Err()}
	}
}
