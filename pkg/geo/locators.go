package geo

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// DeviceLocator returns what the field device reported alongside the photo:
// either a fix or the failure code its geolocation API gave.
type DeviceLocator struct {
	Position *Position
	Failure  Code
	Reported bool
}

func (d DeviceLocator) CurrentPosition(ctx context.Context) (Position, error) {
	if d.Position != nil {
		p := *d.Position
		p.Source = "device"
		return p, nil
	}
	if d.Reported {
		return Position{}, &Error{Code: d.Failure}
	}
	return Position{}, &Error{Code: PositionUnavailable, Err: ErrNotReported}
}

// ParseDeviceReport builds a DeviceLocator from form values. Empty lat/lng
// with an empty failure means the device reported nothing.
func ParseDeviceReport(lat, lng, accuracy, failure string) (DeviceLocator, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" && lng == "" {
		if strings.TrimSpace(failure) == "" {
			return DeviceLocator{}, nil
		}
		return DeviceLocator{Failure: ParseCode(failure), Reported: true}, nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return DeviceLocator{}, fmt.Errorf("invalid latitude %q: %w", lat, err)
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return DeviceLocator{}, fmt.Errorf("invalid longitude %q: %w", lng, err)
	}
	p := &Position{Latitude: la, Longitude: lo}
	if !p.Valid() {
		return DeviceLocator{}, fmt.Errorf("coordinates out of range %s,%s", lat, lng)
	}
	if acc := strings.TrimSpace(accuracy); acc != "" {
		if a, err := strconv.ParseFloat(acc, 64); err == nil && a >= 0 {
			p.Accuracy = a
		}
	}
	return DeviceLocator{Position: p, Reported: true}, nil
}

// EXIFLocator reads the GPS tags embedded in the photo itself.
type EXIFLocator struct {
	Photo []byte
}

func (e EXIFLocator) CurrentPosition(ctx context.Context) (Position, error) {
	x, err := exif.Decode(bytes.NewReader(e.Photo))
	if err != nil {
		return Position{}, &Error{Code: PositionUnavailable, Err: fmt.Errorf("read exif: %w", err)}
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return Position{}, &Error{Code: PositionUnavailable, Err: fmt.Errorf("no gps in exif: %w", err)}
	}
	return Position{Latitude: lat, Longitude: lng, Source: "exif"}, nil
}
