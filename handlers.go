package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"meterreader/pkg/auth"
	"meterreader/pkg/geo"
	"meterreader/pkg/ocr"

	"github.com/gin-gonic/gin"
)

// meterReader is the part of *ocr.Extractor the handlers use.
type meterReader interface {
	Extract(ctx context.Context, photo []byte) ocr.Outcome
	Probe() error
}

type server struct {
	reader          meterReader
	maxUpload       int64
	locationTimeout time.Duration
	jwtSecret       []byte
}

var (
	errPhotoMissing  = errors.New("photo missing")
	errPhotoTooLarge = errors.New("photo too large")
	errNotAnImage    = errors.New("uploaded file is not an image")
)

func setupRoutes(r *gin.Engine, s *server) {
	r.GET("/healthz", s.healthHandler)
	api := r.Group("")
	if len(s.jwtSecret) > 0 {
		api.Use(auth.Middleware(s.jwtSecret))
	}
	api.POST("/capture", s.captureHandler)
	api.POST("/read", s.readHandler)
	api.POST("/location", s.locationHandler)
}

type locationResult struct {
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
	Source    string   `json:"source,omitempty"`
	Message   string   `json:"message"`
}

type readingResult struct {
	Status     ocr.Status            `json:"status"`
	Digits     string                `json:"digits"`
	Message    string                `json:"message"`
	Passes     []ocr.RecognitionPass `json:"passes,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

func (s *server) healthHandler(c *gin.Context) {
	if err := s.reader.Probe(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// captureHandler runs the field capture flow: locate first, then read the
// meter. Both results are returned even when one of them failed.
func (s *server) captureHandler(c *gin.Context) {
	name, data, ok := s.readPhoto(c)
	if !ok {
		return
	}
	device, err := deviceReport(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc := s.locate(c.Request.Context(), geo.Chain{device, geo.EXIFLocator{Photo: data}})
	reading := s.read(c.Request.Context(), name, data)

	resp := gin.H{
		"file_name": name,
		"step":      3,
		"location":  loc,
		"reading":   reading,
	}
	if w := auth.Worker(c); w != "" {
		resp["worker"] = w
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) readHandler(c *gin.Context) {
	name, data, ok := s.readPhoto(c)
	if !ok {
		return
	}
	reading := s.read(c.Request.Context(), name, data)
	c.JSON(readingHTTPStatus(reading.Status), gin.H{"file_name": name, "reading": reading})
}

func (s *server) locationHandler(c *gin.Context) {
	device, err := deviceReport(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chain := geo.Chain{device}
	name := ""
	if _, err := c.FormFile("photo"); err == nil {
		var data []byte
		var ok bool
		if name, data, ok = s.readPhoto(c); !ok {
			return
		}
		chain = append(chain, geo.EXIFLocator{Photo: data})
	}
	c.JSON(http.StatusOK, gin.H{"file_name": name, "location": s.locate(c.Request.Context(), chain)})
}

func (s *server) read(ctx context.Context, name string, data []byte) readingResult {
	out := s.reader.Extract(ctx, data)
	if out.Err != nil {
		log.Printf("read file=%s status=%s: %v", name, out.Status, out.Err)
	}
	return readingResult{
		Status:     out.Status,
		Digits:     out.Digits,
		Message:    readingMessage(out.Status),
		Passes:     out.Passes,
		DurationMs: out.Duration.Milliseconds(),
	}
}

func (s *server) locate(ctx context.Context, l geo.Locator) locationResult {
	pos, err := geo.Locate(ctx, l, s.locationTimeout)
	if err != nil {
		code := geo.CodeOf(err)
		log.Printf("locate failed code=%s: %v", code, err)
		return locationResult{Status: code.String(), Message: locationMessage(code, false)}
	}
	lat, lng := pos.Latitude, pos.Longitude
	return locationResult{
		Status:    "OK",
		Latitude:  &lat,
		Longitude: &lng,
		Accuracy:  pos.Accuracy,
		Source:    pos.Source,
		Message:   locationMessage(geo.Unknown, true),
	}
}

// readPhoto loads the "photo" multipart field, enforcing the upload limit
// and that a registered decoder recognises the header. On failure the
// response is already written.
func (s *server) readPhoto(c *gin.Context) (string, []byte, bool) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPhotoMissing.Error()})
		return "", nil, false
	}
	data, err := readUpload(file, s.maxUpload)
	switch {
	case errors.Is(err, errPhotoTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return "", nil, false
	case errors.Is(err, errNotAnImage):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return "", nil, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return "", nil, false
	}
	return filepath.Base(file.Filename), data, true
}

func readUpload(file *multipart.FileHeader, limit int64) ([]byte, error) {
	if file.Size > limit {
		return nil, errPhotoTooLarge
	}
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errPhotoTooLarge
	}
	// any format a registered decoder accepts (png, jpeg, gif, bmp, tiff, webp)
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, errNotAnImage
	}
	return data, nil
}

func deviceReport(c *gin.Context) (geo.DeviceLocator, error) {
	return geo.ParseDeviceReport(
		c.PostForm("latitude"),
		c.PostForm("longitude"),
		c.PostForm("accuracy"),
		c.PostForm("location_error"),
	)
}

func readingHTTPStatus(s ocr.Status) int {
	switch s {
	case ocr.StatusEngineError:
		return http.StatusInternalServerError
	case ocr.StatusUnsupportedEnvironment:
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// readingMessage is the text shown to the field worker for an outcome.
func readingMessage(s ocr.Status) string {
	switch s {
	case ocr.StatusSuccess:
		return "meter reading extracted"
	case ocr.StatusNoMatch:
		return "no clear digits found in the photo"
	case ocr.StatusUnsupportedEnvironment:
		return "digit reading is not available on this server"
	}
	return "error while reading the photo"
}

func locationMessage(code geo.Code, ok bool) string {
	if ok {
		return "current location acquired"
	}
	switch code {
	case geo.PermissionDenied:
		return "permission to access the location was denied"
	case geo.PositionUnavailable:
		return "the location cannot be determined right now"
	case geo.Timeout:
		return "timed out waiting for the location"
	}
	return "error while getting the location"
}
