package ocr

import "errors"

// ErrRenderingUnavailable is returned by the preprocessor when no drawing
// surface can be obtained for the source image.
var ErrRenderingUnavailable = errors.New("rendering surface unavailable")

// ErrUnsupportedEnvironment is returned when the OCR engine cannot run here
// (missing tesseract library or language data).
var ErrUnsupportedEnvironment = errors.New("ocr not supported in this environment")

// ErrEnginePanic wraps a panic recovered from the engine or the image codecs.
var ErrEnginePanic = errors.New("ocr engine panic")
