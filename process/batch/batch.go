// Package batch reads meter photos dropped into a folder, either once or
// continuously with a filesystem watch.
package batch

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"meterreader/pkg/ocr"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

// debounce windows for files still being written by the uploader
const (
	watchTick   = 250 * time.Millisecond
	watchSettle = 300 * time.Millisecond
)

// Reader extracts the meter digits from one photo.
type Reader interface {
	Extract(ctx context.Context, image []byte) ocr.Outcome
}

// Result is the outcome for one file.
type Result struct {
	File    string
	Outcome ocr.Outcome
	Moved   bool
}

// Runner processes the photos of Dir with a pool of Workers.
type Runner struct {
	Dir    string
	Reader Reader
	// Workers defaults to runtime.NumCPU().
	Workers int
	// ProcessedDir, when set, receives every photo whose read completed
	// (SUCCESS or NO_MATCH). Failed engine runs stay in Dir for a retry.
	ProcessedDir string
	// MaxProcessedBytes shrinks moved photos above this size; 0 keeps them as is.
	MaxProcessedBytes int64
	Verbose           bool
	Logger            *log.Logger
	// OnResult is called for each file, possibly from several goroutines.
	OnResult func(Result)
}

func (r *Runner) workers() int {
	if r.Workers <= 0 {
		return runtime.NumCPU()
	}
	return r.Workers
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) logV(format string, args ...any) {
	if r.Verbose {
		r.logger().Printf(format, args...)
	}
}

// ListImageFiles returns the sorted photo names in dir.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// IsSupportedExt reports whether name looks like a photo the decoder reads.
func IsSupportedExt(name string) bool {
	// ignore debug rasters written next to the photos
	if strings.Contains(name, ".enhanced.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// Scan processes every photo currently in Dir and returns the results in
// file name order.
func (r *Runner) Scan(ctx context.Context) ([]Result, error) {
	files, err := ListImageFiles(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.Dir, err)
	}
	r.logger().Printf("scanning dir=%s files=%d workers=%d", r.Dir, len(files), r.workers())

	names := make(chan string)
	go func() {
		defer close(names)
		for _, f := range files {
			select {
			case names <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var mu sync.Mutex
	results := make([]Result, 0, len(files))
	r.runWorkerPool(ctx, names, func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results, ctx.Err()
}

// Watch processes photos created in Dir until ctx is cancelled.
func (r *Runner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.Dir); err != nil {
		return err
	}
	r.logger().Printf("watching dir=%s (debounced)", r.Dir)

	names := make(chan string, 256)
	go func() {
		defer close(names)
		pending := map[string]time.Time{}
		ticker := time.NewTicker(watchTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					name := filepath.Base(ev.Name)
					if IsSupportedExt(name) {
						pending[name] = time.Now()
					}
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > watchSettle {
						select {
						case names <- name:
						case <-ctx.Done():
							return
						}
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger().Printf("watch error: %v", err)
			}
		}
	}()

	r.runWorkerPool(ctx, names, nil)
	if err := ctx.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runWorkerPool drains names and returns once the channel is closed.
func (r *Runner) runWorkerPool(ctx context.Context, names <-chan string, collect func(Result)) {
	var wg sync.WaitGroup
	for i := 0; i < r.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				res := r.processFile(ctx, name)
				if collect != nil {
					collect(res)
				}
				if r.OnResult != nil {
					r.OnResult(res)
				}
			}
		}()
	}
	wg.Wait()
}

func (r *Runner) processFile(ctx context.Context, name string) Result {
	path := filepath.Join(r.Dir, name)
	res := Result{File: name}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Outcome = ocr.Outcome{Status: ocr.StatusEngineError, Err: fmt.Errorf("read %s: %w", name, err)}
		r.logger().Printf("file=%s read failed: %v", name, err)
		return res
	}
	res.Outcome = r.Reader.Extract(ctx, data)
	r.logV("file=%s status=%s digits=%q passes=%d dur=%s", name, res.Outcome.Status, res.Outcome.Digits, len(res.Outcome.Passes), res.Outcome.Duration)

	if r.ProcessedDir == "" || !completed(res.Outcome.Status) {
		return res
	}
	if err := r.moveToProcessed(path, name); err != nil {
		r.logger().Printf("file=%s move to %s failed: %v", name, r.ProcessedDir, err)
		return res
	}
	res.Moved = true
	return res
}

func completed(s ocr.Status) bool {
	return s == ocr.StatusSuccess || s == ocr.StatusNoMatch
}

// moveToProcessed moves a photo into ProcessedDir. It attempts an atomic
// rename and falls back to copy+remove; photos above MaxProcessedBytes are
// downscaled on the way.
func (r *Runner) moveToProcessed(src, name string) error {
	if err := os.MkdirAll(r.ProcessedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(r.ProcessedDir, name)
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if r.MaxProcessedBytes <= 0 || fi.Size() <= r.MaxProcessedBytes {
		return renameOrCopy(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return renameOrCopy(src, dst)
	}
	// encoded size roughly scales with area
	scale := math.Sqrt(float64(r.MaxProcessedBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	b := img.Bounds()
	newW := int(math.Max(1, math.Round(float64(b.Dx())*scale)))
	newH := int(math.Max(1, math.Round(float64(b.Dy())*scale)))
	if err := imaging.Save(imaging.Resize(img, newW, newH, imaging.Lanczos), dst); err != nil {
		return renameOrCopy(src, dst)
	}
	return os.Remove(src)
}

func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
