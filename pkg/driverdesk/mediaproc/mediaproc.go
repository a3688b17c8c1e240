// Package mediaproc runs background processing for uploaded photos: it
// computes the base64 MD5 digest clients must declare when signing an upload,
// and optionally downscales oversized images before they are attached.
package mediaproc

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// ErrClosed is returned when Process is called after Close.
var ErrClosed = errors.New("mediaproc: pool closed")

// Job describes one image to process. When MaxDimension is zero the image is
// hashed as-is.
type Job struct {
	Data         []byte
	MimeType     string
	MaxDimension int
}

// Result carries the processed bytes and their digest. When the image was not
// recompressed, Data aliases the input.
type Result struct {
	Data     []byte
	MimeType string
	Size     int64
	MD5      string // base64, as the upload signer expects
	Resized  bool
	Err      error
}

type task struct {
	job Job
	out chan Result
}

// Pool is a fixed-size worker pool. Jobs are processed in submission order
// per worker; each Process call returns a channel that yields exactly one
// Result.
type Pool struct {
	tasks  chan task
	wg     sync.WaitGroup
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
}

// NewPool starts workers goroutines. workers defaults to 2 when
// non-positive.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		tasks:  make(chan task, workers*4),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Process submits a job and returns a channel delivering its single Result.
// The channel is buffered; the caller may read it whenever convenient.
func (p *Pool) Process(ctx context.Context, job Job) (<-chan Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	// Registered under the same lock that Close takes, so Close cannot
	// close the channel while this send is in flight.
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	out := make(chan Result, 1)
	select {
	case p.tasks <- task{job: job, out: out}:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.submitters.Wait()
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.out <- p.run(t.job)
	}
}

func (p *Pool) run(job Job) Result {
	data := job.Data
	mimeType := job.MimeType
	resized := false

	if job.MaxDimension > 0 && isImage(mimeType) {
		out, err := downscale(data, mimeType, job.MaxDimension)
		if err != nil {
			// A photo we cannot decode still gets hashed and stored.
			p.logger.Warn("image downscale skipped", "mime_type", mimeType, "error", err)
		} else if out != nil {
			data = out
			resized = true
		}
	}

	sum := md5.Sum(data)
	return Result{
		Data:     data,
		MimeType: mimeType,
		Size:     int64(len(data)),
		MD5:      base64.StdEncoding.EncodeToString(sum[:]),
		Resized:  resized,
	}
}

func isImage(mimeType string) bool {
	return mimeType == "image/jpeg" || mimeType == "image/png"
}

// downscale returns re-encoded bytes when the image exceeds maxDim on either
// axis, or nil when it already fits.
func downscale(data []byte, mimeType string, maxDim int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDim && height <= maxDim {
		return nil, nil
	}

	outW, outH := width, height
	if width >= height {
		outW = maxDim
		outH = height * maxDim / width
	} else {
		outH = maxDim
		outW = width * maxDim / height
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	switch mimeType {
	case "image/png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
