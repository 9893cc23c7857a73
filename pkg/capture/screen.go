package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
)

// Visual frame defaults matching the live session's vision input:
// one downscaled JPEG per second.
const (
	FrameWidth   = 640
	FrameHeight  = 360
	FrameQuality = 60
	FrameRate    = 1.0 // frames per second
)

// VisualSource produces JPEG frames for the live session's vision input.
type VisualSource interface {
	// Grab captures one frame as JPEG bytes. ok is false when no frame
	// is ready yet; the caller should skip this tick.
	Grab() (jpeg []byte, ok bool, err error)

	// Close releases the underlying device.
	Close() error
}

// CameraSource grabs frames from a capture device and downscales them to
// the wire frame size.
type CameraSource struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// OpenCamera opens the capture device. deviceID may be an integer index
// or a device path. Returns ErrPermissionDenied when the device cannot
// be opened.
func OpenCamera(deviceID interface{}) (*CameraSource, error) {
	cap, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return &CameraSource{
		cap: cap,
		mat: gocv.NewMat(),
	}, nil
}

// Grab captures and encodes one frame. Returns ok=false when the device
// has no frame ready.
func (c *CameraSource) Grab() ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil, false, ErrClosed
	}
	if !c.cap.Read(&c.mat) || c.mat.Empty() {
		return nil, false, nil
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(c.mat, &scaled, image.Pt(FrameWidth, FrameHeight), 0, 0, gocv.InterpolationArea)

	buf, err := gocv.IMEncodeWithParams(".jpg", scaled, []int{gocv.IMWriteJpegQuality, FrameQuality})
	if err != nil {
		return nil, false, fmt.Errorf("capture: jpeg encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, true, nil
}

// Close releases the device. Safe to call multiple times.
func (c *CameraSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	c.mat.Close()
	return err
}

// FrameTicker grabs frames from a visual source on a fixed interval and
// delivers them to a callback. Ticks with no frame ready are skipped.
type FrameTicker struct {
	source  VisualSource
	onFrame func(jpeg []byte)
	rate    float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFrameTicker wraps a visual source. rate is frames per second; values
// <= 0 use the default.
func NewFrameTicker(source VisualSource, rate float64, onFrame func(jpeg []byte)) *FrameTicker {
	if rate <= 0 {
		rate = FrameRate
	}
	return &FrameTicker{
		source:  source,
		onFrame: onFrame,
		rate:    rate,
	}
}

// Start begins grabbing frames. Returns an error if already running.
func (f *FrameTicker) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("capture: frame ticker already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	go f.loop(ctx)
	return nil
}

// Stop halts frame grabbing and closes the source. Safe to call multiple
// times.
func (f *FrameTicker) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	cancel()
	<-done
	if err := f.source.Close(); err != nil {
		log.Warn("visual source close failed", "error", err)
	}
}

// Running reports whether the ticker is active.
func (f *FrameTicker) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FrameTicker) loop(ctx context.Context) {
	defer close(f.done)

	interval := time.Duration(float64(time.Second) / f.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok, err := f.source.Grab()
			if err != nil {
				log.Warn("frame grab failed", "error", err)
				return
			}
			if !ok {
				continue
			}
			f.onFrame(frame)
		}
	}
}
