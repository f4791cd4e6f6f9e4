package source

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-segscan/images"
)

// CaptureOptions configures a camera capture.
type CaptureOptions struct {
	// Device is a camera index ("0") or a file/stream URL.
	Device string
	// Resolution is the requested frame size. A zero value keeps the device default.
	Resolution images.Resolution
	// Logger receives capture diagnostics.
	Logger logrus.FieldLogger
}

// Capture reads frames from a gocv video capture on a background goroutine and
// keeps only the latest one.
type Capture struct {
	opts   CaptureOptions
	logger logrus.FieldLogger

	mu     sync.Mutex // guards device
	device *gocv.VideoCapture

	slot FrameSlot
	done chan struct{}
	wg   sync.WaitGroup
}

// OpenCapture opens the device and starts reading.
//
// Arguments:
//   - opts: The capture options.
//
// Returns:
//   - *Capture: The running capture. Call Close to release the device.
//   - error: An error if the device cannot be opened.
func OpenCapture(opts CaptureOptions) (*Capture, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var (
		device *gocv.VideoCapture
		err    error
	)
	if id, convErr := strconv.Atoi(opts.Device); convErr == nil {
		device, err = gocv.OpenVideoCapture(id)
	} else {
		device, err = gocv.OpenVideoCapture(opts.Device)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open capture device %q", opts.Device)
	}

	c := &Capture{
		opts:   opts,
		logger: logger.WithField("device", opts.Device),
		device: device,
		done:   make(chan struct{}),
	}
	if opts.Resolution.Pixels.Width > 0 && opts.Resolution.Pixels.Height > 0 {
		c.SetResolution(opts.Resolution)
	}

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Info("capture started")
	return c, nil
}

// PullLatest returns the newest frame read from the device.
func (c *Capture) PullLatest() images.Raster {
	return c.slot.Latest()
}

// SetResolution requests a new frame size from the device. The next frames
// read carry the new size; the scheduler re-fits the overlay on its next cycle.
func (c *Capture) SetResolution(res images.Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.device.Set(gocv.VideoCaptureFrameWidth, float64(res.Pixels.Width))
	c.device.Set(gocv.VideoCaptureFrameHeight, float64(res.Pixels.Height))
	c.logger.WithField("resolution", res.String()).Info("capture resolution requested")
}

// Stats returns the frame slot counters.
func (c *Capture) Stats() SlotStats {
	return c.slot.Stats()
}

// Close stops the reader and releases the device.
func (c *Capture) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.device.Close(); err != nil {
		return errors.Wrap(err, "close capture device")
	}
	return nil
}

func (c *Capture) readLoop() {
	defer c.wg.Done()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		ok := c.device.Read(&mat)
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("cannot read device")
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			c.logger.WithError(err).Debug("frame conversion failed")
			continue
		}
		c.slot.Store(images.FromImage(img))
	}
}
