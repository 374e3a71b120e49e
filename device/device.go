package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
)

// Source pulls one unit of a modality into a caller-provided message. It
// returns an error matching errors.ErrDeviceNotReady when no new unit is
// available yet; the caller retries after a delay. Pull must not block for
// longer than one device frame.
type Source[M any] interface {
	Pull(ctx context.Context, into M) error
}

// SourceFunc adapts a function to Source.
type SourceFunc[M any] func(ctx context.Context, into M) error

// Pull calls f.
func (f SourceFunc[M]) Pull(ctx context.Context, into M) error {
	return f(ctx, into)
}

// Device is the acquisition collaborator: one source per Kinect modality.
// Color frames are RGBA; audio frames are the device's native blocks.
type Device interface {
	// Open prepares the device. It returns ErrDeviceNotReady while the
	// sensor is unavailable.
	Open(ctx context.Context) error
	Color() Source[*kinect.ColorImage]
	Depth() Source[*kinect.DepthImage]
	Infrared() Source[*kinect.InfraredImage]
	Audio() Source[*kinect.Audio]
	Bodies() Source[*kinect.Bodies]
	Speech() Source[*kinect.Speech]
	Close() error
}

// NotReady wraps cause as a device-not-ready transient.
func NotReady(component, method, cause string) error {
	return errors.WrapTransient(errors.ErrDeviceNotReady, component, method, cause)
}

// IsNotReady reports whether err means "retry later".
func IsNotReady(err error) bool {
	return errors.Is(err, errors.ErrDeviceNotReady)
}

// OpenWithRetry opens dev, retrying every delay while it reports not ready.
// Other errors end the wait.
func OpenWithRetry(ctx context.Context, dev Device, delay time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := retry.Fixed(delay, retry.Forever)
	cfg.Retryable = IsNotReady
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		if attempt == 1 || attempt%20 == 0 {
			logger.Info("Waiting for device to become ready", "attempt", attempt, "error", err)
		}
	}
	if err := retry.Do(ctx, cfg, func() error { return dev.Open(ctx) }); err != nil {
		return errors.Wrap(err, "device", "OpenWithRetry", "open device")
	}
	return nil
}
