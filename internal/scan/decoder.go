// Package scan turns the raw output of a barcode decoder into debounced scan
// events.
package scan

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNoCode is reported by decoders for a frame without a readable code. It
// is the steady state of a running scanner, not a failure.
var ErrNoCode = errors.New("no code in frame")

// Region is the detection box in pixels.
type Region struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Config tunes the decoding engine.
type Config struct {
	FPS    int    `json:"fps"`
	Region Region `json:"region"`
}

// DefaultConfig scans 10 frames per second in a 250x250 box.
func DefaultConfig() Config {
	return Config{FPS: 10, Region: Region{Width: 250, Height: 250}}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.Region.Width <= 0 || c.Region.Height <= 0 {
		c.Region = d.Region
	}
	return c
}

// Decoder is the external decoding engine. It delivers zero or one decoded
// value per processed frame through onDecode and reports unreadable frames
// through onFailure, both asynchronously. Callbacks must not be invoked after
// Stop returns. Stop may be called from inside a callback.
type Decoder interface {
	Start(ctx context.Context, cfg Config, onDecode func(code string), onFailure func(err error)) error
	Stop(ctx context.Context) error
}
