package scan

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-faster/errors"
)

// ErrInputClosed is returned by LineDecoder.Start once its input is exhausted.
var ErrInputClosed = errors.New("scanner input closed")

// LineDecoder is a Decoder for keyboard-wedge scanners and other line based
// sources: every non-blank line is one decoded code, blank lines are frames
// without a code. Lines read while stopped are dropped. Config is ignored.
type LineDecoder struct {
	r    io.Reader
	once sync.Once
	done chan struct{}

	mu        sync.Mutex
	onDecode  func(string)
	onFailure func(error)
	err       error
}

// NewLineDecoder returns a decoder reading from r. Reading begins on the first
// Start and continues until r is exhausted.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{r: r, done: make(chan struct{})}
}

func (d *LineDecoder) Start(_ context.Context, _ Config, onDecode func(string), onFailure func(error)) error {
	select {
	case <-d.done:
		return ErrInputClosed
	default:
	}

	d.mu.Lock()
	d.onDecode, d.onFailure = onDecode, onFailure
	d.mu.Unlock()

	d.once.Do(func() { go d.read() })
	return nil
}

func (d *LineDecoder) Stop(context.Context) error {
	d.mu.Lock()
	d.onDecode, d.onFailure = nil, nil
	d.mu.Unlock()
	return nil
}

// Done is closed when the input is exhausted.
func (d *LineDecoder) Done() <-chan struct{} {
	return d.done
}

// Err returns the read error that ended the input, if any.
func (d *LineDecoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *LineDecoder) read() {
	defer close(d.done)

	sc := bufio.NewScanner(d.r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		d.mu.Lock()
		onDecode, onFailure := d.onDecode, d.onFailure
		d.mu.Unlock()

		switch {
		case onDecode == nil:
		case line == "":
			onFailure(ErrNoCode)
		default:
			onDecode(line)
		}
	}

	d.mu.Lock()
	d.err = sc.Err()
	d.mu.Unlock()
}
