package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/scan-and-go/internal/admin"
	"github.com/xenking/scan-and-go/internal/checkout"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/scan"
)

// --- Mock implementations ---

type fakeCatalog struct {
	mu       sync.Mutex
	byCode   map[string]product.Product
	fetchErr error
	fetches  int

	// entered and release, when set, hold Fetch until the test lets it go.
	entered chan struct{}
	release chan struct{}
}

func newFakeCatalog(products ...product.Product) *fakeCatalog {
	byCode := make(map[string]product.Product, len(products))
	for _, p := range products {
		byCode[p.Code] = p
	}
	return &fakeCatalog{byCode: byCode}
}

func (c *fakeCatalog) Fetch(_ context.Context, code string) (*product.Product, error) {
	if c.release != nil {
		c.entered <- struct{}{}
		<-c.release
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	p, ok := c.byCode[code]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (c *fakeCatalog) Create(_ context.Context, p product.Product) (*product.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byCode[p.Code]; ok {
		return nil, product.ErrAlreadyExists
	}
	c.byCode[p.Code] = p
	return &p, nil
}

func (c *fakeCatalog) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

type fakeDecoder struct {
	mu       sync.Mutex
	onDecode func(string)
	running  bool
	stops    int
}

func (d *fakeDecoder) Start(_ context.Context, _ scan.Config, onDecode func(string), _ func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onDecode = onDecode
	d.running = true
	return nil
}

func (d *fakeDecoder) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = false
	d.stops++
	return nil
}

// frame delivers a code if the engine is running.
func (d *fakeDecoder) frame(code string) {
	d.mu.Lock()
	cb, running := d.onDecode, d.running
	d.mu.Unlock()
	if running {
		cb(code)
	}
}

// timers queues scheduled callbacks until fire is called.
type timers struct {
	mu      sync.Mutex
	pending []*timer
}

type timer struct {
	d        time.Duration
	f        func()
	canceled bool
}

func (ts *timers) after(d time.Duration, f func()) func() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t := &timer{d: d, f: f}
	ts.pending = append(ts.pending, t)
	return func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		was := !t.canceled
		t.canceled = true
		return was
	}
}

func (ts *timers) fire() {
	ts.mu.Lock()
	due := ts.pending
	ts.pending = nil
	ts.mu.Unlock()

	for _, t := range due {
		if !t.canceled {
			t.f()
		}
	}
}

func (ts *timers) delays() []time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var out []time.Duration
	for _, t := range ts.pending {
		if !t.canceled {
			out = append(out, t.d)
		}
	}
	return out
}

// --- Helpers ---

type harness struct {
	kiosk   *Kiosk
	catalog *fakeCatalog
	decoder *fakeDecoder
	timers  *timers
	notices []Notice
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		catalog: newFakeCatalog(
			product.Product{Code: "123", Name: "Organic Bananas", UnitPrice: decimal.RequireFromString("1.99")},
			product.Product{Code: "456", Name: "Sourdough Bread", UnitPrice: decimal.RequireFromString("4.50")},
		),
		decoder: &fakeDecoder{},
		timers:  &timers{},
	}
	h.kiosk = New(h.catalog, h.decoder, zap.NewNop(),
		WithAfterFunc(h.timers.after),
		WithNotify(func(n Notice) { h.notices = append(h.notices, n) }),
	)
	return h
}

func (h *harness) lastNotice(t *testing.T) Notice {
	t.Helper()

	require.NotEmpty(t, h.notices)
	return h.notices[len(h.notices)-1]
}

// --- Tests ---

func TestCheckoutHitPausesScanning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")

	s := h.kiosk.Snapshot()
	assert.False(t, s.Scan.Active)
	assert.Equal(t, checkout.StatusAwaitingConfirmation, s.Checkout.Status)
	require.NotNil(t, s.Checkout.Candidate)
	assert.Equal(t, "Organic Bananas", s.Checkout.Candidate.Name)
	assert.Equal(t, 1, s.Checkout.Candidate.Quantity)

	require.NotNil(t, s.Notice)
	assert.Equal(t, LevelInfo, s.Notice.Level)
	assert.Contains(t, s.Notice.Message, "Organic Bananas")
	assert.Contains(t, s.Notice.Message, "1.99")

	// Frames arriving after the pause are not looked up.
	h.decoder.frame("456")
	assert.Equal(t, 1, h.catalog.fetchCount())
}

func TestConfirmAllowsRescanOfSameCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")
	_, err := h.kiosk.Checkout().Increment()
	require.NoError(t, err)

	item, err := h.kiosk.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	s := h.kiosk.Snapshot()
	assert.Nil(t, s.Notice, "candidate notice is cleared")
	assert.False(t, s.Scan.Active, "scanning stays off after confirm")
	assert.Empty(t, s.Scan.LastDecodedCode)
	assert.Equal(t, checkout.StatusCartActive, s.Checkout.Status)

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")
	assert.Equal(t, checkout.StatusAwaitingConfirmation, h.kiosk.Checkout().Status())
}

func TestDismissDropsCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("456")
	require.NoError(t, h.kiosk.Dismiss())

	s := h.kiosk.Snapshot()
	assert.Equal(t, checkout.StatusScanning, s.Checkout.Status)
	assert.Empty(t, s.Checkout.Cart)
	assert.Empty(t, s.Scan.LastDecodedCode)
}

func TestMissKeepsScanningAndCoolsDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("999")

	s := h.kiosk.Snapshot()
	assert.True(t, s.Scan.Active)
	assert.Equal(t, checkout.StatusScanning, s.Checkout.Status)
	require.NotNil(t, s.Notice)
	assert.Equal(t, LevelWarn, s.Notice.Level)
	assert.Contains(t, s.Notice.Message, "999")
	assert.Equal(t, []time.Duration{DefaultMissCooldown}, h.timers.delays())

	// The same code stays debounced until the cooldown elapses.
	h.decoder.frame("999")
	assert.Equal(t, 1, h.catalog.fetchCount())

	h.timers.fire()
	h.decoder.frame("999")
	assert.Equal(t, 2, h.catalog.fetchCount())
}

func TestMissCooldownKeepsNewerCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("999")
	h.decoder.frame("123")
	h.timers.fire()

	assert.Equal(t, "123", h.kiosk.Snapshot().Scan.LastDecodedCode)
}

func TestLookupFailureRaisesNotice(t *testing.T) {
	h := newHarness(t)
	h.catalog.fetchErr = errors.New("connection refused")
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")

	n := h.lastNotice(t)
	assert.Equal(t, LevelError, n.Level)
	assert.NotContains(t, n.Message, "connection refused")
	assert.Equal(t, checkout.StatusScanning, h.kiosk.Checkout().Status())
	assert.Empty(t, h.timers.delays(), "failures are not retried")
}

func TestStartScanningRejectedWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")

	err := h.kiosk.StartScanning(ctx)
	var tErr *checkout.TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, checkout.StatusAwaitingConfirmation, tErr.From)
	assert.False(t, h.kiosk.Snapshot().Scan.Active)
}

func TestPayCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")
	_, err := h.kiosk.Checkout().SetQuantity(2)
	require.NoError(t, err)
	_, err = h.kiosk.Confirm()
	require.NoError(t, err)

	require.NoError(t, h.kiosk.Checkout().Pay())
	assert.Equal(t, checkout.PaymentProcessing, h.kiosk.Snapshot().Checkout.Payment)

	h.timers.fire()

	s := h.kiosk.Snapshot()
	assert.Equal(t, checkout.StatusPaid, s.Checkout.Status)
	assert.Empty(t, s.Checkout.Cart)
	n := h.lastNotice(t)
	assert.Equal(t, LevelInfo, n.Level)
	assert.Contains(t, n.Message, "3.98")
}

func TestSwitchModeDiscardsCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("123")
	_, err := h.kiosk.Confirm()
	require.NoError(t, err)
	require.NoError(t, h.kiosk.Checkout().Pay())

	mode, err := h.kiosk.SwitchMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeAdmin, mode)

	h.timers.fire()

	s := h.kiosk.Snapshot()
	assert.Equal(t, ModeAdmin, s.Mode)
	assert.False(t, s.Scan.Active)
	assert.Equal(t, checkout.StatusScanning, s.Checkout.Status)
	assert.Equal(t, checkout.PaymentIdle, s.Checkout.Payment)
	assert.Empty(t, s.Checkout.Cart)

	mode, err = h.kiosk.SwitchMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeCheckout, mode)
}

func TestAdminScanFillsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.kiosk.SwitchMode(ctx)
	require.NoError(t, err)
	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("777")

	s := h.kiosk.Snapshot()
	assert.Equal(t, "777", s.Admin.Code)
	assert.False(t, s.Scan.Active)
	assert.Equal(t, checkout.StatusScanning, s.Checkout.Status)
	assert.Zero(t, h.catalog.fetchCount(), "admin scans are not looked up")
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantErr   error
		wantLevel Level
		wantMsg   string
	}{
		{name: "new product", code: "777", wantLevel: LevelInfo, wantMsg: "Product saved."},
		{name: "duplicate code", code: "123", wantErr: product.ErrAlreadyExists, wantLevel: LevelError, wantMsg: "already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			_, err := h.kiosk.SwitchMode(ctx)
			require.NoError(t, err)
			form := h.kiosk.Admin()
			require.NoError(t, form.SetCode(tt.code))
			require.NoError(t, form.SetName("Lemon"))
			require.NoError(t, form.SetPrice("0.50"))

			created, err := h.kiosk.Submit(ctx)
			n := h.lastNotice(t)
			assert.Equal(t, tt.wantLevel, n.Level)
			assert.Contains(t, n.Message, tt.wantMsg)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, admin.StatusError, form.State().Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Lemon", created.Name)
			assert.Equal(t, admin.StatusSuccess, form.State().Status)

			h.timers.fire()
			assert.Equal(t, admin.StatusIdle, form.State().Status)
		})
	}
}

func TestStartScanningClearsNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kiosk.StartScanning(ctx))
	h.decoder.frame("999")
	require.NotNil(t, h.kiosk.Snapshot().Notice)

	require.NoError(t, h.kiosk.StopScanning(ctx))
	require.NoError(t, h.kiosk.StartScanning(ctx))
	assert.Nil(t, h.kiosk.Snapshot().Notice)
}

func TestSwitchModeDropsLookupInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.catalog.entered = make(chan struct{})
	h.catalog.release = make(chan struct{})

	require.NoError(t, h.kiosk.StartScanning(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.decoder.frame("123")
	}()

	<-h.catalog.entered
	mode, err := h.kiosk.SwitchMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeAdmin, mode)

	close(h.catalog.release)
	<-done

	s := h.kiosk.Snapshot()
	assert.Equal(t, ModeAdmin, s.Mode)
	assert.Equal(t, checkout.StatusScanning, s.Checkout.Status)
	assert.Nil(t, s.Checkout.Candidate)
	assert.Empty(t, s.Admin.Code, "the stale code does not reach the form")
	assert.Nil(t, s.Notice)
	assert.Empty(t, h.notices)
	assert.Equal(t, 1, h.catalog.fetchCount())
}
