// Package kiosk coordinates one self-checkout client session: the scan
// session, the checkout machine, and the admin form.
package kiosk

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/scan-and-go/internal/admin"
	"github.com/xenking/scan-and-go/internal/checkout"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/scan"
)

// Mode decides what a scanned code is used for.
type Mode string

const (
	ModeCheckout Mode = "checkout"
	ModeAdmin    Mode = "admin"
)

// DefaultMissCooldown is how long a code that missed the catalog stays
// debounced.
const DefaultMissCooldown = time.Second

// Catalog is implemented by product.Service and client.Client.
type Catalog interface {
	Fetch(ctx context.Context, code string) (*product.Product, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
}

// Level grades a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a transient, non-blocking message for the operator.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// State is a serializable snapshot of the whole session.
type State struct {
	Mode     Mode           `json:"mode"`
	Scan     scan.State     `json:"scan"`
	Checkout checkout.State `json:"checkout"`
	Admin    admin.State    `json:"admin"`
	Notice   *Notice        `json:"notice,omitempty"`
}

// Config holds the session timings.
type Config struct {
	Scan         scan.Config
	MissCooldown time.Duration
	PaymentDelay time.Duration
	SuccessDelay time.Duration
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Option configures a Kiosk.
type Option func(*Kiosk)

// WithConfig overrides the default timings. Zero durations keep defaults.
func WithConfig(cfg Config) Option {
	return func(k *Kiosk) {
		k.cfg.Scan = cfg.Scan
		if cfg.MissCooldown > 0 {
			k.cfg.MissCooldown = cfg.MissCooldown
		}
		if cfg.PaymentDelay > 0 {
			k.cfg.PaymentDelay = cfg.PaymentDelay
		}
		if cfg.SuccessDelay > 0 {
			k.cfg.SuccessDelay = cfg.SuccessDelay
		}
	}
}

// WithAfterFunc replaces every timer of the session.
func WithAfterFunc(fn AfterFunc) Option {
	return func(k *Kiosk) { k.after = fn }
}

// WithNotify receives every notice as it is raised.
func WithNotify(fn func(Notice)) Option {
	return func(k *Kiosk) { k.notify = fn }
}

// Kiosk is one client session.
type Kiosk struct {
	catalog Catalog
	lg      *zap.Logger
	cfg     Config
	after   AfterFunc
	notify  func(Notice)

	session  *scan.Session
	checkout *checkout.Machine
	form     *admin.Form

	// switching orders mode switches against lookups that finish late.
	switching sync.Mutex

	mu     sync.Mutex
	mode   Mode
	epoch  uint64
	notice *Notice
}

// New creates a session in checkout mode with scanning stopped.
func New(catalog Catalog, decoder scan.Decoder, lg *zap.Logger, opts ...Option) *Kiosk {
	k := &Kiosk{
		catalog: catalog,
		lg:      lg,
		cfg: Config{
			Scan:         scan.DefaultConfig(),
			MissCooldown: DefaultMissCooldown,
			PaymentDelay: checkout.DefaultPaymentDelay,
			SuccessDelay: admin.DefaultSuccessDelay,
		},
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		mode: ModeCheckout,
	}
	for _, opt := range opts {
		opt(k)
	}

	k.session = scan.NewSession(decoder, k.cfg.Scan, k.handleCode, lg.Named("scan"))
	k.checkout = checkout.New(
		checkout.WithPaymentDelay(k.cfg.PaymentDelay),
		checkout.WithAfterFunc(checkout.AfterFunc(k.after)),
		checkout.WithOnPaid(k.paid),
	)
	k.form = admin.NewForm(catalog,
		admin.WithSuccessDelay(k.cfg.SuccessDelay),
		admin.WithAfterFunc(admin.AfterFunc(k.after)),
	)
	return k
}

// Checkout exposes the checkout machine for quantity and payment controls.
func (k *Kiosk) Checkout() *checkout.Machine { return k.checkout }

// Admin exposes the product form.
func (k *Kiosk) Admin() *admin.Form { return k.form }

// Mode returns the current mode.
func (k *Kiosk) Mode() Mode {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.mode
}

// StartScanning turns the scanner on. In checkout mode this is only allowed
// while no candidate or payment is pending.
func (k *Kiosk) StartScanning(ctx context.Context) error {
	if k.Mode() == ModeCheckout {
		switch status := k.checkout.Status(); status {
		case checkout.StatusScanning, checkout.StatusCartActive:
		default:
			return &checkout.TransitionError{Op: "start scanning", From: status}
		}
	}
	k.clearNotice()
	return k.session.Start(ctx)
}

// StopScanning turns the scanner off.
func (k *Kiosk) StopScanning(ctx context.Context) error {
	return k.session.Stop(ctx)
}

// Confirm adds the candidate to the cart and lets the same code be scanned
// again. Scanning stays off until restarted.
func (k *Kiosk) Confirm() (checkout.LineItem, error) {
	item, err := k.checkout.Confirm()
	if err != nil {
		return checkout.LineItem{}, err
	}
	k.session.ResetDebounce()
	k.clearNotice()
	k.lg.Info("Item added",
		zap.String("code", item.Code),
		zap.Int("quantity", item.Quantity),
		zap.String("line_total", item.LineTotal.String()),
	)
	return item, nil
}

// Dismiss drops the candidate and lets the same code be scanned again.
func (k *Kiosk) Dismiss() error {
	if err := k.checkout.Dismiss(); err != nil {
		return err
	}
	k.session.ResetDebounce()
	k.clearNotice()
	return nil
}

// Submit saves the admin form and raises a notice with the outcome.
func (k *Kiosk) Submit(ctx context.Context) (*product.Product, error) {
	created, err := k.form.Submit(ctx)
	if err != nil {
		k.raise(LevelError, admin.Describe(err))
		return nil, err
	}
	k.lg.Info("Product registered", zap.String("code", created.Code), zap.String("name", created.Name))
	k.raise(LevelInfo, "Product saved.")
	return created, nil
}

// SwitchMode toggles between checkout and admin. Scanning stops and the cart
// is discarded along with any pending payment. The admin form is cleared.
func (k *Kiosk) SwitchMode(ctx context.Context) (Mode, error) {
	if err := k.session.Stop(ctx); err != nil {
		return k.Mode(), errors.Wrap(err, "stop scanning")
	}

	k.switching.Lock()
	k.checkout.Clear()
	k.form.Reset()

	k.mu.Lock()
	if k.mode == ModeCheckout {
		k.mode = ModeAdmin
	} else {
		k.mode = ModeCheckout
	}
	mode := k.mode
	k.epoch++
	k.notice = nil
	k.mu.Unlock()
	k.switching.Unlock()

	k.lg.Info("Mode switched", zap.String("mode", string(mode)))
	return mode, nil
}

// Snapshot returns the state of the whole session.
func (k *Kiosk) Snapshot() State {
	k.mu.Lock()
	mode := k.mode
	var notice *Notice
	if k.notice != nil {
		n := *k.notice
		notice = &n
	}
	k.mu.Unlock()

	return State{
		Mode:     mode,
		Scan:     k.session.State(),
		Checkout: k.checkout.Snapshot(),
		Admin:    k.form.State(),
		Notice:   notice,
	}
}

// handleCode receives debounced codes from the scan session.
func (k *Kiosk) handleCode(ctx context.Context, code string) {
	lg := k.lg.With(zap.String("code", code))

	k.mu.Lock()
	mode, epoch := k.mode, k.epoch
	k.mu.Unlock()

	if mode == ModeAdmin {
		k.switching.Lock()
		defer k.switching.Unlock()
		if k.stale(epoch) {
			lg.Debug("Scan dropped after mode switch")
			return
		}
		if err := k.form.SetCode(code); err != nil {
			k.raise(LevelWarn, "Wait for the current save to finish.")
			return
		}
		k.stopAfterHit(ctx, lg)
		return
	}

	p, err := k.catalog.Fetch(ctx, code)

	k.switching.Lock()
	defer k.switching.Unlock()
	if k.stale(epoch) {
		lg.Debug("Lookup result dropped after mode switch")
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, product.ErrNotFound):
		lg.Debug("Code not in catalog")
		k.raise(LevelWarn, "Product "+code+" not found.")
		k.after(k.cfg.MissCooldown, func() { k.session.Forget(code) })
		return
	default:
		lg.Warn("Catalog lookup failed", zap.Error(err))
		k.raise(LevelError, "Lookup failed. Try again.")
		return
	}

	k.stopAfterHit(ctx, lg)
	if err := k.checkout.Offer(*p); err != nil {
		lg.Warn("Scan ignored", zap.Error(err))
		k.raise(LevelWarn, "Finish the current item first.")
		return
	}
	k.raise(LevelInfo, p.Name+" ("+p.UnitPrice.StringFixed(2)+"), quantity 1. Confirm or dismiss.")
}

// stale reports whether the mode was switched since epoch was read.
func (k *Kiosk) stale(epoch uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.epoch != epoch
}

// stopAfterHit pauses scanning so one physical scan queues one item.
func (k *Kiosk) stopAfterHit(ctx context.Context, lg *zap.Logger) {
	if err := k.session.Stop(ctx); err != nil {
		lg.Warn("Stop scanning", zap.Error(err))
	}
}

func (k *Kiosk) paid(cart checkout.Cart) {
	k.lg.Info("Payment completed",
		zap.Int("lines", len(cart)),
		zap.String("total", cart.Total().String()),
	)
	k.raise(LevelInfo, "Payment complete. Total "+cart.Total().StringFixed(2)+".")
}

func (k *Kiosk) raise(level Level, msg string) {
	n := Notice{Level: level, Message: msg}

	k.mu.Lock()
	k.notice = &n
	notify := k.notify
	k.mu.Unlock()

	if notify != nil {
		notify(n)
	}
}

func (k *Kiosk) clearNotice() {
	k.mu.Lock()
	k.notice = nil
	k.mu.Unlock()
}
