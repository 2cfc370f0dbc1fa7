// Package checkout implements the per-session checkout flow: quantity
// confirmation of a scanned product, the cart, and simulated payment.
package checkout

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

// Status is the checkout state.
type Status string

const (
	StatusScanning             Status = "scanning-idle"
	StatusAwaitingConfirmation Status = "awaiting-confirmation"
	StatusCartActive           Status = "cart-active"
	StatusPaying               Status = "paying"
	StatusPaid                 Status = "paid"
)

// Payment is the lifecycle of the simulated settlement.
type Payment string

const (
	PaymentIdle       Payment = "idle"
	PaymentProcessing Payment = "processing"
	PaymentCompleted  Payment = "completed"
)

const (
	// MaxQuantity bounds the quantity stepper.
	MaxQuantity = 100
	// DefaultPaymentDelay is how long the simulated settlement takes.
	DefaultPaymentDelay = 2 * time.Second
)

var (
	// ErrEmptyCart is returned by Pay when there is nothing to pay for.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrZeroQuantity is returned by Confirm when the quantity is 0.
	ErrZeroQuantity = errors.New("quantity must be at least 1")
)

// TransitionError reports an operation that is not allowed in the current
// state.
type TransitionError struct {
	Op   string
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}

// Candidate is the product awaiting quantity confirmation.
type Candidate struct {
	Product  product.Product `json:"-"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
}

// State is a serializable snapshot of a Machine.
type State struct {
	Status    Status          `json:"status"`
	Payment   Payment         `json:"payment"`
	Candidate *Candidate      `json:"candidate,omitempty"`
	Cart      Cart            `json:"cart"`
	Total     decimal.Decimal `json:"total"`
}

// AfterFunc schedules f after d and returns a function that cancels it, like
// time.AfterFunc. f must run on its own goroutine.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Machine.
type Option func(*Machine)

// WithPaymentDelay overrides DefaultPaymentDelay.
func WithPaymentDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// WithAfterFunc replaces the timer used for payment settlement.
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Machine) { m.after = fn }
}

// WithOnPaid registers a callback invoked after a payment completes. It runs
// on the timer goroutine without the machine lock held.
func WithOnPaid(fn func(paid Cart)) Option {
	return func(m *Machine) { m.onPaid = fn }
}

// Machine is the checkout state machine of one kiosk session. It is safe for
// concurrent use.
type Machine struct {
	delay  time.Duration
	after  AfterFunc
	onPaid func(Cart)

	mu        sync.Mutex
	status    Status
	cart      Cart
	candidate *Candidate
	cancelPay func() bool
	payRun    uint64
}

// New returns a machine in scanning-idle with an empty cart.
func New(opts ...Option) *Machine {
	m := &Machine{
		delay:  DefaultPaymentDelay,
		after:  timeAfterFunc,
		status: StatusScanning,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Offer opens quantity confirmation for p with a quantity of 1.
func (m *Machine) Offer(p product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusScanning && m.status != StatusCartActive {
		return &TransitionError{Op: "offer a product", From: m.status}
	}
	m.candidate = &Candidate{Product: p, Code: p.Code, Name: p.Name, Quantity: 1}
	m.status = StatusAwaitingConfirmation
	return nil
}

// Increment raises the candidate quantity by one, up to MaxQuantity.
func (m *Machine) Increment() (int, error) {
	return m.adjust("increment", func(q int) int { return q + 1 })
}

// Decrement lowers the candidate quantity by one, down to 0.
func (m *Machine) Decrement() (int, error) {
	return m.adjust("decrement", func(q int) int { return q - 1 })
}

// SetQuantity sets the candidate quantity, clamped to [0, MaxQuantity].
func (m *Machine) SetQuantity(n int) (int, error) {
	return m.adjust("set quantity", func(int) int { return n })
}

func (m *Machine) adjust(op string, fn func(int) int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAwaitingConfirmation {
		return 0, &TransitionError{Op: op, From: m.status}
	}
	m.candidate.Quantity = min(max(fn(m.candidate.Quantity), 0), MaxQuantity)
	return m.candidate.Quantity, nil
}

// CanConfirm reports whether a candidate with a positive quantity is waiting.
func (m *Machine) CanConfirm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status == StatusAwaitingConfirmation && m.candidate.Quantity > 0
}

// Confirm appends the candidate to the cart.
func (m *Machine) Confirm() (LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAwaitingConfirmation {
		return LineItem{}, &TransitionError{Op: "confirm", From: m.status}
	}
	if m.candidate.Quantity == 0 {
		return LineItem{}, ErrZeroQuantity
	}

	item := NewLineItem(m.candidate.Product, m.candidate.Quantity)
	m.cart = append(m.cart, item)
	m.candidate = nil
	m.status = StatusCartActive
	return item, nil
}

// Dismiss drops the candidate without touching the cart.
func (m *Machine) Dismiss() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAwaitingConfirmation {
		return &TransitionError{Op: "dismiss", From: m.status}
	}
	m.candidate = nil
	m.status = m.restingStatus()
	return nil
}

// Pay starts the simulated settlement. After the payment delay the cart is
// cleared and the machine moves to paid.
func (m *Machine) Pay() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusCartActive && m.status != StatusScanning {
		return &TransitionError{Op: "pay", From: m.status}
	}
	if len(m.cart) == 0 {
		return ErrEmptyCart
	}

	m.status = StatusPaying
	m.payRun++
	run := m.payRun
	m.cancelPay = m.after(m.delay, func() { m.settle(run) })
	return nil
}

func (m *Machine) settle(run uint64) {
	m.mu.Lock()
	if m.status != StatusPaying || m.payRun != run {
		m.mu.Unlock()
		return
	}
	paid := m.cart
	m.cart = nil
	m.cancelPay = nil
	m.status = StatusPaid
	onPaid := m.onPaid
	m.mu.Unlock()

	if onPaid != nil {
		onPaid(paid)
	}
}

// Reset starts a new checkout after a completed payment.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusPaid {
		return &TransitionError{Op: "reset", From: m.status}
	}
	m.cart = nil
	m.status = StatusScanning
	return nil
}

// Clear empties the cart and cancels any candidate or pending payment,
// whatever the current state.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelPay != nil {
		m.cancelPay()
		m.cancelPay = nil
	}
	m.payRun++
	m.cart = nil
	m.candidate = nil
	m.status = StatusScanning
}

// Status returns the current state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Status:  m.status,
		Payment: PaymentIdle,
		Cart:    slices.Clone(m.cart),
		Total:   m.cart.Total(),
	}
	switch m.status {
	case StatusPaying:
		s.Payment = PaymentProcessing
	case StatusPaid:
		s.Payment = PaymentCompleted
	}
	if m.candidate != nil {
		c := *m.candidate
		s.Candidate = &c
	}
	if s.Cart == nil {
		s.Cart = Cart{}
	}
	return s
}

func (m *Machine) restingStatus() Status {
	if len(m.cart) > 0 {
		return StatusCartActive
	}
	return StatusScanning
}
