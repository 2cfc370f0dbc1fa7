package checkout

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

// manualClock collects scheduled callbacks until the test fires them.
type manualClock struct {
	mu      sync.Mutex
	pending []*timer
}

type timer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &timer{d: d, f: f}
	c.pending = append(c.pending, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// fire runs every scheduled callback that was not stopped.
func (c *manualClock) fire() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, t := range pending {
		if !t.stopped {
			t.f()
		}
	}
}

func bananas() product.Product {
	return product.Product{Code: "123", Name: "Organic Bananas", UnitPrice: decimal.RequireFromString("1.99")}
}

func bread() product.Product {
	return product.Product{Code: "456", Name: "Sourdough Bread", UnitPrice: decimal.RequireFromString("4.50")}
}

func newTestMachine(opts ...Option) (*Machine, *manualClock) {
	clock := &manualClock{}
	return New(append([]Option{WithAfterFunc(clock.AfterFunc)}, opts...)...), clock
}

func TestMachine_ScanConfirmPay(t *testing.T) {
	var paid Cart
	m, clock := newTestMachine(WithOnPaid(func(c Cart) { paid = c }))

	require.NoError(t, m.Offer(bananas()))
	assert.Equal(t, StatusAwaitingConfirmation, m.Status())
	assert.Equal(t, 1, m.Snapshot().Candidate.Quantity)

	item, err := m.Confirm()
	require.NoError(t, err)
	assert.Equal(t, LineItem{
		Code:      "123",
		Name:      "Organic Bananas",
		UnitPrice: decimal.RequireFromString("1.99"),
		Quantity:  1,
		LineTotal: decimal.RequireFromString("1.99"),
	}, item)
	assert.Equal(t, StatusCartActive, m.Status())

	require.NoError(t, m.Pay())
	s := m.Snapshot()
	assert.Equal(t, StatusPaying, s.Status)
	assert.Equal(t, PaymentProcessing, s.Payment)
	assert.Len(t, s.Cart, 1, "cart is kept until settlement")
	require.Len(t, clock.pending, 1)
	assert.Equal(t, DefaultPaymentDelay, clock.pending[0].d)

	clock.fire()

	s = m.Snapshot()
	assert.Equal(t, StatusPaid, s.Status)
	assert.Equal(t, PaymentCompleted, s.Payment)
	assert.Empty(t, s.Cart)
	assert.True(t, s.Total.IsZero())
	require.Len(t, paid, 1)
	assert.Equal(t, "123", paid[0].Code)

	require.NoError(t, m.Reset())
	assert.Equal(t, StatusScanning, m.Status())
}

func TestMachine_RealTimer(t *testing.T) {
	m := New(WithPaymentDelay(10 * time.Millisecond))
	require.NoError(t, m.Offer(bananas()))
	_, err := m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Pay())

	assert.Eventually(t, func() bool { return m.Status() == StatusPaid }, time.Second, 5*time.Millisecond)
}

func TestMachine_QuantityClamp(t *testing.T) {
	tests := []struct {
		name string
		ops  func(m *Machine) (int, error)
		want int
	}{
		{name: "increment", ops: func(m *Machine) (int, error) { return m.Increment() }, want: 2},
		{name: "decrement to zero", ops: func(m *Machine) (int, error) { return m.Decrement() }, want: 0},
		{name: "decrement below zero", ops: func(m *Machine) (int, error) {
			_, _ = m.Decrement()
			return m.Decrement()
		}, want: 0},
		{name: "set above max", ops: func(m *Machine) (int, error) { return m.SetQuantity(250) }, want: MaxQuantity},
		{name: "set negative", ops: func(m *Machine) (int, error) { return m.SetQuantity(-4) }, want: 0},
		{name: "increment at max", ops: func(m *Machine) (int, error) {
			_, _ = m.SetQuantity(MaxQuantity)
			return m.Increment()
		}, want: MaxQuantity},
		{name: "set in range", ops: func(m *Machine) (int, error) { return m.SetQuantity(7) }, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine()
			require.NoError(t, m.Offer(bananas()))

			got, err := tt.ops(m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want > 0, m.CanConfirm())
		})
	}
}

func TestMachine_ConfirmAtZero(t *testing.T) {
	m, _ := newTestMachine()
	require.NoError(t, m.Offer(bananas()))
	_, err := m.SetQuantity(0)
	require.NoError(t, err)

	_, err = m.Confirm()
	require.ErrorIs(t, err, ErrZeroQuantity)
	assert.Equal(t, StatusAwaitingConfirmation, m.Status())
	assert.Empty(t, m.Snapshot().Cart)
}

func TestMachine_TotalIsSumOfLines(t *testing.T) {
	m, _ := newTestMachine()

	add := func(p product.Product, qty int) {
		require.NoError(t, m.Offer(p))
		_, err := m.SetQuantity(qty)
		require.NoError(t, err)
		_, err = m.Confirm()
		require.NoError(t, err)
	}
	add(bananas(), 3)
	add(bread(), 2)
	add(bananas(), 1)

	s := m.Snapshot()
	require.Len(t, s.Cart, 3, "repeat scans get their own line")
	want := decimal.Zero
	for _, item := range s.Cart {
		assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.LineTotal))
		want = want.Add(item.LineTotal)
	}
	assert.True(t, want.Equal(s.Total))
	assert.Equal(t, "16.96", s.Total.String())
	assert.Equal(t, 6, s.Cart.Quantity())
}

func TestMachine_Dismiss(t *testing.T) {
	m, _ := newTestMachine()

	require.NoError(t, m.Offer(bananas()))
	require.NoError(t, m.Dismiss())
	assert.Equal(t, StatusScanning, m.Status())

	require.NoError(t, m.Offer(bananas()))
	_, err := m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Offer(bread()))
	require.NoError(t, m.Dismiss())
	assert.Equal(t, StatusCartActive, m.Status())
	assert.Len(t, m.Snapshot().Cart, 1)
}

func TestMachine_RejectedTransitions(t *testing.T) {
	m, _ := newTestMachine()

	assert.ErrorIs(t, m.Pay(), ErrEmptyCart)

	var tErr *TransitionError
	_, err := m.Confirm()
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusScanning, tErr.From)

	_, err = m.Increment()
	require.ErrorAs(t, err, &tErr)
	require.ErrorAs(t, m.Dismiss(), &tErr)
	require.ErrorAs(t, m.Reset(), &tErr)

	require.NoError(t, m.Offer(bananas()))
	require.ErrorAs(t, m.Offer(bread()), &tErr, "one candidate at a time")
	require.ErrorAs(t, m.Pay(), &tErr)

	_, err = m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Pay())
	require.ErrorAs(t, m.Offer(bread()), &tErr, "no scanning while paying")
	require.ErrorAs(t, m.Pay(), &tErr)
	assert.EqualError(t, m.Reset(), "cannot reset while paying")
}

func TestMachine_ClearCancelsPayment(t *testing.T) {
	paidCalls := 0
	m, clock := newTestMachine(WithOnPaid(func(Cart) { paidCalls++ }))

	require.NoError(t, m.Offer(bananas()))
	_, err := m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Pay())

	m.Clear()
	clock.fire()

	assert.Equal(t, StatusScanning, m.Status())
	assert.Empty(t, m.Snapshot().Cart)
	assert.Zero(t, paidCalls)
}

func TestMachine_StaleSettlementIgnored(t *testing.T) {
	m, clock := newTestMachine()

	require.NoError(t, m.Offer(bananas()))
	_, err := m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Pay())
	stale := clock.pending[0].f

	m.Clear()
	require.NoError(t, m.Offer(bread()))
	_, err = m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Pay())

	stale()
	assert.Equal(t, StatusPaying, m.Status())
}

func TestState_JSON(t *testing.T) {
	m, _ := newTestMachine()
	require.NoError(t, m.Offer(bananas()))
	_, err := m.Confirm()
	require.NoError(t, err)
	require.NoError(t, m.Offer(bread()))

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "awaiting-confirmation",
		"payment": "idle",
		"candidate": {"code": "456", "name": "Sourdough Bread", "quantity": 1},
		"cart": [{"code": "123", "name": "Organic Bananas", "unitPrice": "1.99", "quantity": 1, "lineTotal": "1.99"}],
		"total": "1.99"
	}`, string(data))
}
