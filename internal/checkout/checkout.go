// Package checkout drives one operator's checkout flow: validation, the two
// payment rails, and the single submission to the sales store. Exactly one
// submission is sent per attempt; a rejected attempt returns the machine to
// AwaitingPayment with the cart intact so the operator can retry.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tegarrizky11/sepukopi-pos/internal/cart"
	"github.com/tegarrizky11/sepukopi-pos/internal/catalog"
	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/receipt"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
)

type State string

const (
	StateIdle                 State = "idle"
	StateReady                State = "ready"
	StateAwaitingPayment      State = "awaiting_payment"
	StateValidating           State = "validating"
	StatePresentingCode       State = "presenting_code"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateVerifying            State = "verifying"
	StateSubmitting           State = "submitting"
	StateCompleted            State = "completed"
	StateRejected             State = "rejected"
)

var (
	// ErrEmptyCart means checkout was invoked with nothing to sell.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrInsufficientPayment is the local cash validation failure. It is
	// raised before any network call and leaves the cart unchanged.
	ErrInsufficientPayment = errors.New("checkout: tendered amount below cart total")

	// ErrSubmissionInFlight rejects re-entrant submits while a previous
	// submission has not resolved.
	ErrSubmissionInFlight = errors.New("checkout: submission already in flight")

	// ErrSubmissionFailed wraps the store's rejection so its message
	// surfaces verbatim to the operator.
	ErrSubmissionFailed = errors.New("checkout: submission failed")

	// ErrNoActiveQRIS means confirm/cancel was called without a QRIS code
	// on screen.
	ErrNoActiveQRIS = errors.New("checkout: no qris payment in progress")
)

// IdentitySource supplies the cashier identity stamped on each sale.
type IdentitySource interface {
	Current() (domain.Actor, bool)
}

// Result is the terminal payload of a completed checkout.
type Result struct {
	Sale       domain.SaleRecord `json:"sale"`
	Receipt    domain.Receipt    `json:"receipt"`
	AmountPaid int64             `json:"amount_paid"`
	Change     int64             `json:"change"`
}

type Machine struct {
	cart        *cart.Engine
	catalog     *catalog.View
	repo        store.Repository
	identity    IdentitySource
	storeName   string
	verifyDelay time.Duration

	mu   sync.Mutex
	flow State // zero value means no flow in progress; State() derives from the cart
}

func NewMachine(cartEngine *cart.Engine, view *catalog.View, repo store.Repository, identity IdentitySource, storeName string, verifyDelay time.Duration) *Machine {
	return &Machine{
		cart:        cartEngine,
		catalog:     view,
		repo:        repo,
		identity:    identity,
		storeName:   storeName,
		verifyDelay: verifyDelay,
	}
}

// State reports the machine's current position. Outside an active flow it is
// derived from the cart: Idle when empty, Ready otherwise.
func (m *Machine) State() State {
	m.mu.Lock()
	flow := m.flow
	m.mu.Unlock()

	switch flow {
	case StateCompleted, StateRejected:
		// A terminal state holds until the operator starts the next sale.
		if !m.cart.Empty() {
			return StateReady
		}
		return flow
	case "", StateAwaitingPayment:
		if m.cart.Empty() {
			return StateIdle
		}
		if flow == StateAwaitingPayment {
			return StateAwaitingPayment
		}
		return StateReady
	default:
		return flow
	}
}

// PayCash validates the tendered amount and submits the sale on the cash
// rail. Change is tendered minus total, exact.
func (m *Machine) PayCash(ctx context.Context, tendered int64) (*Result, error) {
	m.mu.Lock()
	if m.inFlight() {
		m.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if m.cart.Empty() {
		m.flow = ""
		m.mu.Unlock()
		return nil, ErrEmptyCart
	}

	m.flow = StateValidating
	total := m.cart.Total()
	if tendered < total {
		m.flow = StateAwaitingPayment
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: total %s, tendered %s", ErrInsufficientPayment, domain.Rupiah(total), domain.Rupiah(tendered))
	}

	items := m.cart.Items()
	m.flow = StateSubmitting
	m.mu.Unlock()

	return m.submit(ctx, items, domain.PaymentCash, tendered, tendered-total)
}

// StartQRIS opens the QRIS rail: the code goes on screen and the machine
// waits for explicit operator confirmation that payment was received.
func (m *Machine) StartQRIS(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight() {
		return 0, ErrSubmissionInFlight
	}
	if m.cart.Empty() {
		m.flow = ""
		return 0, ErrEmptyCart
	}

	m.flow = StatePresentingCode
	return m.cart.Total(), nil
}

// ConfirmQRIS records the operator's attestation that the QRIS payment went
// through, runs the fixed verification delay and submits. There is no hard
// verification and no tendered-amount check; change is always zero.
func (m *Machine) ConfirmQRIS(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	if m.flow == StateVerifying || m.flow == StateSubmitting {
		m.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if m.flow != StatePresentingCode && m.flow != StateAwaitingConfirmation {
		m.mu.Unlock()
		return nil, ErrNoActiveQRIS
	}

	total := m.cart.Total()
	items := m.cart.Items()
	m.flow = StateVerifying
	m.mu.Unlock()

	// Simulated gateway check. Fixed wait, no early exit.
	if m.verifyDelay > 0 {
		time.Sleep(m.verifyDelay)
	}

	m.mu.Lock()
	m.flow = StateSubmitting
	m.mu.Unlock()

	return m.submit(ctx, items, domain.PaymentQRIS, total, 0)
}

// CancelQRIS abandons a presented code before confirmation. The cart is
// untouched.
func (m *Machine) CancelQRIS() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flow != StatePresentingCode && m.flow != StateAwaitingConfirmation {
		return ErrNoActiveQRIS
	}
	m.flow = StateAwaitingPayment
	return nil
}

func (m *Machine) inFlight() bool {
	return m.flow == StateValidating || m.flow == StateVerifying || m.flow == StateSubmitting
}

// submit sends exactly one request to the sales store. Callers have already
// set flow to Submitting.
func (m *Machine) submit(ctx context.Context, items []domain.SaleItem, method string, amountPaid int64, change int64) (*Result, error) {
	cashier := "unknown"
	if actor, ok := m.identity.Current(); ok {
		cashier = actor.Username
	}

	draft := domain.SaleDraft{
		Items:          items,
		PaymentMethod:  method,
		CashierName:    cashier,
		IdempotencyKey: uuid.NewString(),
	}

	sale, err := m.repo.SubmitSale(ctx, draft)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.flow = StateAwaitingPayment
		return nil, fmt.Errorf("%w: %s", ErrSubmissionFailed, err.Error())
	}

	m.cart.Clear()
	m.flow = StateCompleted

	if refreshErr := m.catalog.Refresh(ctx); refreshErr != nil {
		log.Printf("[checkout] WARN: catalog refresh after sale %s failed: %v", sale.ID, refreshErr)
	}

	return &Result{
		Sale:       *sale,
		Receipt:    receipt.BuildSaleReceipt(m.storeName, *sale, amountPaid, change),
		AmountPaid: amountPaid,
		Change:     change,
	}, nil
}
