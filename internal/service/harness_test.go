package service

import (
	"context"
	"testing"
	"time"

	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	store        *memStore
	sink         *recordingSink
	deps         Deps
	cash         CashRegisterService
	payments     PaymentService
	refunds      RefundService
	liquidations LiquidationService
	cashier      model.Actor
	manager      model.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	sink := &recordingSink{}
	d := store.deps()
	d.Audit = sink
	d.Clock = fixedClock{t: testNow}

	return &harness{
		store:        store,
		sink:         sink,
		deps:         d,
		cash:         NewCashRegisterService(d),
		payments:     NewPaymentService(d),
		refunds:      NewRefundService(d),
		liquidations: NewLiquidationService(d, LiquidationOptions{}),
		cashier: model.Actor{
			UserID:      uuid.New(),
			Permissions: []string{model.CapOperateCashRegister},
		},
		manager: model.Actor{
			UserID:      uuid.New(),
			Permissions: []string{model.CapOperateCashRegister, model.CapManageCashRegister, model.CapManageCommissions},
		},
	}
}

func (h *harness) open(t *testing.T, actor model.Actor, initial int64) *model.CashSession {
	t.Helper()
	s, err := h.cash.Open(context.Background(), actor, money.FromInt(initial))
	require.NoError(t, err)
	return s
}

func (h *harness) pay(t *testing.T, actor model.Actor, requestID uuid.UUID, amount int64) *PaymentResult {
	t.Helper()
	res, err := h.payments.ProcessServicePayment(context.Background(), actor, PaymentInput{
		ServiceRequestID: requestID,
		Amount:           money.FromInt(amount),
		PaymentMethod:    "cash",
	})
	require.NoError(t, err)
	return res
}
