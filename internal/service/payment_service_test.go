package service

import (
	"context"
	"sync"
	"testing"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPayment_PartialThenFull(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, h.cashier, 0)
	prof := uuid.New()
	req := h.store.addRequest(money.FromInt(80000), &prof, model.ReceptionInpatientDischarge, testNow)

	first := h.pay(t, h.cashier, req.ID, 30000)
	assert.Equal(t, model.PaymentPartial, first.ServiceRequest.PaymentStatus)
	assert.Equal(t, model.CategoryDischargePayment, first.Transaction.Category)
	require.NotNil(t, first.Transaction.ProfessionalID)
	assert.Equal(t, prof, *first.Transaction.ProfessionalID)

	second := h.pay(t, h.cashier, req.ID, 50000)
	stored := h.store.request(req.ID)
	assert.Equal(t, model.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, money.FromInt(80000), stored.PaidAmount)
	require.NotNil(t, stored.PaymentTransactionID)
	assert.Equal(t, second.Transaction.ID, *stored.PaymentTransactionID)
	require.NotNil(t, stored.PaymentDate)
	assert.Equal(t, money.FromInt(80000), h.store.session(s.ID).TotalIncome)
}

func TestPayment_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.store.addRequest(money.FromInt(100), nil, model.ReceptionScheduled, testNow)

	_, err := h.payments.ProcessServicePayment(ctx, h.cashier, PaymentInput{ServiceRequestID: req.ID, Amount: money.Zero})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = h.payments.ProcessServicePayment(ctx, h.cashier, PaymentInput{ServiceRequestID: req.ID, Amount: money.FromInt(101)})
	assert.ErrorIs(t, err, apperrors.ErrAmountExceedsRemaining)

	_, err = h.payments.ProcessServicePayment(ctx, h.cashier, PaymentInput{ServiceRequestID: req.ID, Amount: money.FromInt(100)})
	assert.ErrorIs(t, err, apperrors.ErrNoActiveSession)

	_, err = h.payments.ProcessServicePayment(ctx, h.cashier, PaymentInput{ServiceRequestID: uuid.New(), Amount: money.FromInt(1)})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	h.open(t, h.cashier, 0)
	h.pay(t, h.cashier, req.ID, 100)
	_, err = h.payments.ProcessServicePayment(ctx, h.cashier, PaymentInput{ServiceRequestID: req.ID, Amount: money.FromInt(1)})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
}

func TestPayment_NoDoubleSpend(t *testing.T) {
	h := newHarness(t)
	h.open(t, h.cashier, 0)
	req := h.store.addRequest(money.FromInt(1000), nil, model.ReceptionWalkIn, testNow)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, amount := range []int64{700, 600} {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, errs[i] = h.payments.ProcessServicePayment(context.Background(), h.cashier, PaymentInput{
				ServiceRequestID: req.ID,
				Amount:           money.FromInt(amount),
				PaymentMethod:    "cash",
			})
		}(i, amount)
	}
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperrors.KindOf(err) == apperrors.KindAmountExceedsRemaining:
			exceeded++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)
	stored := h.store.request(req.ID)
	assert.False(t, stored.PaidAmount.GreaterThan(stored.TotalAmount))
	assert.Equal(t, 1, h.store.transactionCount())
}

func TestPayment_RollsBackEverything(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, h.cashier, 0)
	req := h.store.addRequest(money.FromInt(100), nil, model.ReceptionWalkIn, testNow)
	h.store.failOn["sessions.update"] = assert.AnError

	_, err := h.payments.ProcessServicePayment(context.Background(), h.cashier, PaymentInput{
		ServiceRequestID: req.ID, Amount: money.FromInt(100), PaymentMethod: "cash",
	})
	require.Error(t, err)

	stored := h.store.request(req.ID)
	assert.Equal(t, model.PaymentPending, stored.PaymentStatus)
	assert.True(t, stored.PaidAmount.IsZero())
	assert.Zero(t, h.store.transactionCount())
	assert.True(t, h.store.session(s.ID).TotalIncome.IsZero())
	assert.Empty(t, h.sink.events(model.EntityServiceRequest), "nothing audited for a failed unit")
}

func TestPayment_IdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.open(t, h.cashier, 0)
	req := h.store.addRequest(money.FromInt(500), nil, model.ReceptionWalkIn, testNow)
	in := PaymentInput{ServiceRequestID: req.ID, Amount: money.FromInt(200), PaymentMethod: "cash", IdempotencyKey: "abc-1"}

	first, err := h.payments.ProcessServicePayment(ctx, h.cashier, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.payments.ProcessServicePayment(ctx, h.cashier, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	assert.Equal(t, 1, h.store.transactionCount())
	assert.Equal(t, money.FromInt(200), h.store.request(req.ID).PaidAmount)
	assert.Equal(t, money.FromInt(200), h.store.session(s.ID).TotalIncome)

	other := h.store.addRequest(money.FromInt(500), nil, model.ReceptionWalkIn, testNow)
	in.ServiceRequestID = other.ID
	_, err = h.payments.ProcessServicePayment(ctx, h.cashier, in)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPayment_IdempotencyKeyBelongsToItsUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.open(t, h.cashier, 0)
	h.open(t, h.manager, 0)
	req := h.store.addRequest(money.FromInt(500), nil, model.ReceptionWalkIn, testNow)
	in := PaymentInput{ServiceRequestID: req.ID, Amount: money.FromInt(200), PaymentMethod: "cash", IdempotencyKey: "shared-1"}

	first, err := h.payments.ProcessServicePayment(ctx, h.cashier, in)
	require.NoError(t, err)

	_, err = h.payments.ProcessServicePayment(ctx, h.manager, in)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 1, h.store.transactionCount())

	again, err := h.payments.ProcessServicePayment(ctx, h.cashier, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
}

func TestPayment_CategoryByReceptionType(t *testing.T) {
	h := newHarness(t)
	h.open(t, h.cashier, 0)
	req := h.store.addRequest(money.FromInt(10), nil, model.ReceptionEmergency, testNow)
	res := h.pay(t, h.cashier, req.ID, 10)
	assert.Equal(t, model.CategoryEmergencyDischargePayment, res.Transaction.Category)
	assert.Equal(t, model.DirectionIncome, res.Transaction.Direction)
}

type mockAuditSink struct{ mock.Mock }

func (m *mockAuditSink) Record(ctx context.Context, e model.AuditLog) error {
	return m.Called(ctx, e).Error(0)
}

func TestPayment_AuditFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t)
	sink := &mockAuditSink{}
	sink.On("Record", mock.Anything, mock.AnythingOfType("model.AuditLog")).Return(assert.AnError)
	d := h.deps
	d.Audit = sink
	payments := NewPaymentService(d)

	h.open(t, h.cashier, 0)
	req := h.store.addRequest(money.FromInt(100), nil, model.ReceptionWalkIn, testNow)
	res, err := payments.ProcessServicePayment(context.Background(), h.cashier, PaymentInput{
		ServiceRequestID: req.ID, Amount: money.FromInt(100), PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, res.ServiceRequest.PaymentStatus)
	assert.Equal(t, model.PaymentPaid, h.store.request(req.ID).PaymentStatus)
	sink.AssertNumberOfCalls(t, "Record", 2)
}

func TestPendingServices(t *testing.T) {
	h := newHarness(t)
	h.open(t, h.cashier, 0)
	a := h.store.addRequest(money.FromInt(100), nil, model.ReceptionWalkIn, testNow)
	b := h.store.addRequest(money.FromInt(100), nil, model.ReceptionWalkIn, testNow.AddDate(0, 0, 1))
	h.pay(t, h.cashier, a.ID, 40)
	c := h.store.addRequest(money.FromInt(100), nil, model.ReceptionWalkIn, testNow)
	h.pay(t, h.cashier, c.ID, 100)

	rows, total, err := h.payments.PendingServices(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	ids := []uuid.UUID{rows[0].ID, rows[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)
}
