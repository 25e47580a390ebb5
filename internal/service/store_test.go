package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinicpos/internal/model"
	"clinicpos/internal/money"
	"clinicpos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// memStore is an in-memory implementation of every repository interface plus
// the Transactor. Units of work are serialized by txMu and rolled back by
// restoring a snapshot taken when they began.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	sessions      map[uuid.UUID]model.CashSession
	transactions  map[uuid.UUID]model.Transaction
	txSeq         map[uuid.UUID]int
	seq           int
	requests      map[uuid.UUID]model.ServiceRequest
	professionals map[uuid.UUID]model.Professional
	liquidations  map[uuid.UUID]model.CommissionLiquidation
	details       []model.CommissionLiquidationDetail
	idempotency   map[string]model.IdempotencyKey

	// failOn makes the named write fail, to exercise rollback.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:      map[uuid.UUID]model.CashSession{},
		transactions:  map[uuid.UUID]model.Transaction{},
		txSeq:         map[uuid.UUID]int{},
		requests:      map[uuid.UUID]model.ServiceRequest{},
		professionals: map[uuid.UUID]model.Professional{},
		liquidations:  map[uuid.UUID]model.CommissionLiquidation{},
		idempotency:   map[string]model.IdempotencyKey{},
		failOn:        map[string]error{},
	}
}

type memSnapshot struct {
	sessions     map[uuid.UUID]model.CashSession
	transactions map[uuid.UUID]model.Transaction
	txSeq        map[uuid.UUID]int
	seq          int
	requests     map[uuid.UUID]model.ServiceRequest
	liquidations map[uuid.UUID]model.CommissionLiquidation
	details      []model.CommissionLiquidationDetail
	idempotency  map[string]model.IdempotencyKey
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *memStore) snapshot() memSnapshot {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return memSnapshot{
		sessions:     copyMap(m.sessions),
		transactions: copyMap(m.transactions),
		txSeq:        copyMap(m.txSeq),
		seq:          m.seq,
		requests:     copyMap(m.requests),
		liquidations: copyMap(m.liquidations),
		details:      append([]model.CommissionLiquidationDetail(nil), m.details...),
		idempotency:  copyMap(m.idempotency),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.sessions, m.transactions, m.txSeq, m.seq = s.sessions, s.transactions, s.txSeq, s.seq
	m.requests, m.liquidations, m.details, m.idempotency = s.requests, s.liquidations, s.details, s.idempotency
}

func (m *memStore) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(nil); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memStore) deps() Deps {
	return Deps{
		Tx:            m,
		Sessions:      memSessions{m},
		Transactions:  memTransactions{m},
		Requests:      memRequests{m},
		Professionals: memProfessionals{m},
		Liquidations:  memLiquidations{m},
		Idempotency:   memIdempotency{m},
	}
}

// ── sessions ──────────────────────────────────────────────────────────────────

type memSessions struct{ m *memStore }

func (r memSessions) CreateTx(_ context.Context, _ *gorm.DB, s *model.CashSession) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("sessions.create"); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.m.sessions[s.ID] = *s
	return nil
}

func (r memSessions) FindByID(_ context.Context, id uuid.UUID) (*model.CashSession, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return &model.CashSession{}, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r memSessions) FindByIDForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.CashSession, error) {
	return r.FindByID(ctx, id)
}

func (r memSessions) FindOpenByUser(_ context.Context, userID uuid.UUID) (*model.CashSession, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	for _, s := range r.m.sessions {
		if s.UserID == userID && s.Status == model.SessionOpen {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (r memSessions) FindOpenByUserForUpdate(ctx context.Context, _ *gorm.DB, userID uuid.UUID) (*model.CashSession, error) {
	return r.FindOpenByUser(ctx, userID)
}

func (r memSessions) UpdateTx(_ context.Context, _ *gorm.DB, s *model.CashSession) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("sessions.update"); err != nil {
		return err
	}
	r.m.sessions[s.ID] = *s
	return nil
}

func (r memSessions) List(_ context.Context, page, limit int) ([]model.CashSession, int64, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var all []model.CashSession
	for _, s := range r.m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OpenedAt.After(all[j].OpenedAt) })
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

// ── transactions ──────────────────────────────────────────────────────────────

type memTransactions struct{ m *memStore }

func (r memTransactions) CreateTx(_ context.Context, _ *gorm.DB, t *model.Transaction) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("transactions.create"); err != nil {
		return err
	}
	r.m.seq++
	r.m.transactions[t.ID] = *t
	r.m.txSeq[t.ID] = r.m.seq
	return nil
}

func (r memTransactions) FindByID(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	t, ok := r.m.transactions[id]
	if !ok {
		return &model.Transaction{}, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r memTransactions) FindByIDForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	return r.FindByID(ctx, id)
}

func (r memTransactions) FindLatestActiveIncome(_ context.Context, _ *gorm.DB, requestID uuid.UUID) (*model.Transaction, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var latest *model.Transaction
	for _, t := range r.m.transactions {
		if t.ServiceRequestID == nil || *t.ServiceRequestID != requestID ||
			t.Direction != model.DirectionIncome || !t.IsActive() {
			continue
		}
		if latest == nil || r.m.txSeq[t.ID] > r.m.txSeq[latest.ID] {
			t := t
			latest = &t
		}
	}
	return latest, nil
}

func (r memTransactions) UpdateStatusTx(_ context.Context, _ *gorm.DB, t *model.Transaction) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("transactions.update"); err != nil {
		return err
	}
	stored := r.m.transactions[t.ID]
	stored.Status = t.Status
	stored.CancelledBy = t.CancelledBy
	stored.CancellationReason = t.CancellationReason
	stored.CancelledAt = t.CancelledAt
	r.m.transactions[t.ID] = stored
	return nil
}

func (r memTransactions) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Transaction, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var out []model.Transaction
	for _, t := range r.m.transactions {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.m.txSeq[out[i].ID] < r.m.txSeq[out[j].ID] })
	return out, nil
}

func (r memTransactions) SumActive(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) (repository.SessionSums, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var sums repository.SessionSums
	for _, t := range r.m.transactions {
		if t.SessionID != sessionID || !t.IsActive() {
			continue
		}
		if t.Direction == model.DirectionIncome {
			sums.Income = sums.Income.Add(t.Amount)
		} else if t.Category != model.CategoryServiceRefund {
			sums.Expense = sums.Expense.Add(t.Amount)
		}
	}
	return sums, nil
}

func (r memTransactions) TotalsByCategory(_ context.Context, sessionID uuid.UUID) ([]repository.CategoryTotal, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	byKey := map[string]*repository.CategoryTotal{}
	for _, t := range r.m.transactions {
		if t.SessionID != sessionID || !t.IsActive() {
			continue
		}
		key := t.Direction + "/" + t.Category
		row, ok := byKey[key]
		if !ok {
			row = &repository.CategoryTotal{Direction: t.Direction, Category: t.Category}
			byKey[key] = row
		}
		row.Count++
		row.Total = row.Total.Add(t.Amount)
	}
	var out []repository.CategoryTotal
	for _, row := range byKey {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Direction != out[j].Direction {
			return out[i].Direction < out[j].Direction
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// ── service requests ──────────────────────────────────────────────────────────

type memRequests struct{ m *memStore }

func (r memRequests) FindByID(_ context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	sr, ok := r.m.requests[id]
	if !ok {
		return &model.ServiceRequest{}, gorm.ErrRecordNotFound
	}
	return &sr, nil
}

func (r memRequests) FindByIDForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.ServiceRequest, error) {
	return r.FindByID(ctx, id)
}

func (r memRequests) FindByIDsForUpdate(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]model.ServiceRequest, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var out []model.ServiceRequest
	for _, id := range ids {
		if sr, ok := r.m.requests[id]; ok {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r memRequests) UpdatePaymentTx(_ context.Context, _ *gorm.DB, sr *model.ServiceRequest) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("requests.update"); err != nil {
		return err
	}
	r.m.requests[sr.ID] = *sr
	return nil
}

func (r memRequests) ListPending(_ context.Context, page, limit int) ([]model.ServiceRequest, int64, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var out []model.ServiceRequest
	for _, sr := range r.m.requests {
		if sr.AcceptsPayments() {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceDate.Before(out[j].ServiceDate) })
	return out, int64(len(out)), nil
}

func (r memRequests) ListPaidByProfessional(_ context.Context, professionalID uuid.UUID, start, end time.Time) ([]model.ServiceRequest, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	taken := r.m.liquidatedLocked()
	var out []model.ServiceRequest
	for _, sr := range r.m.requests {
		if sr.ProfessionalID == nil || *sr.ProfessionalID != professionalID || sr.PaymentStatus != model.PaymentPaid {
			continue
		}
		if sr.ServiceDate.Before(start) || !sr.ServiceDate.Before(end.AddDate(0, 0, 1)) || taken[sr.ID] {
			continue
		}
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceDate.Before(out[j].ServiceDate) })
	return out, nil
}

// ── professionals ─────────────────────────────────────────────────────────────

type memProfessionals struct{ m *memStore }

func (r memProfessionals) FindByID(_ context.Context, id uuid.UUID) (*model.Professional, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	p, ok := r.m.professionals[id]
	if !ok {
		return &model.Professional{}, gorm.ErrRecordNotFound
	}
	return &p, nil
}

// ── liquidations ──────────────────────────────────────────────────────────────

type memLiquidations struct{ m *memStore }

func (m *memStore) liquidatedLocked() map[uuid.UUID]bool {
	taken := map[uuid.UUID]bool{}
	for _, d := range m.details {
		if l, ok := m.liquidations[d.LiquidationID]; ok && l.Status != model.LiquidationCancelled {
			taken[d.ServiceRequestID] = true
		}
	}
	return taken
}

func (m *memStore) withDetailsLocked(l model.CommissionLiquidation) *model.CommissionLiquidation {
	l.Details = nil
	for _, d := range m.details {
		if d.LiquidationID == l.ID {
			l.Details = append(l.Details, d)
		}
	}
	return &l
}

func (r memLiquidations) CreateTx(_ context.Context, _ *gorm.DB, l *model.CommissionLiquidation) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("liquidations.create"); err != nil {
		return err
	}
	header := *l
	header.Details = nil
	r.m.liquidations[l.ID] = header
	r.m.details = append(r.m.details, l.Details...)
	return nil
}

func (r memLiquidations) FindByID(_ context.Context, id uuid.UUID) (*model.CommissionLiquidation, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	l, ok := r.m.liquidations[id]
	if !ok {
		return &model.CommissionLiquidation{}, gorm.ErrRecordNotFound
	}
	return r.m.withDetailsLocked(l), nil
}

func (r memLiquidations) FindByIDForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.CommissionLiquidation, error) {
	return r.FindByID(ctx, id)
}

func (r memLiquidations) UpdateTx(_ context.Context, _ *gorm.DB, l *model.CommissionLiquidation) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if err := r.m.fail("liquidations.update"); err != nil {
		return err
	}
	header := *l
	header.Details = nil
	r.m.liquidations[l.ID] = header
	return nil
}

func (r memLiquidations) FindLiquidatedServiceIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	taken := r.m.liquidatedLocked()
	var out []uuid.UUID
	for _, id := range ids {
		if taken[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r memLiquidations) List(_ context.Context, f repository.LiquidationFilter) ([]model.CommissionLiquidation, int64, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	var out []model.CommissionLiquidation
	for _, l := range r.m.liquidations {
		if f.ProfessionalID != nil && l.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.From != nil && l.PeriodEnd.Before(*f.From) {
			continue
		}
		if f.To != nil && l.PeriodStart.After(*f.To) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, int64(len(out)), nil
}

// ── idempotency ───────────────────────────────────────────────────────────────

type memIdempotency struct{ m *memStore }

func (r memIdempotency) FindTx(_ context.Context, _ *gorm.DB, scope, key string) (*model.IdempotencyKey, error) {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	k, ok := r.m.idempotency[scope+"/"+key]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (r memIdempotency) CreateTx(_ context.Context, _ *gorm.DB, k *model.IdempotencyKey) error {
	r.m.dataMu.Lock()
	defer r.m.dataMu.Unlock()
	if _, ok := r.m.idempotency[k.Scope+"/"+k.Key]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.m.idempotency[k.Scope+"/"+k.Key] = *k
	return nil
}

// ── fixtures ──────────────────────────────────────────────────────────────────

func (m *memStore) addRequest(total money.Money, professionalID *uuid.UUID, reception string, date time.Time) *model.ServiceRequest {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	sr := model.ServiceRequest{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ServiceID:      uuid.New(),
		ProfessionalID: professionalID,
		ReceptionType:  reception,
		ServiceDate:    date,
		TotalAmount:    total,
		PaymentStatus:  model.PaymentPending,
	}
	m.requests[sr.ID] = sr
	return &sr
}

func (m *memStore) addProfessional(rate string, email *string) *model.Professional {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	p := model.Professional{
		ID:                   uuid.New(),
		Name:                 "Dr. Test",
		Email:                email,
		CommissionPercentage: decimal.RequireFromString(rate),
		Active:               true,
	}
	m.professionals[p.ID] = p
	return &p
}

func (m *memStore) request(id uuid.UUID) model.ServiceRequest {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.requests[id]
}

func (m *memStore) session(id uuid.UUID) model.CashSession {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.sessions[id]
}

func (m *memStore) transaction(id uuid.UUID) model.Transaction {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.transactions[id]
}

func (m *memStore) transactionCount() int {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return len(m.transactions)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// recordingSink collects audit entries.
type recordingSink struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (s *recordingSink) Record(_ context.Context, e model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) events(entityType string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.EntityType == entityType {
			out = append(out, e.Event)
		}
	}
	return out
}
