package service

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/internal/processor"
	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.IsTest = true
}

// memStore is an in-memory store with the same conditional-write rules as
// the postgres store, so concurrency properties can be tested without a DB.
type memStore struct {
	mu       sync.Mutex
	splits   map[string]*types.SplitPayment
	payments map[string]*types.IndividualPayment
	refunds  map[string]*types.RefundRequest
	order    []string

	// casCalls counts split status writes, including lost ones.
	casCalls int
	// beforeCAS runs once, just before the next split status write.
	beforeCAS func()
	failOn    map[string]error
}

var (
	_ store.SplitPaymentStore = (*memStore)(nil)
	_ store.RefundStore       = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		splits:   make(map[string]*types.SplitPayment),
		payments: make(map[string]*types.IndividualPayment),
		refunds:  make(map[string]*types.RefundRequest),
		failOn:   make(map[string]error),
	}
}

func clonePayment(p *types.IndividualPayment) *types.IndividualPayment {
	c := *p
	return &c
}

func cloneRefund(r *types.RefundRequest) *types.RefundRequest {
	c := *r
	c.EvidenceKeys = slices.Clone(r.EvidenceKeys)
	return &c
}

func (s *memStore) fail(op string) error {
	return s.failOn[op]
}

func (s *memStore) put(split *types.SplitPayment, payments ...*types.IndividualPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *split
	s.splits[split.ID] = &c
	for _, p := range payments {
		s.payments[p.ID] = clonePayment(p)
		s.order = append(s.order, p.ID)
	}
}

func (s *memStore) payment(id string) *types.IndividualPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePayment(s.payments[id])
}

func (s *memStore) split(id string) *types.SplitPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.splits[id]
	return &c
}

func (s *memStore) refundsFor(splitID string) []*types.RefundRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.RefundRequest
	for _, r := range s.refunds {
		if r.SplitPaymentID == splitID {
			out = append(out, cloneRefund(r))
		}
	}
	return out
}

func (s *memStore) CreateSplitPayment(_ context.Context, split *types.SplitPayment, payments []*types.IndividualPayment) error {
	if err := s.fail("CreateSplitPayment"); err != nil {
		return err
	}
	s.put(split, payments...)
	return nil
}

func (s *memStore) GetSplitPayment(_ context.Context, id string) (*types.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.splits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *sp
	return &c, nil
}

func (s *memStore) ListSplitPaymentsForUser(_ context.Context, userID string) ([]*types.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []*types.SplitPayment
	for _, sp := range s.splits {
		if sp.OrganizerID == userID {
			seen[sp.ID] = true
		}
	}
	for _, p := range s.payments {
		if p.ParticipantID == userID {
			seen[p.SplitPaymentID] = true
		}
	}
	for id := range seen {
		c := *s.splits[id]
		out = append(out, &c)
	}
	return out, nil
}

func (s *memStore) GetIndividualPayment(_ context.Context, id string) (*types.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *memStore) GetIndividualPaymentByIntent(_ context.Context, intentID string) (*types.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ProcessorIntentID != nil && *p.ProcessorIntentID == intentID {
			return clonePayment(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) ListIndividualPayments(_ context.Context, splitPaymentID string) ([]*types.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.IndividualPayment
	for _, id := range s.order {
		if p := s.payments[id]; p.SplitPaymentID == splitPaymentID {
			out = append(out, clonePayment(p))
		}
	}
	slices.SortStableFunc(out, func(a, b *types.IndividualPayment) int { return a.Position - b.Position })
	return out, nil
}

func (s *memStore) runBeforeCAS() {
	if hook := s.beforeCAS; hook != nil {
		s.beforeCAS = nil
		hook()
	}
}

func (s *memStore) CompareAndSetSplitStatus(_ context.Context, id string, expected, next types.SplitPaymentStatus) (bool, error) {
	s.runBeforeCAS()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	sp, ok := s.splits[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sp.Status != expected {
		return false, nil
	}
	sp.Status = next
	return true, nil
}

func (s *memStore) CancelAndQueueRefunds(_ context.Context, id string, expected types.SplitPaymentStatus, refunds []*types.RefundRequest) (bool, error) {
	s.runBeforeCAS()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	sp, ok := s.splits[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sp.Status != expected {
		return false, nil
	}
	sp.Status = types.SplitStatusCancelledInsufficient
	for _, r := range refunds {
		dup := false
		for _, existing := range s.refunds {
			if r.DedupeKey != nil && existing.DedupeKey != nil && *existing.DedupeKey == *r.DedupeKey {
				dup = true
			}
		}
		if !dup {
			s.refunds[r.ID] = cloneRefund(r)
		}
	}
	return true, nil
}

func (s *memStore) QueueRefund(_ context.Context, req *types.RefundRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("QueueRefund"); err != nil {
		return false, err
	}
	for _, existing := range s.refunds {
		if req.DedupeKey != nil && existing.DedupeKey != nil && *existing.DedupeKey == *req.DedupeKey {
			return false, nil
		}
	}
	s.refunds[req.ID] = cloneRefund(req)
	return true, nil
}

func (s *memStore) ClaimPaymentForRefund(_ context.Context, id, refundRequestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusPaid || (p.RefundRequestID != nil && *p.RefundRequestID != refundRequestID) {
		return false, nil
	}
	p.RefundRequestID = &refundRequestID
	return true, nil
}

func (s *memStore) ClaimPaymentForCharge(_ context.Context, id string) (*types.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusPending && p.Status != types.PaymentStatusFailed {
		return nil, store.ErrConflict
	}
	p.Status = types.PaymentStatusProcessing
	p.AttemptCount++
	p.FailureReason = nil
	return clonePayment(p), nil
}

func (s *memStore) AttachIntent(_ context.Context, id, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != types.PaymentStatusProcessing {
		return store.ErrConflict
	}
	p.ProcessorIntentID = &intentID
	return nil
}

func (s *memStore) MarkPaymentPaid(_ context.Context, id, intentID string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusProcessing && p.Status != types.PaymentStatusFailed {
		return false, nil
	}
	p.Status = types.PaymentStatusPaid
	p.PaidAt = &paidAt
	p.FailureReason = nil
	if p.ProcessorIntentID == nil && intentID != "" {
		p.ProcessorIntentID = &intentID
	}
	return true, nil
}

func (s *memStore) MarkPaymentFailed(_ context.Context, id string, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusProcessing {
		return false, nil
	}
	p.Status = types.PaymentStatusFailed
	p.FailureReason = &reason
	return true, nil
}

func (s *memStore) RecordReminder(_ context.Context, id string, at, notAfter time.Time) (*types.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusPending || (p.LastReminderAt != nil && p.LastReminderAt.After(notAfter)) {
		return nil, store.ErrConflict
	}
	p.ReminderCount++
	p.LastReminderAt = &at
	return clonePayment(p), nil
}

func (s *memStore) MarkPaymentRefunded(_ context.Context, id, refundRequestID, processorRefundID string, amount int64) (bool, error) {
	if err := s.fail("MarkPaymentRefunded"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status != types.PaymentStatusPaid || (p.RefundRequestID != nil && *p.RefundRequestID != refundRequestID) {
		return false, nil
	}
	p.Status = types.PaymentStatusRefunded
	p.RefundedAmount = amount
	p.RefundRequestID = &refundRequestID
	p.ProcessorRefundID = &processorRefundID
	return true, nil
}

func (s *memStore) CreateRefundRequest(_ context.Context, req *types.RefundRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds[req.ID] = cloneRefund(req)
	return nil
}

func (s *memStore) GetRefundRequest(_ context.Context, id string) (*types.RefundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRefund(r), nil
}

func (s *memStore) ListRefundRequests(_ context.Context, splitPaymentID string) ([]*types.RefundRequest, error) {
	return s.refundsFor(splitPaymentID), nil
}

func (s *memStore) ListRefundRequestsByStatus(_ context.Context, statuses []types.RefundStatus) ([]*types.RefundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.RefundRequest
	for _, r := range s.refunds {
		if len(statuses) == 0 || slices.Contains(statuses, r.Status) {
			out = append(out, cloneRefund(r))
		}
	}
	slices.SortFunc(out, func(a, b *types.RefundRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *memStore) TransitionRefund(_ context.Context, id string, from []types.RefundStatus, update store.RefundTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return false, nil
	}
	r.Status = update.Status
	if update.ProcessedAmount != nil {
		r.ProcessedAmount = *update.ProcessedAmount
	}
	if update.FailureReason != nil {
		r.FailureReason = update.FailureReason
	}
	if update.ReviewerID != nil {
		r.ReviewerID = update.ReviewerID
	}
	if update.ReviewNote != nil {
		r.ReviewNote = update.ReviewNote
	}
	return true, nil
}

func (s *memStore) AppendEvidence(_ context.Context, id, key string) error {
	if err := s.fail("AppendEvidence"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return store.ErrNotFound
	}
	r.EvidenceKeys = append(r.EvidenceKeys, key)
	return nil
}

// MockProcessor is a testify mock of the payment processor.
type MockProcessor struct {
	mock.Mock
}

var _ processor.Processor = (*MockProcessor)(nil)

func (m *MockProcessor) CreatePaymentIntent(ctx context.Context, req processor.IntentRequest) (*processor.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Intent), args.Error(1)
}

func (m *MockProcessor) ConfirmPayment(ctx context.Context, intentID string) (*processor.Intent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Intent), args.Error(1)
}

func (m *MockProcessor) CreateRefund(ctx context.Context, req processor.RefundRequest) (*processor.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Refund), args.Error(1)
}

func (m *MockProcessor) ParseWebhook(payload []byte, signature string) (*processor.Callback, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Callback), args.Error(1)
}

// recordingNotifier keeps every notification for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	created       int
	statusChanges []types.SplitPaymentStatus
	paymentUpdate []types.IndividualPaymentStatus
	reminders     []string
	refundUpdates []types.RefundStatus
}

var _ Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) NotifySplitCreated(context.Context, *types.SplitPayment, []*types.IndividualPayment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created++
}

func (n *recordingNotifier) NotifySplitStatusChange(_ context.Context, split *types.SplitPayment, _ types.SplitPaymentStatus, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, split.Status)
}

func (n *recordingNotifier) NotifyPaymentUpdate(_ context.Context, _ *types.SplitPayment, payment *types.IndividualPayment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentUpdate = append(n.paymentUpdate, payment.Status)
}

func (n *recordingNotifier) SendReminder(_ context.Context, _ *types.SplitPayment, payment *types.IndividualPayment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, payment.ID)
}

func (n *recordingNotifier) NotifyRefundUpdate(_ context.Context, _ *types.SplitPayment, req *types.RefundRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refundUpdates = append(n.refundUpdates, req.Status)
}

// queuedJobs collects enqueued jobs instead of running them.
type queuedJobs struct {
	mu   sync.Mutex
	jobs map[string]func(ctx context.Context) error
	drop bool
}

func newQueuedJobs() *queuedJobs {
	return &queuedJobs{jobs: make(map[string]func(ctx context.Context) error)}
}

func (q *queuedJobs) Enqueue(name string, fn func(ctx context.Context) error) bool {
	if q.drop {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[name] = fn
	return true
}

func (q *queuedJobs) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for name := range q.jobs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (q *queuedJobs) runAll(ctx context.Context) []error {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = make(map[string]func(ctx context.Context) error)
	q.mu.Unlock()
	var errs []error
	for _, fn := range jobs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// memEvidence keeps uploaded evidence in memory.
type memEvidence struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deleted []string
}

func newMemEvidence() *memEvidence {
	return &memEvidence{objects: map[string][]byte{}, types: map[string]string{}}
}

func (e *memEvidence) Save(_ context.Context, key string, body io.ReadSeeker, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[key] = data
	e.types[key] = contentType
	return nil
}

func (e *memEvidence) Delete(_ context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.objects, key)
	e.deleted = append(e.deleted, key)
	return nil
}

func (e *memEvidence) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://evidence.test/" + key, nil
}
