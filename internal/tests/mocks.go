package tests

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"delivery/internal/domain"
	"delivery/internal/events"
	"delivery/internal/payment"
	"delivery/internal/redis"
	"delivery/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository whose
// ApplyPatch is a compare-and-set on status, like the postgres one.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	CreateCallCount     int32
	ApplyPatchCallCount int32
	ConflictCount       int32

	// Error injection
	CreateError     error
	GetByIDError    error
	ApplyPatchError error

	// AfterGet runs after every successful GetByID, outside the lock. Tests use
	// it to line concurrent readers up before anyone writes.
	AfterGet func(id string)
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *order
	m.orders[order.ID] = &copy
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return ErrMockDBConstraint
	}
	copy := *order
	m.orders[order.ID] = &copy
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.GetByIDError != nil {
		return nil, m.GetByIDError
	}
	m.mu.RLock()
	order, ok := m.orders[id]
	var copy domain.Order
	if ok {
		copy = *order
	}
	m.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.AfterGet != nil {
		m.AfterGet(id)
	}
	return &copy, nil
}

func (m *MockOrderRepository) ApplyPatch(ctx context.Context, id string, patch domain.OrderPatch, expectedStatus domain.OrderStatus) (*domain.Order, error) {
	atomic.AddInt32(&m.ApplyPatchCallCount, 1)
	if m.ApplyPatchError != nil {
		return nil, m.ApplyPatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if order.Status != expectedStatus {
		atomic.AddInt32(&m.ConflictCount, 1)
		return nil, repository.ErrConflict
	}
	updated := patch.Apply(*order)
	updated.UpdatedAt = time.Now().UTC()
	m.orders[id] = &updated
	copy := updated
	return &copy, nil
}

// GetOrder returns the stored order (for test assertions).
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil
	}
	copy := *order
	return &copy
}

// ──────────────────────────────────────────────
// MOCK RIDER REPOSITORY
// ──────────────────────────────────────────────

// MockRiderRepository is a mock implementation of RiderRepository.
type MockRiderRepository struct {
	mu     sync.RWMutex
	riders map[string]*domain.Rider

	// Counters for verification
	GetByIDCallCount      int32
	UpdateStatusCallCount int32

	// Error injection
	UpdateStatusError error
}

// NewMockRiderRepository creates a new mock rider repository.
func NewMockRiderRepository() *MockRiderRepository {
	return &MockRiderRepository{
		riders: make(map[string]*domain.Rider),
	}
}

// AddRider adds a rider to the mock repository.
func (m *MockRiderRepository) AddRider(rider *domain.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rider
	m.riders[rider.ID] = &copy
}

func (m *MockRiderRepository) Create(ctx context.Context, rider *domain.Rider) error {
	m.AddRider(rider)
	return nil
}

func (m *MockRiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rider, ok := m.riders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *rider
	return &copy, nil
}

func (m *MockRiderRepository) GetAll(ctx context.Context) ([]*domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Rider, 0, len(m.riders))
	for _, r := range m.riders {
		copy := *r
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockRiderRepository) UpdateStatus(ctx context.Context, id string, status domain.RiderStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[id]
	if !ok {
		return repository.ErrNotFound
	}
	rider.Status = status
	return nil
}

// GetRider returns the stored rider (for test assertions).
func (m *MockRiderRepository) GetRider(id string) *domain.Rider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rider, ok := m.riders[id]
	if !ok {
		return nil
	}
	copy := *rider
	return &copy
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu      sync.RWMutex
	records []domain.TransitionRecord

	// Counters for verification
	RecordCallCount int32

	// Error injection
	RecordError error
}

// NewMockAuditRepository creates a new mock audit repository.
func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Record(ctx context.Context, rec domain.TransitionRecord) error {
	atomic.AddInt32(&m.RecordCallCount, 1)
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MockAuditRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.TransitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.TransitionRecord
	for _, r := range m.records {
		if r.OrderID == orderID {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment

	// Counters for verification
	CreateCallCount       int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError error

	// BeforeCreate runs at the start of Create, outside the lock.
	BeforeCreate func()
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.BeforeCreate != nil {
		m.BeforeCreate()
	}
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.IdempotencyKey == p.IdempotencyKey && existing.Status == domain.PaymentStatusProcessing {
			return fmt.Errorf("%w: payments_inflight_idx", repository.ErrDuplicate)
		}
	}
	copy := *p
	m.payments[p.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.Reference == reference {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Payment
	for _, p := range m.payments {
		if p.IdempotencyKey == key && (latest == nil || p.CreatedAt.After(latest.CreatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	return nil
}

// AddPayment stores a payment directly.
func (m *MockPaymentRepository) AddPayment(p *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *p
	m.payments[p.ID] = &copy
}

// CountPayments returns the number of stored payments.
func (m *MockPaymentRepository) CountPayments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published transition events.
type MockPublisher struct {
	mu     sync.Mutex
	events []events.OrderTransitioned

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishOrderTransitioned(ctx context.Context, ev events.OrderTransitioned) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.PublishError
}

// Events returns a copy of everything published so far.
func (m *MockPublisher) Events() []events.OrderTransitioned {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.OrderTransitioned, len(m.events))
	copy(out, m.events)
	return out
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a mock payment gateway.
type MockGateway struct {
	mu sync.Mutex

	// Control behavior
	Status         domain.PaymentStatus
	ValidSignature string
	WebhookEvent   payment.WebhookEvent
	WebhookError   error
	InitError      error

	// Counters
	InitCallCount   int32
	VerifyCallCount int32

	nextRef int32
}

// NewMockGateway creates a new mock gateway that reports completed payments.
func NewMockGateway() *MockGateway {
	return &MockGateway{Status: domain.PaymentStatusCompleted, ValidSignature: "valid"}
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req payment.InitRequest) (payment.InitResult, error) {
	atomic.AddInt32(&m.InitCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitError != nil {
		return payment.InitResult{}, m.InitError
	}
	n := atomic.AddInt32(&m.nextRef, 1)
	ref := "ref-" + req.OrderID + "-" + strconv.Itoa(int(n))
	return payment.InitResult{Reference: ref, AuthorizationURL: "https://pay.example/" + ref}, nil
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (domain.PaymentStatus, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status, nil
}

func (m *MockGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return signature == m.ValidSignature
}

func (m *MockGateway) ParseWebhookEvent(payload []byte) (payment.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WebhookEvent, m.WebhookError
}

// SetStatus configures the status VerifyTransaction reports.
func (m *MockGateway) SetStatus(status domain.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = status
}

// ──────────────────────────────────────────────
// MOCK LOCATION INDEX
// ──────────────────────────────────────────────

// MockLocationIndex is a mock implementation of LocationIndexInterface.
type MockLocationIndex struct {
	mu        sync.RWMutex
	locations map[string]redis.RiderLocation

	// Counters
	UpdateLocationCallCount int32
	RemoveLocationCallCount int32

	// Error injection
	UpdateLocationError error
}

// NewMockLocationIndex creates a new mock location index.
func NewMockLocationIndex() *MockLocationIndex {
	return &MockLocationIndex{
		locations: make(map[string]redis.RiderLocation),
	}
}

func (m *MockLocationIndex) UpdateLocation(ctx context.Context, riderID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[riderID] = redis.RiderLocation{RiderID: riderID, Lat: lat, Lng: lng}
	return nil
}

func (m *MockLocationIndex) FindNearbyRiders(ctx context.Context, lat, lng, radiusKm float64) ([]redis.RiderLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return all locations (mock doesn't do real geo filtering).
	result := make([]redis.RiderLocation, 0, len(m.locations))
	for _, loc := range m.locations {
		result = append(result, loc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RiderID < result[j].RiderID })
	return result, nil
}

func (m *MockLocationIndex) RemoveLocation(ctx context.Context, riderID string) error {
	atomic.AddInt32(&m.RemoveLocationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, riderID)
	return nil
}

// HasLocation checks if a rider location exists.
func (m *MockLocationIndex) HasLocation(riderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[riderID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK RIDER CACHE
// ──────────────────────────────────────────────

// MockRiderCache is a mock implementation of RiderCacheInterface.
type MockRiderCache struct {
	mu     sync.Mutex
	riders map[string]redis.CachedRider

	// Counters
	HitCount        int32
	MissCount       int32
	InvalidateCount int32
}

// NewMockRiderCache creates a new mock rider cache.
func NewMockRiderCache() *MockRiderCache {
	return &MockRiderCache{riders: make(map[string]redis.CachedRider)}
}

func (m *MockRiderCache) GetRider(ctx context.Context, riderID string) (*redis.CachedRider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[riderID]
	if !ok {
		atomic.AddInt32(&m.MissCount, 1)
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return &r, nil
}

func (m *MockRiderCache) SetRider(ctx context.Context, rider *redis.CachedRider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[rider.ID] = *rider
	return nil
}

func (m *MockRiderCache) InvalidateRider(ctx context.Context, riderID string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.riders, riderID)
	return nil
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
)

var (
	_ repository.OrderRepository   = (*MockOrderRepository)(nil)
	_ repository.RiderRepository   = (*MockRiderRepository)(nil)
	_ repository.AuditRepository   = (*MockAuditRepository)(nil)
	_ repository.PaymentRepository = (*MockPaymentRepository)(nil)
	_ events.Publisher             = (*MockPublisher)(nil)
	_ redis.LocationIndexInterface = (*MockLocationIndex)(nil)
	_ redis.RiderCacheInterface    = (*MockRiderCache)(nil)
)
