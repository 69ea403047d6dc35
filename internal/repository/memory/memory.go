// Package memory is a process-local storage driver. It backs development runs
// without a database and the service and handler tests. It enforces the same
// uniqueness rules as the database drivers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gigmarket/backend/internal/domain"
)

// UserRepository stores users in memory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("failed to create user: email %s already exists", u.Email)
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) Exists(ctx context.Context, email string) (bool, error) {
	u, _ := r.FindByEmail(ctx, email)
	return u != nil, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		cp := u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

// SubscriptionRepository stores subscriptions in memory.
type SubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{subs: make(map[string]*domain.Subscription)}
}

func cloneSubscription(s *domain.Subscription) *domain.Subscription {
	cp := *s
	cp.PaymentDetails.History = append([]domain.PaymentHistoryEntry(nil), s.PaymentDetails.History...)
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		cp.CancelledAt = &t
	}
	if s.PaymentDetails.LastPaymentDate != nil {
		t := *s.PaymentDetails.LastPaymentDate
		cp.PaymentDetails.LastPaymentDate = &t
	}
	if s.PaymentDetails.NextPaymentDate != nil {
		t := *s.PaymentDetails.NextPaymentDate
		cp.PaymentDetails.NextPaymentDate = &t
	}
	return &cp
}

// activeConflict must be called with the lock held.
func (r *SubscriptionRepository) activeConflict(sub *domain.Subscription) bool {
	if sub.Status != domain.StatusActive {
		return false
	}
	for id, s := range r.subs {
		if id != sub.ID && s.UserID == sub.UserID && s.Status == domain.StatusActive {
			return true
		}
	}
	return false
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[sub.ID]; exists {
		return fmt.Errorf("failed to create subscription: id %s already exists", sub.ID)
	}
	if r.activeConflict(sub) {
		return domain.ErrDuplicateActive
	}
	r.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	return cloneSubscription(s), nil
}

// findLatest must be called with the lock held.
func (r *SubscriptionRepository) findLatest(match func(*domain.Subscription) bool) *domain.Subscription {
	var found *domain.Subscription
	for _, s := range r.subs {
		if !match(s) {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil
	}
	return cloneSubscription(found)
}

func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLatest(func(s *domain.Subscription) bool {
		return s.UserID == userID && s.Status == domain.StatusActive
	}), nil
}

func (r *SubscriptionRepository) FindByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*domain.Subscription, error) {
	if gatewayID == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLatest(func(s *domain.Subscription) bool {
		return s.PaymentDetails.SubscriptionID == gatewayID
	}), nil
}

func (r *SubscriptionRepository) FindByGatewayOrderID(ctx context.Context, orderID string) (*domain.Subscription, error) {
	if orderID == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLatest(func(s *domain.Subscription) bool {
		return s.PaymentDetails.OrderID == orderID
	}), nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, cloneSubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SubscriptionRepository) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Subscription
	for _, s := range r.subs {
		if s.Status == domain.StatusActive && !s.IsLifetime() && s.EndDate.Before(now) {
			out = append(out, cloneSubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return fmt.Errorf("failed to update subscription: %s not found", sub.ID)
	}
	if r.activeConflict(sub) {
		return domain.ErrDuplicateActive
	}
	r.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

// Activate writes sub and cancels the user's other active subscriptions
// under one lock, so readers never see one without the other.
func (r *SubscriptionRepository) Activate(ctx context.Context, sub *domain.Subscription, reason string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return 0, fmt.Errorf("failed to activate subscription: %s not found", sub.ID)
	}
	var superseded []*domain.Subscription
	for id, s := range r.subs {
		if id == sub.ID || s.UserID != sub.UserID || s.Status != domain.StatusActive {
			continue
		}
		cp := cloneSubscription(s)
		if err := cp.Cancel(reason, at); err != nil {
			return 0, err
		}
		superseded = append(superseded, cp)
	}
	for _, s := range superseded {
		r.subs[s.ID] = s
	}
	r.subs[sub.ID] = cloneSubscription(sub)
	return int64(len(superseded)), nil
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context, status domain.SubscriptionStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, s := range r.subs {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

// PaymentRepository stores ledger rows in memory.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments []domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, *p)
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

// newestFirst must be called with the lock held.
func (r *PaymentRepository) newestFirst(match func(domain.Payment) bool, limit int) []*domain.Payment {
	var out []*domain.Payment
	for i := len(r.payments) - 1; i >= 0; i-- {
		if match(r.payments[i]) {
			cp := r.payments[i]
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newestFirst(func(p domain.Payment) bool { return p.PayerID == userID }, limit), nil
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newestFirst(func(domain.Payment) bool { return true }, limit), nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].ID == id {
			r.payments[i].Status = status
			r.payments[i].UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("failed to update payment: %s not found", id)
}

func (r *PaymentRepository) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, p := range r.payments {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

// WebhookEventRepository remembers processed webhook ids in memory.
type WebhookEventRepository struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{seen: make(map[string]time.Time)}
}

func (r *WebhookEventRepository) Record(ctx context.Context, id, event string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false, nil
	}
	r.seen[id] = at
	return true, nil
}

// Stores is the full set of in-memory stores.
type Stores struct {
	Users         *UserRepository
	Subscriptions *SubscriptionRepository
	Payments      *PaymentRepository
	WebhookEvents *WebhookEventRepository
}

// NewStores returns empty stores.
func NewStores() *Stores {
	return &Stores{
		Users:         NewUserRepository(),
		Subscriptions: NewSubscriptionRepository(),
		Payments:      NewPaymentRepository(),
		WebhookEvents: NewWebhookEventRepository(),
	}
}
