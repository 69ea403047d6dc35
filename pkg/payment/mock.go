package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGateway is an in-memory Gateway for local development and tests.
// Orders get sequential ids; recurring subscriptions are registered with SetSubscription.
type MockGateway struct {
	mu            sync.Mutex
	seq           int
	orders        []OrderRequest
	subscriptions map[string]*RemoteSubscription
	err           error
	latency       time.Duration
}

func NewMockGateway() *MockGateway {
	return &MockGateway{subscriptions: make(map[string]*RemoteSubscription)}
}

// KeyID returns a placeholder public key.
func (g *MockGateway) KeyID() string {
	return "rzp_test_mock"
}

// wait simulates network latency and gives up when ctx ends first.
func (g *MockGateway) wait(ctx context.Context) error {
	g.mu.Lock()
	d := g.latency
	g.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.orders = append(g.orders, req)
	return &Order{
		ID:       fmt.Sprintf("order_mock%06d", g.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *MockGateway) FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("mock gateway: subscription %s not found", id)
	}
	cp := *sub
	return &cp, nil
}

// SetSubscription registers a provider-side subscription status.
func (g *MockGateway) SetSubscription(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[id] = &RemoteSubscription{ID: id, Status: status}
}

// SetError makes every following call fail with err. Pass nil to clear.
func (g *MockGateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// SetLatency delays every following call by d.
func (g *MockGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// Orders returns the order requests received so far.
func (g *MockGateway) Orders() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OrderRequest, len(g.orders))
	copy(out, g.orders)
	return out
}
