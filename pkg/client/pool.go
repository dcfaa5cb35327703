package client

import (
	"context"
	"fmt"

	pool "github.com/jolestar/go-commons-pool/v2"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Addr is the server address every pooled client dials.
	Addr string

	// MaxTotal caps the number of open clients. Borrow blocks when all are
	// in use. Defaults to 8.
	MaxTotal int

	// MaxIdle caps the number of clients kept open while unused. Defaults
	// to MaxTotal.
	MaxIdle int
}

// Pool lends Clients to concurrent callers.
type Pool struct {
	pool *pool.ObjectPool
}

// NewPool creates a pool. Clients are dialled lazily on Borrow.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = 8
	}
	if cfg.MaxIdle <= 0 || cfg.MaxIdle > cfg.MaxTotal {
		cfg.MaxIdle = cfg.MaxTotal
	}

	pc := pool.NewDefaultPoolConfig()
	pc.MaxTotal = cfg.MaxTotal
	pc.MaxIdle = cfg.MaxIdle
	pc.TestOnBorrow = true
	pc.TestOnReturn = true

	return &Pool{pool: pool.NewObjectPool(ctx, &clientFactory{addr: cfg.Addr}, pc)}
}

// Borrow returns an idle client or dials a new one, blocking while MaxTotal
// clients are in use.
func (p *Pool) Borrow(ctx context.Context) (*Client, error) {
	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		return nil, err
	}
	return obj.(*Client), nil
}

// Return gives c back to the pool. A closed client is discarded.
func (p *Pool) Return(ctx context.Context, c *Client) error {
	return p.pool.ReturnObject(ctx, c)
}

// Invalidate closes c and removes it from the pool. Use it instead of
// Return after an error that leaves c unusable.
func (p *Pool) Invalidate(ctx context.Context, c *Client) error {
	return p.pool.InvalidateObject(ctx, c)
}

// Active returns the number of borrowed clients.
func (p *Pool) Active() int {
	return p.pool.GetNumActive()
}

// Idle returns the number of clients waiting in the pool.
func (p *Pool) Idle() int {
	return p.pool.GetNumIdle()
}

// Close closes every idle client. Borrowed clients are closed when they
// are returned.
func (p *Pool) Close(ctx context.Context) {
	p.pool.Close(ctx)
}

type clientFactory struct {
	addr string
}

func (f *clientFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := Dial(ctx, f.addr)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

func (f *clientFactory) DestroyObject(_ context.Context, obj *pool.PooledObject) error {
	c, ok := obj.Object.(*Client)
	if !ok {
		return fmt.Errorf("client: pool holds %T", obj.Object)
	}
	return c.Close()
}

func (f *clientFactory) ValidateObject(_ context.Context, obj *pool.PooledObject) bool {
	c, ok := obj.Object.(*Client)
	return ok && !c.Closed() && !c.isSubscribed()
}

func (f *clientFactory) ActivateObject(context.Context, *pool.PooledObject) error {
	return nil
}

func (f *clientFactory) PassivateObject(context.Context, *pool.PooledObject) error {
	return nil
}
