package client

import (
	"context"
	"sync"
	"time"
)

// DefaultDialTimeout bounds Connect.
const DefaultDialTimeout = 5 * time.Second

// executor runs submitted functions one at a time on its own goroutine.
type executor struct {
	jobs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newExecutor() *executor {
	e := &executor{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	defer close(e.done)
	for {
		select {
		case job := <-e.jobs:
			job()
		case <-e.quit:
			return
		}
	}
}

// run executes fn on the executor goroutine and waits for it.
func (e *executor) run(fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	job := func() { errc <- fn(context.Background()) }

	select {
	case e.jobs <- job:
		return <-errc
	case <-e.done:
		return ErrClosed
	}
}

func (e *executor) stop() {
	e.once.Do(func() { close(e.quit) })
	<-e.done
}

// Blocking is a client whose methods block until the operation completes.
// Every operation runs on a goroutine owned by the Blocking value.
type Blocking struct {
	client *Client
	exec   *executor
}

// Connect dials addr and returns a blocking client.
func Connect(addr string) (*Blocking, error) {
	exec := newExecutor()

	var c *Client
	err := exec.run(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()

		var err error
		c, err = Dial(ctx, addr)
		return err
	})
	if err != nil {
		exec.stop()
		return nil, err
	}
	return &Blocking{client: c, exec: exec}, nil
}

// Get returns the value at key, or nil if the key is absent.
func (b *Blocking) Get(key string) ([]byte, error) {
	var v []byte
	err := b.exec.run(func(ctx context.Context) error {
		var err error
		v, err = b.client.Get(ctx, key)
		return err
	})
	return v, err
}

// Set stores value at key.
func (b *Blocking) Set(key string, value []byte) error {
	return b.exec.run(func(ctx context.Context) error {
		return b.client.Set(ctx, key, value)
	})
}

// SetExpires stores value at key for the given duration.
func (b *Blocking) SetExpires(key string, value []byte, expires time.Duration) error {
	return b.exec.run(func(ctx context.Context) error {
		return b.client.SetExpires(ctx, key, value, expires)
	})
}

// Publish sends message on channel and returns the number of receivers.
func (b *Blocking) Publish(channel string, message []byte) (int64, error) {
	var n int64
	err := b.exec.run(func(ctx context.Context) error {
		var err error
		n, err = b.client.Publish(ctx, channel, message)
		return err
	})
	return n, err
}

// Subscribe subscribes to channels. The Blocking client is consumed: its
// connection and executor now belong to the returned subscriber.
func (b *Blocking) Subscribe(channels ...string) (*BlockingSubscriber, error) {
	var s *Subscriber
	err := b.exec.run(func(ctx context.Context) error {
		var err error
		s, err = b.client.Subscribe(ctx, channels...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BlockingSubscriber{sub: s, exec: b.exec}, nil
}

// Close closes the connection and stops the executor.
func (b *Blocking) Close() error {
	err := b.client.Close()
	b.exec.stop()
	return err
}

// BlockingSubscriber is the blocking form of Subscriber.
type BlockingSubscriber struct {
	sub  *Subscriber
	exec *executor
}

// NextMessage blocks until a message arrives. It returns io.EOF once the
// server closes the connection.
func (b *BlockingSubscriber) NextMessage() (*Message, error) {
	var msg *Message
	err := b.exec.run(func(ctx context.Context) error {
		var err error
		msg, err = b.sub.NextMessage(ctx)
		return err
	})
	return msg, err
}

// Subscribe adds channels to the subscription.
func (b *BlockingSubscriber) Subscribe(channels ...string) error {
	return b.exec.run(func(ctx context.Context) error {
		return b.sub.Subscribe(ctx, channels...)
	})
}

// Unsubscribe removes channels, or every channel when none are given.
func (b *BlockingSubscriber) Unsubscribe(channels ...string) error {
	return b.exec.run(func(ctx context.Context) error {
		return b.sub.Unsubscribe(ctx, channels...)
	})
}

// Channels returns the confirmed subscriptions in sorted order.
func (b *BlockingSubscriber) Channels() []string {
	return b.sub.Channels()
}

// Close closes the connection and stops the executor.
func (b *BlockingSubscriber) Close() error {
	err := b.sub.Close()
	b.exec.stop()
	return err
}
