package kvserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/minikv/internal/protocol/command"
	"github.com/yndnr/minikv/internal/protocol/resp"
	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/storage"
)

// errUnimplemented answers unknown commands, and pub/sub commands when no
// hub is configured. The text is the bare word so peers that match on it
// see the same reply for every unsupported request.
var errUnimplemented = resp.ErrorString("unimplemented")

// worker serves one connection. Everything except the pub/sub forwarder
// runs on the goroutine that called run.
type worker struct {
	srv     *Server
	id      string
	conn    *resp.Conn
	store   storage.Store
	limiter *rate.Limiter
	logger  *slog.Logger

	// pushMu orders subscription confirmations before pushed messages.
	pushMu  sync.Mutex
	sub     *pubsub.Subscriber
	fwdDone chan struct{}

	sets int
}

func (s *Server) serveConn(nc net.Conn) {
	id := ulid.Make().String()
	w := &worker{
		srv:    s,
		id:     id,
		conn:   resp.NewConn(nc),
		store:  s.newStore(),
		logger: s.logger.With("conn_id", id, "remote", nc.RemoteAddr().String()),
	}
	w.conn.SetIdleTimeout(s.cfg.IdleTimeout)
	w.conn.SetWriteTimeout(s.cfg.WriteTimeout)
	if s.cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateLimit)
	}

	if !s.track(w) {
		_ = w.conn.Close()
		return
	}
	defer s.untrack(w)

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	defer w.close()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("connection worker panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	w.logger.Debug("connection accepted")
	w.run()
}

func (w *worker) run() {
	for {
		f, err := w.conn.ReadFrame()
		if err != nil {
			w.readFailed(err)
			return
		}
		if !w.handle(f) {
			return
		}
	}
}

func (w *worker) readFailed(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		w.logger.Debug("connection closed by peer")
	case errors.Is(err, resp.ErrProtocol), errors.Is(err, resp.ErrLimitExceeded):
		// The stream cannot be resynchronised, so the connection ends after
		// the error reply.
		w.srv.metrics.RecordProtocolError()
		w.logger.Warn("protocol error", "error", err)
		_ = w.conn.WriteFrame(resp.ErrorString("ERR protocol error: " + err.Error()))
	case errors.As(err, &netErr) && netErr.Timeout():
		w.logger.Debug("connection idle timeout")
	case errors.Is(err, net.ErrClosed):
		w.logger.Debug("connection closed")
	default:
		w.logger.Debug("connection read error", "error", err)
	}
}

// handle executes one request and reports whether the connection should
// stay open.
func (w *worker) handle(f resp.Frame) bool {
	cmd, err := command.FromFrame(f)
	if err != nil {
		w.srv.metrics.RecordProtocolError()
		return w.reply(resp.ErrorString("ERR " + err.Error()))
	}

	if w.limiter != nil && !w.limiter.Allow() {
		w.srv.metrics.RecordRateLimited()
		return w.reply(resp.ErrorString("ERR rate limit exceeded"))
	}
	w.srv.metrics.RecordCommand(cmd.Name())

	if w.subscribed() {
		switch cmd.(type) {
		case command.Subscribe, command.Unsubscribe:
		default:
			return w.reply(resp.ErrorString(fmt.Sprintf(
				"ERR can't execute '%s': only SUBSCRIBE / UNSUBSCRIBE are allowed in this context", cmd.Name())))
		}
	}

	switch c := cmd.(type) {
	case command.Get:
		if v, ok := w.store.Get(c.Key); ok {
			return w.reply(resp.BulkString(v))
		}
		return w.reply(resp.Null{})

	case command.Set:
		if c.Expire > 0 {
			w.store.SetWithExpiry(c.Key, c.Value, c.Expire)
		} else {
			w.store.Set(c.Key, c.Value)
		}
		w.maybeSweep()
		w.logger.Debug("set", "key", c.Key, "value", c.Value, "expire", c.Expire)
		return w.reply(resp.SimpleString("OK"))

	case command.Publish:
		if w.srv.hub == nil {
			return w.reply(errUnimplemented)
		}
		n := w.srv.hub.Publish(c.Channel, c.Message)
		return w.reply(resp.Integer(n))

	case command.Subscribe:
		if w.srv.hub == nil {
			return w.reply(errUnimplemented)
		}
		return w.subscribe(c.Channels)

	case command.Unsubscribe:
		if w.srv.hub == nil {
			return w.reply(errUnimplemented)
		}
		return w.unsubscribe(c.Channels)

	default:
		w.logger.Debug("unimplemented command", "command", cmd.Name())
		return w.reply(errUnimplemented)
	}
}

func (w *worker) reply(f resp.Frame) bool {
	if err := w.conn.WriteFrame(f); err != nil {
		w.logger.Debug("write failed", "error", err)
		return false
	}
	return true
}

func (w *worker) maybeSweep() {
	every := w.srv.cfg.SweepEvery
	if every <= 0 {
		return
	}
	w.sets++
	if w.sets%every == 0 {
		if n := w.store.Sweep(); n > 0 {
			w.logger.Debug("swept expired keys", "count", n)
		}
	}
}

// ============================================================
// Subscriber mode
// ============================================================

func (w *worker) subscribed() bool {
	return w.sub != nil && w.sub.Count() > 0
}

func (w *worker) subscribe(channels []string) bool {
	if w.sub == nil {
		w.sub = w.srv.hub.NewSubscriber()
		w.fwdDone = make(chan struct{})
		go w.forward()
	}

	w.pushMu.Lock()
	defer w.pushMu.Unlock()

	for _, ch := range channels {
		n := w.sub.Subscribe(ch)
		if !w.reply(resp.Array{resp.Bulk("subscribe"), resp.Bulk(ch), resp.Integer(n)}) {
			return false
		}
	}
	return true
}

func (w *worker) unsubscribe(channels []string) bool {
	if w.sub == nil {
		if len(channels) == 0 {
			return w.reply(resp.Array{resp.Bulk("unsubscribe"), resp.Null{}, resp.Integer(0)})
		}
		for _, ch := range channels {
			if !w.reply(resp.Array{resp.Bulk("unsubscribe"), resp.Bulk(ch), resp.Integer(0)}) {
				return false
			}
		}
		return true
	}

	w.pushMu.Lock()
	defer w.pushMu.Unlock()

	if len(channels) == 0 {
		channels = w.sub.Channels()
		if len(channels) == 0 {
			return w.reply(resp.Array{resp.Bulk("unsubscribe"), resp.Null{}, resp.Integer(0)})
		}
	}
	for _, ch := range channels {
		n := w.sub.Unsubscribe(ch)
		if !w.reply(resp.Array{resp.Bulk("unsubscribe"), resp.Bulk(ch), resp.Integer(n)}) {
			return false
		}
	}
	return true
}

// forward pushes messages to the peer until the subscriber is closed.
func (w *worker) forward() {
	defer close(w.fwdDone)

	for msg := range w.sub.C() {
		w.pushMu.Lock()
		// Messages buffered before an UNSUBSCRIBE are not delivered after
		// its confirmation.
		if !w.sub.Has(msg.Channel) {
			w.pushMu.Unlock()
			continue
		}
		err := w.conn.WriteFrame(resp.Array{
			resp.Bulk("message"),
			resp.Bulk(msg.Channel),
			resp.BulkString(msg.Payload),
		})
		w.pushMu.Unlock()

		if err != nil {
			w.logger.Debug("message push failed", "channel", msg.Channel, "error", err)
			// Unblock the reader so the worker exits.
			_ = w.conn.Close()
			return
		}
	}
}

func (w *worker) close() {
	_ = w.conn.Close()
	if w.sub != nil {
		w.sub.Close()
		<-w.fwdDone
	}
	w.logger.Debug("connection closed")
}
