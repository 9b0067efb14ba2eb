// Package channel implements the typed message channel between a session
// and its editor surface.
//
// A Channel merges three sources into one FIFO dispatch loop: messages read
// from the Transport, change events from a file watcher on the document
// path, and change notifications from the host document. Handlers run one
// at a time on the dispatch goroutine, so a session never observes two of
// its messages concurrently.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/watcher"
)

// Transport moves envelopes between the two ends of a channel.
type Transport interface {
	// Send writes one message. It is safe for concurrent use.
	Send(m Message) error
	// Recv blocks until a message arrives. It returns io.EOF once the
	// peer is gone.
	Recv() (Message, error)
	// Close releases the transport and unblocks Recv.
	Close() error
}

// Func handles one decoded payload.
type Func func(ctx context.Context, p Payload) error

// FileWatcher subscribes to on-disk changes of a single file.
type FileWatcher interface {
	Subscribe(path string, fn watcher.Handler) (cancel func(), err error)
}

// DocumentChanges notifies about edits to the bound document made by the
// host. Notifications without content changes are not delivered.
type DocumentChanges interface {
	OnDidChange(fn func(text string)) (cancel func())
}

// ErrorFunc receives handler, decode and transport failures.
type ErrorFunc func(err error)

// Channel is a bidirectional typed message channel.
type Channel struct {
	transport Transport
	logger    *logging.Logger
	onError   ErrorFunc

	mu       sync.Mutex
	handlers map[Type]Func
	inits    []Func
	initDone bool
	cancels  []func()
	bound    bool

	queue chan Message

	// local holds posted payloads. It is unbounded because handlers post
	// into their own channel while the dispatch loop runs them.
	local      []Message
	localReady chan struct{}

	closed  atomic.Bool
	closeCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithErrorHandler sets the function that surfaces failures to the user.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(c *Channel) {
		c.onError = fn
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queue = make(chan Message, n)
		}
	}
}

// New creates a channel over t. Call Bind to start dispatching.
func New(t Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:  t,
		logger:     logging.Null(),
		handlers:   make(map[Type]Func),
		queue:      make(chan Message, 256),
		localReady: make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers fn for messages of type t. A later registration replaces
// the earlier one, except for init handlers which accumulate and run at
// most once per channel lifetime.
func (c *Channel) On(t Type, fn Func) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t == TypeInit {
		c.inits = append(c.inits, fn)
		return c
	}
	c.handlers[t] = fn
	return c
}

// Emit sends p to the surface. Delivery is fire-and-forget: failures are
// reported through the error handler and returned.
func (c *Channel) Emit(p Payload) error {
	if c.closed.Load() {
		return ErrClosed
	}
	m, err := Encode(p)
	if err != nil {
		c.report(err)
		return err
	}
	if err := c.transport.Send(m); err != nil {
		err = fmt.Errorf("send %s: %w", m.Type, err)
		c.report(err)
		return err
	}
	return nil
}

// Post queues a local payload for dispatch on this channel. It never
// blocks, so it is safe to call from a handler.
func (c *Channel) Post(p Payload) error {
	m, err := Encode(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrClosed
	}
	c.local = append(c.local, m)
	c.mu.Unlock()

	select {
	case c.localReady <- struct{}{}:
	default:
	}
	return nil
}

// takeLocal removes and returns the posted messages.
func (c *Channel) takeLocal() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.local
	c.local = nil
	return msgs
}

func (c *Channel) enqueue(m Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.queue <- m:
		return nil
	case <-c.closeCh:
		return ErrClosed
	}
}

// BindOptions names the local sources merged into the channel.
type BindOptions struct {
	// Path is the document file. Empty disables file watching.
	Path string
	// Watcher delivers fileChange events for Path.
	Watcher FileWatcher
	// Document delivers externalUpdate events.
	Document DocumentChanges
}

// Bind starts the receive and dispatch loops and subscribes the local
// sources. It may be called once.
func (c *Channel) Bind(ctx context.Context, opts BindOptions) error {
	c.mu.Lock()
	if c.bound {
		c.mu.Unlock()
		return ErrAlreadyBound
	}
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrClosed
	}
	c.bound = true
	c.wg.Add(2)
	c.mu.Unlock()

	if opts.Watcher != nil && opts.Path != "" {
		cancel, err := opts.Watcher.Subscribe(opts.Path, func(e watcher.Event) {
			_ = c.Post(FileChange{Path: e.Path, Op: e.Op.String()})
		})
		if err != nil {
			// The channel stays usable without on-disk notifications.
			c.logger.Warn("watch %s: %v", opts.Path, err)
		} else {
			c.addCancel(cancel)
		}
	}
	if opts.Document != nil {
		c.addCancel(opts.Document.OnDidChange(func(text string) {
			_ = c.Post(ExternalUpdate{Content: text})
		}))
	}

	go c.recvLoop()
	go c.dispatchLoop(ctx)
	return nil
}

// addCancel records a subscription release. A subscription made after
// Close is released immediately.
func (c *Channel) addCancel(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		fn()
		return
	}
	c.cancels = append(c.cancels, fn)
	c.mu.Unlock()
}

func (c *Channel) recvLoop() {
	defer c.wg.Done()

	for {
		m, err := c.transport.Recv()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				// Peer went away; tear down like a panel disposal.
				go c.Close()
				return
			}
			var ferr *FrameError
			if errors.As(err, &ferr) {
				c.report(err)
				continue
			}
			c.report(fmt.Errorf("receive: %w", err))
			go c.Close()
			return
		}
		if m.Type.Local() {
			c.logger.Warn("dropping local-only message %q from surface", m.Type)
			continue
		}
		if err := c.enqueue(m); err != nil {
			return
		}
	}
}

func (c *Channel) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.done)

	for {
		select {
		case m := <-c.queue:
			c.dispatch(ctx, m)
			c.dispatchLocal(ctx)
		case <-c.localReady:
			c.dispatchLocal(ctx)
		case <-c.closeCh:
			return
		case <-ctx.Done():
			go c.Close()
			<-c.closeCh
			return
		}
	}
}

// dispatchLocal runs posted messages, including any their handlers post.
func (c *Channel) dispatchLocal(ctx context.Context) {
	for {
		msgs := c.takeLocal()
		if len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			if c.closed.Load() {
				return
			}
			c.dispatch(ctx, m)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, m Message) {
	p, err := Decode(m)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			c.logger.Debug("ignoring message: %v", err)
			return
		}
		c.report(err)
		return
	}

	for _, fn := range c.handlersFor(m.Type) {
		c.invoke(ctx, m.Type, fn, p)
	}
}

// handlersFor returns the handlers to run for t. Init handlers are
// consumed by the first init message.
func (c *Channel) handlersFor(t Type) []Func {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t == TypeInit {
		if c.initDone {
			c.logger.Debug("ignoring repeated init")
			return nil
		}
		c.initDone = true
		fns := c.inits
		c.inits = nil
		return fns
	}
	if fn, ok := c.handlers[t]; ok {
		return []Func{fn}
	}
	c.logger.Debug("no handler for %q", t)
	return nil
}

func (c *Channel) invoke(ctx context.Context, t Type, fn Func, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			c.report(&HandlerError{Type: t, Err: fmt.Errorf("%v", r), Panic: true})
		}
	}()
	if err := fn(ctx, p); err != nil {
		c.report(&HandlerError{Type: t, Err: err})
	}
}

func (c *Channel) report(err error) {
	c.logger.Error("%v", err)
	if c.onError != nil {
		c.onError(err)
	}
}

// Done is closed once the dispatch loop has stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}

// Close releases the watcher and document subscriptions, closes the
// transport, waits for the loops, and finally runs the dispose handler. It
// is idempotent. Handlers must not call Close directly since Close waits
// for the dispatch loop they run on.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	dispose := c.handlers[TypeDispose]
	bound := c.bound
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	close(c.closeCh)
	err := c.transport.Close()

	if bound {
		c.wg.Wait()
	} else {
		close(c.done)
	}

	if dispose != nil {
		c.invoke(context.Background(), TypeDispose, dispose, Dispose{})
	}
	return err
}
