package networking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agaraleas/RideSync/dispatch"
	"github.com/agaraleas/RideSync/logging"
	"github.com/gorilla/websocket"
)

type TransportConfig struct {
	BaseURL              string
	ConnectionTimeout    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
	// PongTimeout bounds the silence tolerated on a live socket. Zero disables it.
	PongTimeout        time.Duration
	WriteTimeout       time.Duration
	OutboundQueueLimit int
}

// Handler receives Transport notifications. All calls happen on the event loop.
type Handler interface {
	OnStateChange(state ConnectionState)
	OnConnected()
	OnDisconnected(err error)
	OnError(err error)
	OnEvent(envelope InboundEnvelope)
}

// HandlerFuncs adapts optional functions to a Handler.
type HandlerFuncs struct {
	StateChange  func(ConnectionState)
	Connected    func()
	Disconnected func(error)
	Error        func(error)
	Event        func(InboundEnvelope)
}

func (h HandlerFuncs) OnStateChange(state ConnectionState) {
	if h.StateChange != nil {
		h.StateChange(state)
	}
}

func (h HandlerFuncs) OnConnected() {
	if h.Connected != nil {
		h.Connected()
	}
}

func (h HandlerFuncs) OnDisconnected(err error) {
	if h.Disconnected != nil {
		h.Disconnected(err)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnEvent(envelope InboundEnvelope) {
	if h.Event != nil {
		h.Event(envelope)
	}
}

type TransportOption func(*Transport)

func WithDialer(dialer Dialer) TransportOption {
	return func(t *Transport) { t.dialer = dialer }
}

func WithScheduler(scheduler Scheduler) TransportOption {
	return func(t *Transport) { t.scheduler = scheduler }
}

func WithLogger(logger logging.AbstractLogger) TransportOption {
	return func(t *Transport) { t.logger = logger }
}

// WithTokenCheck rejects tokens before dialing. A rejected token is an AddressError.
func WithTokenCheck(check func(token string) error) TransportOption {
	return func(t *Transport) { t.tokenCheck = check }
}

// Transport owns at most one websocket at a time. It reconnects with linear
// backoff, keeps the socket alive with application pings and queues frames
// emitted while the socket is down.
//
// Every socket generation gets a new epoch; dial results, reads and timers
// belonging to an older epoch are ignored.
type Transport struct {
	cfg        TransportConfig
	loop       *dispatch.EventLoop
	dialer     Dialer
	scheduler  Scheduler
	logger     logging.AbstractLogger
	tokenCheck func(token string) error
	handlers   dispatch.Listeners[Handler]

	mu            sync.Mutex
	state         ConnectionState
	address       string
	autoReconnect bool
	attempts      int
	epoch         uint64
	conn          Conn
	cancelDial    context.CancelFunc
	retryTimer    Timer
	pingTimer     Timer
	queue         *OutboundQueue
	flushing      bool

	writeMu sync.Mutex
}

func CreateTransport(cfg TransportConfig, loop *dispatch.EventLoop, opts ...TransportOption) *Transport {
	t := &Transport{
		cfg:       cfg,
		loop:      loop,
		scheduler: systemScheduler{},
		logger:    logging.ForComponent("transport"),
		state:     Disconnected,
		queue:     NewOutboundQueue(cfg.OutboundQueueLimit),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dialer == nil {
		t.dialer = newWebsocketDialer(cfg.ConnectionTimeout)
	}
	return t
}

// Subscribe registers a handler and returns the function that removes it.
func (t *Transport) Subscribe(h Handler) func() {
	return t.handlers.Add(h)
}

func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *Transport) QueueLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len()
}

// Connect is allowed from Disconnected and Error only. A malformed address
// moves the Transport to Error and is returned without scheduling a retry.
func (t *Transport) Connect(namespace string, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state.Status {
	case StatusConnected, StatusConnecting, StatusReconnecting:
		t.logger.Warnf("Transport::Connect refused while %s", t.state)
		return ErrAlreadyConnected
	}

	address, err := BuildAddress(t.cfg.BaseURL, namespace, token)
	if err == nil && token != "" && t.tokenCheck != nil {
		if checkErr := t.tokenCheck(token); checkErr != nil {
			err = &AddressError{Reason: "token rejected: " + checkErr.Error(), Err: checkErr}
		}
	}
	if err != nil {
		t.logger.Errorf("Transport::Connect %v", err)
		t.setStateLocked(ErrorState(err))
		t.notifyLocked(func(h Handler) { h.OnError(err) })
		return err
	}

	t.address = address
	t.autoReconnect = true
	t.attempts = 0
	t.setStateLocked(Connecting)
	t.dialLocked()
	return nil
}

// Disconnect is valid from any state and idempotent. Queued frames are kept
// for the next connection.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasConnected := t.state.IsConnected()
	t.autoReconnect = false
	t.attempts = 0
	t.teardownLocked(true)

	if t.state.Status == StatusDisconnected {
		return
	}
	t.setStateLocked(Disconnected)
	if wasConnected {
		t.notifyLocked(func(h Handler) { h.OnDisconnected(nil) })
	}
}

// Emit sends immediately when connected, otherwise queues the frame until the
// next successful connection.
func (t *Transport) Emit(event string, data map[string]any) error {
	frame, err := OutboundMessage{Event: event, Data: data}.Encode()
	if err != nil {
		t.logger.Errorf("Failed to marshal '%s' message to json: %v", event, err)
		return err
	}

	t.mu.Lock()
	if !t.state.IsConnected() || t.flushing {
		if evicted := t.queue.Push(frame); evicted {
			t.logger.Warnf("Outbound queue full (%d), dropped oldest message", t.cfg.OutboundQueueLimit)
		}
		t.logger.Debugf("Queued '%s' message while %s", event, t.state)
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	epoch := t.epoch
	t.mu.Unlock()

	if err := t.write(conn, frame); err != nil {
		sendErr := &TransportError{Op: "write", Err: err}
		t.logger.Errorf("Failed to send '%s' message: %v", event, err)

		t.mu.Lock()
		if epoch == t.epoch {
			t.notifyLocked(func(h Handler) { h.OnError(sendErr) })
		}
		t.mu.Unlock()

		conn.Close()
		return sendErr
	}

	t.logger.Debugf("Sent '%s' message", event)
	return nil
}

func (t *Transport) dialLocked() {
	t.epoch++
	epoch := t.epoch

	var ctx context.Context
	var cancel context.CancelFunc
	if t.cfg.ConnectionTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), t.cfg.ConnectionTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	t.cancelDial = cancel

	t.logger.Debugf("Dialing %s", t.address)
	go t.dial(ctx, cancel, epoch, t.address)
}

func (t *Transport) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64, address string) {
	conn, err := t.dialer.Dial(ctx, address)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch {
		if conn != nil {
			conn.Close()
		}
		return
	}
	t.cancelDial = nil

	if err != nil {
		dialErr := &TransportError{Op: "dial", Err: err}
		t.logger.Warnf("Failed to connect to %s: %v", address, err)
		t.scheduleRetryLocked(dialErr)
		return
	}

	t.onOpenLocked(conn, epoch)
}

func (t *Transport) onOpenLocked(conn Conn, epoch uint64) {
	t.conn = conn
	t.attempts = 0
	t.flushing = true
	t.setStateLocked(Connected)
	t.logger.Infof("Connected to %s", t.address)

	go t.readPump(conn, epoch)
	t.schedulePingLocked(epoch)

	t.notifyLocked(func(h Handler) { h.OnConnected() })
	t.loop.Post(func() { t.flushQueue(epoch) })
}

// flushQueue writes queued frames in FIFO order. Emit keeps queueing while it runs.
func (t *Transport) flushQueue(epoch uint64) {
	for {
		t.mu.Lock()
		if epoch != t.epoch || !t.state.IsConnected() {
			t.mu.Unlock()
			return
		}
		frame, found := t.queue.Pop()
		if !found {
			t.flushing = false
			t.mu.Unlock()
			return
		}
		conn := t.conn
		t.mu.Unlock()

		if err := t.write(conn, frame); err != nil {
			t.logger.Errorf("Failed to flush queued message: %v", err)
			t.mu.Lock()
			if epoch == t.epoch {
				t.queue.PushFront(frame)
			}
			t.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (t *Transport) write(conn Conn, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *Transport) readPump(conn Conn, epoch uint64) {
	for {
		if t.cfg.PongTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
		}

		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.connectionLostLocked(epoch, &TransportError{Op: "read", Err: err})
			t.mu.Unlock()
			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		t.handleFrame(epoch, frame)
	}
}

func (t *Transport) handleFrame(epoch uint64, frame []byte) {
	envelope, err := DecodeEnvelope(frame)
	if err != nil {
		t.logger.Warnf("Dropping inbound frame: %v", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch {
		return
	}

	switch envelope.Event {
	case EventPong, EventConnect, EventConnected:
		t.logger.Debugf("Received '%s'", envelope.Event)
	case EventDisconnect:
		t.logger.Infof("Server closed the session")
		t.connectionLostLocked(epoch, &TransportError{Op: "read", Err: errServerDisconnect})
	case EventError:
		var payload struct {
			Message string `json:"message"`
		}
		envelope.Decode(&payload)
		serverErr := &ServerError{Message: payload.Message}
		t.logger.Errorf("Received %v", serverErr)
		t.notifyLocked(func(h Handler) { h.OnError(serverErr) })
	default:
		if !IsDomainEvent(envelope.Event) {
			t.logger.Warnf("Dropping inbound frame: %v", &ProtocolError{Frame: abbreviate(frame), Reason: "unknown event " + quoted(envelope.Event)})
			return
		}
		t.logger.Debugf("Received '%s'", envelope.Event)
		t.notifyLocked(func(h Handler) { h.OnEvent(envelope) })
	}
}

// connectionLostLocked handles a socket that failed without Disconnect being called.
func (t *Transport) connectionLostLocked(epoch uint64, cause error) {
	if epoch != t.epoch {
		return
	}

	wasConnected := t.state.IsConnected()
	t.teardownLocked(false)
	t.logger.Warnf("Connection lost: %v", cause)
	if wasConnected {
		t.notifyLocked(func(h Handler) { h.OnDisconnected(cause) })
	}

	if !t.autoReconnect {
		t.setStateLocked(Disconnected)
		return
	}
	t.scheduleRetryLocked(cause)
}

// scheduleRetryLocked arms the n-th retry after ReconnectInterval*n, or moves
// to Error once MaxReconnectAttempts retries have failed.
func (t *Transport) scheduleRetryLocked(cause error) {
	if t.attempts >= t.cfg.MaxReconnectAttempts {
		exhausted := &ExhaustedRetriesError{Attempts: t.attempts, Last: cause}
		t.autoReconnect = false
		t.logger.Errorf("Transport %v", exhausted)
		t.setStateLocked(ErrorState(exhausted))
		t.notifyLocked(func(h Handler) { h.OnError(exhausted) })
		return
	}

	t.attempts++
	delay := t.cfg.ReconnectInterval * time.Duration(t.attempts)
	t.setStateLocked(Reconnecting(t.attempts))
	t.logger.Infof("Reconnect attempt %d/%d in %s", t.attempts, t.cfg.MaxReconnectAttempts, delay)

	epoch := t.epoch
	t.retryTimer = t.scheduler.AfterFunc(delay, func() { t.retry(epoch) })
}

func (t *Transport) retry(epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch || t.state.Status != StatusReconnecting {
		return
	}
	t.retryTimer = nil
	t.dialLocked()
}

func (t *Transport) schedulePingLocked(epoch uint64) {
	if t.cfg.PingInterval <= 0 {
		return
	}
	t.pingTimer = t.scheduler.AfterFunc(t.cfg.PingInterval, func() { t.ping(epoch) })
}

func (t *Transport) ping(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || !t.state.IsConnected() {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.mu.Unlock()

	frame, err := OutboundMessage{Event: EventPing}.Encode()
	if err != nil {
		t.logger.Errorf("Transport::ping cannot encode keep-alive: %v", err)
		return
	}
	if err := t.write(conn, frame); err != nil {
		t.logger.Warnf("Keep-alive ping failed: %v", err)
		conn.Close()
		return
	}

	t.mu.Lock()
	if epoch == t.epoch {
		t.schedulePingLocked(epoch)
	}
	t.mu.Unlock()
}

// teardownLocked invalidates the current epoch, stops timers and closes the socket.
func (t *Transport) teardownLocked(graceful bool) {
	t.epoch++
	t.flushing = false

	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	if t.pingTimer != nil {
		t.pingTimer.Stop()
		t.pingTimer = nil
	}

	if t.conn == nil {
		return
	}
	conn := t.conn
	t.conn = nil

	if !graceful {
		conn.Close()
		return
	}
	go func() {
		t.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		conn.Close()
	}()
}

func (t *Transport) setStateLocked(state ConnectionState) {
	if state == t.state {
		return
	}
	t.logger.Infof("Transport state %s -> %s", t.state, state)
	t.state = state
	t.notifyLocked(func(h Handler) { h.OnStateChange(state) })
}

func (t *Transport) notifyLocked(fn func(Handler)) {
	t.loop.Post(func() { t.handlers.Each(fn) })
}

// IsAddressError reports whether err means the address could not be built.
func IsAddressError(err error) bool {
	var addrErr *AddressError
	return errors.As(err, &addrErr)
}
