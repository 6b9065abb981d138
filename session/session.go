package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agaraleas/RideSync/api"
	"github.com/agaraleas/RideSync/auth"
	"github.com/agaraleas/RideSync/config"
	"github.com/agaraleas/RideSync/dispatch"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
	"github.com/agaraleas/RideSync/networking"
	"github.com/agaraleas/RideSync/rides"
	"github.com/agaraleas/RideSync/router"
)

// Session owns one realtime stack: event loop, transport, router, durable API
// client and synchronizer.
type Session struct {
	cfg          config.AppConfig
	loop         *dispatch.EventLoop
	transport    *networking.Transport
	router       *router.Router
	client       *api.Client
	synchronizer *rides.Synchronizer
	logger       logging.AbstractLogger
}

type options struct {
	tokens     auth.TokenProvider
	dialer     networking.Dialer
	httpClient *http.Client
	logger     logging.AbstractLogger
}

type Option func(*options)

// WithTokenProvider replaces the static token taken from the configuration.
func WithTokenProvider(tokens auth.TokenProvider) Option {
	return func(o *options) { o.tokens = tokens }
}

func WithDialer(dialer networking.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

func WithLogger(logger logging.AbstractLogger) Option {
	return func(o *options) { o.logger = logger }
}

func New(cfg config.AppConfig, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{tokens: auth.StaticToken(cfg.Session.Token)}
	for _, opt := range opts {
		opt(&o)
	}

	component := func(name string) logging.AbstractLogger {
		if o.logger != nil {
			return o.logger
		}
		return logging.ForComponent(name)
	}

	loop := dispatch.CreateEventLoop()

	transportOpts := []networking.TransportOption{
		networking.WithLogger(component("transport")),
		networking.WithTokenCheck(auth.Check),
	}
	if o.dialer != nil {
		transportOpts = append(transportOpts, networking.WithDialer(o.dialer))
	}
	transport := networking.CreateTransport(cfg.TransportConfig(), loop, transportOpts...)

	rt := router.CreateRouter(transport, o.tokens, cfg.RouterConfig(), router.WithLogger(component("router")))

	clientOpts := []api.ClientOption{api.WithLogger(component("api"))}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	client := api.CreateClient(cfg.API.BaseURL, cfg.API.Timeout, o.tokens, clientOpts...)

	synchronizer := rides.CreateSynchronizer(rt, client, loop, rides.WithLogger(component("rides")))

	return &Session{
		cfg:          cfg,
		loop:         loop,
		transport:    transport,
		router:       rt,
		client:       client,
		synchronizer: synchronizer,
		logger:       component("session"),
	}, nil
}

// Start connects as userID and loads the user's active rides. A failed load
// leaves the realtime connection running.
func (s *Session) Start(ctx context.Context, userID domain.ID, role domain.Role) ([]domain.Ride, error) {
	if err := s.synchronizer.Connect(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("connecting %s %s: %w", role, userID, err)
	}

	active, err := s.synchronizer.LoadActiveRides(ctx, userID, role)
	if err != nil {
		s.logger.Warnf("Could not load active rides for %s: %v", userID, err)
		return nil, err
	}
	return active, nil
}

// Close disconnects and releases the event loop. The session cannot be restarted.
func (s *Session) Close() {
	s.synchronizer.Disconnect()
	s.synchronizer.Close()
	s.router.Close()
	s.loop.Wait()
	s.loop.Stop()
}

func (s *Session) Config() config.AppConfig {
	return s.cfg
}

func (s *Session) Synchronizer() *rides.Synchronizer {
	return s.synchronizer
}

func (s *Session) Router() *router.Router {
	return s.router
}

func (s *Session) Transport() *networking.Transport {
	return s.transport
}

func (s *Session) Loop() *dispatch.EventLoop {
	return s.loop
}
