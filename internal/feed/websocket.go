package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sourceWebSocket = "websocket"

// WSConfig configures WebSocket source behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long the connection may stay silent (pongs count).
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSource reads execution messages from a WebSocket endpoint and reconnects
// with exponential backoff when the connection drops.
type WSSource struct {
	url     string
	cfg     WSConfig
	handler *Handler
	dialer  websocket.Dialer
	log     zerolog.Logger
}

// NewWSSource creates a WSSource for url. Zero durations in cfg take the
// DefaultWSConfig values.
func NewWSSource(url string, cfg WSConfig, handler *Handler, log zerolog.Logger) *WSSource {
	def := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(def.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &WSSource{
		url:     url,
		cfg:     cfg,
		handler: handler,
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     log.With().Str("component", "ws_source").Str("url", url).Logger(),
	}
}

// Run reads until ctx is cancelled. Connection failures are retried forever;
// handler errors close the connection and the stream resumes after reconnect.
func (s *WSSource) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ReconnectDelay
	b.MaxInterval = s.cfg.MaxReconnectDelay
	b.MaxElapsedTime = 0

	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			s.log.Info().Msg("websocket source stopped")
			return nil
		}
		if connected {
			b.Reset()
		}

		delay := b.NextBackOff()
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("websocket disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (s *WSSource) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	s.log.Info().Msg("websocket connected")

	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		wg.Wait()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(s.cfg.WriteTimeout))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("websocket read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		if err := s.handler.Handle(ctx, sourceWebSocket, payload); err != nil {
			return true, err
		}
	}
}
