package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TapeDeck/pkg/logger"
)

// Stream is a QuoteStream backed by the Finnhub trade WebSocket. It
// keeps only the latest price per subscribed symbol; consumers poll
// Last instead of draining a channel, so a slow consumer never backs up
// the socket.
type Stream struct {
	apiKey         string
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	symbols []string
	last    map[string]float64
	cancel  context.CancelFunc
}

// New creates a Finnhub stream client.
func New(apiKey, url string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	return &Stream{
		apiKey:         apiKey,
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		last:           make(map[string]float64),
	}
}

// Start connects and subscribes to symbols, then keeps the connection
// alive on a background goroutine, reconnecting after read failures. It
// returns once the first connection attempt resolves.
func (s *Stream) Start(ctx context.Context, symbols []string) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("finnhub: stream already started")
	}
	s.cancel = cancel
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()

	if err := s.connect(runCtx); err != nil {
		return err
	}
	go s.run(runCtx)
	return nil
}

// Last returns the most recent streamed price for symbol.
func (s *Stream) Last(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.last[strings.ToUpper(symbol)]
	return p, ok
}

// Close tears the stream down. Safe to call twice.
func (s *Stream) Close() error {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.cancel, s.conn = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	symbols := s.symbols
	s.mu.Unlock()

	for _, sym := range symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("finnhub subscribe %s: %w", sym, err)
		}
	}
	s.log.Info("finnhub stream connected", logger.Int("symbols", len(symbols)))
	return nil
}

func (s *Stream) run(ctx context.Context) {
	go s.pingLoop(ctx)

	for {
		if err := s.readLoop(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("finnhub stream read failed, reconnecting", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
		if err := s.connect(ctx); err != nil {
			s.log.Warn("finnhub reconnect failed", logger.Error(err))
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

type trade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type message struct {
	Type string  `json:"type"`
	Data []trade `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("finnhub: not connected")
	}

	for ctx.Err() == nil {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var m message
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// non-trade frames (acks, pings) are ignored
			continue
		}
		s.mu.Lock()
		for _, t := range m.Data {
			s.last[strings.ToUpper(t.S)] = t.P
		}
		s.mu.Unlock()
	}
	return nil
}
