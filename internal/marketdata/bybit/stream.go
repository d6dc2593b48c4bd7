package bybit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/logger"
	"github.com/trashpanda-labs/papertrade/internal/safety"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

const (
	mainnetStreamURL = "wss://stream.bybit.com/v5/public/linear"
	testnetStreamURL = "wss://stream-testnet.bybit.com/v5/public/linear"

	pingInterval     = 20 * time.Second
	handshakeTimeout = 10 * time.Second

	// A connection that survives this long resets the reconnect backoff.
	stableConnectionAge = 2 * time.Minute
)

// StreamConfig holds the settings for the public kline stream.
type StreamConfig struct {
	Testnet       bool
	TickBuffer    int
	MaxReconnects int
	Backoff       safety.RetryConfig
}

// DefaultStreamConfig returns the stream settings used when none are given.
func DefaultStreamConfig() StreamConfig {
	backoff := safety.DefaultRetryConfig()
	backoff.InitialDelay = 2 * time.Second
	backoff.MaxDelay = 2 * time.Minute
	return StreamConfig{
		TickBuffer:    256,
		MaxReconnects: 20,
		Backoff:       backoff,
	}
}

// KlineStream delivers confirmed kline closes for subscribed symbol/timeframe
// pairs over a websocket. On read failure it reconnects with jittered
// exponential backoff and replays every active subscription, so callers never
// resubscribe themselves.
type KlineStream struct {
	url     string
	log     *logger.Logger
	config  StreamConfig
	retrier *safety.Retrier

	mu     sync.Mutex
	conn   *websocket.Conn
	topics map[string]struct{}
	closed bool

	// ticks is closed only after every read loop has exited, so a message
	// arriving during shutdown can never hit a closed channel.
	ticks   chan types.Ticker
	done    chan struct{}
	readers sync.WaitGroup

	// Cumulative failed dials since the last stable connection.
	reconnectAttempts int
}

// NewKlineStream creates a stream. Call Connect before Subscribe.
func NewKlineStream(config StreamConfig, log *logger.Logger) *KlineStream {
	if config.TickBuffer <= 0 {
		config.TickBuffer = 256
	}
	if config.MaxReconnects <= 0 {
		config.MaxReconnects = 20
	}
	url := mainnetStreamURL
	if config.Testnet {
		url = testnetStreamURL
	}
	return &KlineStream{
		url:     url,
		log:     log,
		config:  config,
		retrier: safety.NewRetrier(config.Backoff),
		topics:  make(map[string]struct{}),
		ticks:   make(chan types.Ticker, config.TickBuffer),
		done:    make(chan struct{}),
	}
}

// Connect dials the stream and starts the read and ping loops.
func (s *KlineStream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.ErrorCategoryFatalState, "stream", "connect", "stream is closed")
	}
	if err := s.dialLocked(); err != nil {
		return err
	}
	s.readers.Add(1)
	go s.readLoop(s.conn)
	go s.pingLoop(s.conn)
	return nil
}

// Subscribe registers a symbol/timeframe pair. The subscription is replayed
// after every reconnect.
func (s *KlineStream) Subscribe(symbol, timeframe string) error {
	code, ok := intervalCodes[timeframe]
	if !ok {
		return engineerr.New(engineerr.ErrorCategoryValidation, "stream", "subscribe",
			"unsupported timeframe %q", timeframe)
	}
	topic := fmt.Sprintf("kline.%s.%s", code, symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.ErrorCategoryFatalState, "stream", "subscribe", "stream is closed")
	}
	s.topics[topic] = struct{}{}
	if s.conn == nil {
		return nil
	}
	return s.sendSubscribeLocked([]string{topic})
}

// Ticks is the delivery channel. It is closed when the stream shuts down.
func (s *KlineStream) Ticks() <-chan types.Ticker {
	return s.ticks
}

// Close stops reconnecting, tears the connection down, and closes Ticks
// once the read loop has drained out.
func (s *KlineStream) Close() error {
	if !s.shutdown() {
		return nil
	}
	s.readers.Wait()
	close(s.ticks)
	return nil
}

// shutdown marks the stream closed and severs the connection. It reports
// whether this call performed the shutdown, so exactly one caller goes on
// to close the tick channel.
func (s *KlineStream) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return true
}

func (s *KlineStream) dialLocked() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "stream", "dial")
	}
	s.conn = conn

	if len(s.topics) > 0 {
		topics := make([]string, 0, len(s.topics))
		for t := range s.topics {
			topics = append(topics, t)
		}
		if err := s.sendSubscribeLocked(topics); err != nil {
			conn.Close()
			s.conn = nil
			return err
		}
	}
	return nil
}

func (s *KlineStream) sendSubscribeLocked(topics []string) error {
	msg := map[string]interface{}{
		"op":   "subscribe",
		"args": topics,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "stream", "subscribe")
	}
	return nil
}

func (s *KlineStream) readLoop(conn *websocket.Conn) {
	defer s.readers.Done()
	connectedAt := time.Now()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Warning("Stream read failed after %s: %v", time.Since(connectedAt).Round(time.Second), err)
			s.reconnect(time.Since(connectedAt) >= stableConnectionAge)
			return
		}
		s.handleMessage(message)
	}
}

func (s *KlineStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// reconnect dials with exponential backoff until it succeeds or the attempt
// budget runs out. A sustained previous connection resets the backoff so a
// single blip after hours of stability does not start at a long delay.
func (s *KlineStream) reconnect(wasStable bool) {
	if wasStable {
		s.reconnectAttempts = 0
	}
	for s.reconnectAttempts < s.config.MaxReconnects {
		s.reconnectAttempts++
		attempt := s.reconnectAttempts
		delay := s.retrier.Delay(attempt)
		s.log.Info("Reconnecting stream in %s (attempt %d/%d)", delay.Round(time.Millisecond), attempt, s.config.MaxReconnects)

		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		err := s.dialLocked()
		if err == nil {
			conn := s.conn
			topicCount := len(s.topics)
			s.mu.Unlock()
			s.log.Info("Stream reconnected, %d topic(s) resubscribed", topicCount)
			s.readers.Add(1)
			go s.readLoop(conn)
			go s.pingLoop(conn)
			return
		}
		s.mu.Unlock()
		s.log.Warning("Stream reconnect attempt %d failed: %v", attempt, err)
	}

	s.finalShutdown()
}

// finalShutdown runs on the read-loop goroutine when the reconnect budget
// is exhausted. It must not wait on readers: this goroutine is the last
// sender and is done sending, so it closes the tick channel itself. If a
// concurrent Close already won the shutdown race, that Close owns the
// channel close and waits for this goroutine instead.
func (s *KlineStream) finalShutdown() {
	s.log.Error("Stream gave up after %d reconnect attempts", s.config.MaxReconnects)
	if s.shutdown() {
		close(s.ticks)
	}
}

// klineMessage is the shape of Bybit's public kline push.
type klineMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Close     string `json:"close"`
		Volume    string `json:"volume"`
		Confirm   bool   `json:"confirm"`
		Timestamp int64  `json:"timestamp"`
	} `json:"data"`
}

func (s *KlineStream) handleMessage(message []byte) {
	var msg klineMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Topic == "" {
		return
	}

	// Topic format: kline.<interval>.<symbol>.
	symbol := msg.Topic
	if i := lastDot(msg.Topic); i >= 0 {
		symbol = msg.Topic[i+1:]
	}

	for _, d := range msg.Data {
		tick := types.Ticker{
			Symbol:    symbol,
			Price:     parseFloat64(d.Close),
			Volume:    parseFloat64(d.Volume),
			Timestamp: time.UnixMilli(d.Timestamp),
		}
		if tick.Price <= 0 {
			continue
		}
		select {
		case s.ticks <- tick:
		default:
			// Consumers falling behind lose the oldest view, not the newest.
			select {
			case <-s.ticks:
			default:
			}
			select {
			case s.ticks <- tick:
			default:
			}
		}
	}
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
