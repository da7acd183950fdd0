// Package feed subscribes to the admin dashboard's mutation stream and
// invalidates cached views as soon as content changes remotely.
package feed

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type WebSocketConfig struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	ReconnectDelay string `json:"reconnect_delay"`
	MaxRetries     int    `json:"max_retries"`
	PingInterval   string `json:"ping_interval"`
	PongWait       string `json:"pong_wait"`
}

// Mutation is one change announced by the dashboard. PreviousFields carries
// the grouping values an update or delete moved the entity away from.
type Mutation struct {
	Action         string            `json:"action"`
	EntityType     string            `json:"entity_type"`
	EntityID       string            `json:"entity_id"`
	Fields         map[string]string `json:"fields,omitempty"`
	PreviousFields map[string]string `json:"previous_fields,omitempty"`
}

type WebSocketFeed struct {
	logger         types.Logger
	metrics        types.MetricsManager
	invalidator    types.Invalidator
	config         *WebSocketConfig
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	pingInterval   time.Duration
	pongWait       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	connMu sync.Mutex
	conn   *websocket.Conn
	state  atomic.Value
}

func NewWebSocketFeed(logger types.Logger, metrics types.MetricsManager, invalidator types.Invalidator, config *types.FeedConfig) (*WebSocketFeed, error) {
	wsConfig := &WebSocketConfig{
		ReconnectDelay: "5s",
		PingInterval:   "30s",
		PongWait:       "60s",
	}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, wsConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal feed config")
		}
	}

	if wsConfig.URL == "" {
		return nil, types.Errorf(types.ErrConfigInvalid, "feed.config.url is required")
	}

	feed := &WebSocketFeed{
		logger:      logger,
		metrics:     metrics,
		invalidator: invalidator,
		config:      wsConfig,
		dialer:      websocket.DefaultDialer,
	}

	var err error
	if feed.reconnectDelay, err = time.ParseDuration(wsConfig.ReconnectDelay); err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "feed.config.reconnect_delay: %v", err)
	}
	if feed.pingInterval, err = time.ParseDuration(wsConfig.PingInterval); err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "feed.config.ping_interval: %v", err)
	}
	if feed.pongWait, err = time.ParseDuration(wsConfig.PongWait); err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "feed.config.pong_wait: %v", err)
	}

	feed.state.Store(StateStopped)

	return feed, nil
}

func (f *WebSocketFeed) Start() error {
	if !f.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	f.ctx, f.cancel = context.WithCancel(context.Background())

	f.setState(StateRunning)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("Mutation feed started", zap.String("url", f.config.URL))

	return nil
}

func (f *WebSocketFeed) Stop() error {
	if !f.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	f.cancel()
	f.closeConn()
	f.wg.Wait()

	f.setState(StateStopped)
	f.logger.Info("Mutation feed stopped")

	return nil
}

func (f *WebSocketFeed) IsRunning() bool {
	return f.getState() == StateRunning
}

// run keeps one connection open, reconnecting with a linear backoff until
// the feed is stopped or MaxRetries consecutive dials fail.
func (f *WebSocketFeed) run() {
	defer f.wg.Done()

	failures := 0
	for {
		conn, err := f.connect()
		if err != nil {
			failures++
			f.recordMetric("connect_error")
			f.logger.Warn("Mutation feed connection failed", zap.Int("attempt", failures), zap.Error(err))

			if f.config.MaxRetries > 0 && failures >= f.config.MaxRetries {
				f.logger.Error("Mutation feed gave up reconnecting", zap.Int("attempts", failures))
				if f.transitionState(StateRunning, StateStopped) {
					f.cancel()
				}
				return
			}

			if !f.sleep(time.Duration(failures) * f.reconnectDelay) {
				return
			}
			continue
		}

		failures = 0
		f.readLoop(conn)

		if f.ctx.Err() != nil {
			return
		}
		if !f.sleep(f.reconnectDelay) {
			return
		}
	}
}

func (f *WebSocketFeed) connect() (*websocket.Conn, error) {
	header := http.Header{}
	if f.config.Token != "" {
		header.Set("Authorization", "Bearer "+f.config.Token)
	}

	conn, _, err := f.dialer.DialContext(f.ctx, f.config.URL, header)
	if err != nil {
		return nil, types.Errorf(types.ErrFeedConnectionFailed, "%v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(f.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.pongWait))
	})

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	// Stop may have closed the previous connection while this one was dialing.
	if f.ctx.Err() != nil {
		f.closeConn()
		return nil, f.ctx.Err()
	}

	f.logger.Info("Mutation feed connected", zap.String("url", f.config.URL))
	return conn, nil
}

func (f *WebSocketFeed) readLoop(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer f.closeConn()

	go f.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				f.logger.Warn("Mutation feed read failed", zap.Error(err))
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(f.pongWait))
		f.handle(data)
	}
}

func (f *WebSocketFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(f.pingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				f.logger.Debug("Mutation feed ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (f *WebSocketFeed) handle(data []byte) {
	mutation, err := ParseMutation(data)
	if err != nil {
		f.recordMetric("invalid")
		f.logger.Warn("Ignoring malformed mutation", zap.Error(err))
		return
	}

	if err := f.apply(mutation); err != nil {
		f.recordMetric("invalidate_error")
		f.logger.Error("Invalidation from feed failed",
			zap.String("entity_type", mutation.EntityType),
			zap.String("entity_id", mutation.EntityID),
			zap.Error(err))
		return
	}

	f.recordMetric("applied")
	f.logger.Debug("Applied remote mutation",
		zap.String("action", mutation.Action),
		zap.String("entity_type", mutation.EntityType),
		zap.String("entity_id", mutation.EntityID))
}

// apply invalidates the keys a mutation touches. An update or delete without
// previous_fields may have left an old grouping, so every parameterised key of
// the entity type is swept.
func (f *WebSocketFeed) apply(mutation Mutation) error {
	switch {
	case mutation.Action == "create":
		return f.invalidator.Invalidate(f.ctx, mutation.EntityType, mutation.EntityID, mutation.Fields)
	case mutation.PreviousFields == nil:
		return f.invalidator.Invalidate(f.ctx, mutation.EntityType, mutation.EntityID, nil)
	}

	if err := f.invalidator.Invalidate(f.ctx, mutation.EntityType, mutation.EntityID, mutation.PreviousFields); err != nil {
		return err
	}
	if sameFields(mutation.Fields, mutation.PreviousFields) {
		return nil
	}
	return f.invalidator.Invalidate(f.ctx, mutation.EntityType, mutation.EntityID, mutation.Fields)
}

func sameFields(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func ParseMutation(data []byte) (Mutation, error) {
	var mutation Mutation
	if err := utils.Unmarshal(data, &mutation); err != nil {
		return mutation, types.Errorf(types.ErrFeedMessageInvalid, "%v", err)
	}

	if mutation.EntityType == "" {
		return mutation, types.Errorf(types.ErrFeedMessageInvalid, "entity_type is empty")
	}

	switch mutation.Action {
	case "", "create", "update", "delete":
	default:
		return mutation, types.Errorf(types.ErrFeedMessageInvalid, "action %q", mutation.Action)
	}

	return mutation, nil
}

func (f *WebSocketFeed) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-f.ctx.Done():
		return false
	}
}

func (f *WebSocketFeed) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *WebSocketFeed) recordMetric(result string) {
	if f.metrics == nil {
		return
	}
	f.metrics.Counter("feed_messages_total", map[string]string{"result": result}).Inc()
}

func (f *WebSocketFeed) getState() State {
	return f.state.Load().(State)
}

func (f *WebSocketFeed) setState(newState State) {
	f.state.Store(newState)
}

func (f *WebSocketFeed) transitionState(from, to State) bool {
	return f.state.CompareAndSwap(from, to)
}
