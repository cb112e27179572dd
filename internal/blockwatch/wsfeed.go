package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"batchread/internal/jsonrpc"
)

// FeedConfig configures a WebSocket head feed
type FeedConfig struct {
	MessageTimeout    time.Duration
	ReconnectInterval time.Duration
}

// WSFeed maintains a newHeads subscription on one endpoint and feeds
// the watcher. It reconnects forever until closed.
type WSFeed struct {
	url     string
	watcher *Watcher
	cfg     FeedConfig
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSFeed creates a WSFeed
func NewWSFeed(url string, watcher *Watcher, cfg FeedConfig, logger zerolog.Logger) *WSFeed {
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 60 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSFeed{
		url:     url,
		watcher: watcher,
		cfg:     cfg,
		logger:  logger.With().Str("component", "wsfeed").Str("url", url).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start runs the feed loop in the background
func (f *WSFeed) Start() {
	go f.loop()
}

// Close stops the feed
func (f *WSFeed) Close() {
	f.cancel()
	<-f.done
}

func (f *WSFeed) loop() {
	defer close(f.done)

	for {
		if f.ctx.Err() != nil {
			return
		}

		if err := f.runOnce(); err != nil {
			f.logger.Warn().Err(err).Msg("head feed disconnected")
		}

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(f.cfg.ReconnectInterval):
		}
	}
}

// runOnce connects, subscribes to newHeads, and reads until error
func (f *WSFeed) runOnce() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(f.ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	// Kill the blocking read when the feed is closed
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-f.ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.Info().Msg("newHeads subscription established")

	for {
		conn.SetReadDeadline(time.Now().Add(f.cfg.MessageTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		head, ok := parseHead(data)
		if !ok {
			continue
		}
		f.watcher.Announce(head)
	}
}

// subscribe performs the eth_subscribe handshake
func (f *WSFeed) subscribe(conn *websocket.Conn) error {
	req, err := jsonrpc.NewRequest("eth_subscribe", []string{"newHeads"}, jsonrpc.NewIDInt(1))
	if err != nil {
		return err
	}
	reqBytes, err := req.Bytes()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("failed to send subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, respData, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read subscribe response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	resp, err := jsonrpc.ParseResponse(respData)
	if err != nil {
		return fmt.Errorf("failed to parse subscribe response: %w", err)
	}
	if resp.HasError() {
		return fmt.Errorf("subscribe rejected: %s", resp.Error.Message)
	}
	return nil
}

// headNotification is the eth_subscription envelope for newHeads
type headNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Number     string `json:"number"`
			Hash       string `json:"hash"`
			ParentHash string `json:"parentHash"`
		} `json:"result"`
	} `json:"params"`
}

// parseHead extracts a Head from a raw WebSocket message; non-head
// messages are ignored
func parseHead(data []byte) (Head, bool) {
	var n headNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return Head{}, false
	}
	if n.Method != "eth_subscription" || n.Params.Result.Hash == "" {
		return Head{}, false
	}

	number, err := hexutil.DecodeUint64(n.Params.Result.Number)
	if err != nil {
		return Head{}, false
	}

	return Head{
		Number:     number,
		Hash:       n.Params.Result.Hash,
		ParentHash: n.Params.Result.ParentHash,
		SeenAt:     time.Now(),
	}, true
}
