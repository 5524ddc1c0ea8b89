package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tari-cpu/tpool/internal/models"
	"github.com/tari-cpu/tpool/internal/settle"
)

// Settler is the slice of the settlement engine the listener drives.
type Settler interface {
	SettleBlock(ctx context.Context, coin string, height uint64, totalReward decimal.Decimal, chainBlockID string) (*models.Block, bool, error)
}

// Listener subscribes to the pool monitor's block-found feed and hands every
// event to the settlement engine. Duplicate deliveries are safe because
// settlement is idempotent.
type Listener struct {
	Conn    *websocket.Conn
	URL     string
	settler Settler
	stats   *Stats

	reconnectWait time.Duration
}

func NewListener(url string, settler Settler) (*Listener, error) {
	l := &Listener{
		URL:           url,
		settler:       settler,
		stats:         NewStats(),
		reconnectWait: 5 * time.Second,
	}
	err := l.Connect()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Listener) Connect() error {
	log.Printf("Connecting to block event feed: %s", l.URL)
	conn, _, err := websocket.DefaultDialer.Dial(l.URL, nil)
	if err != nil {
		log.Printf("Failed to connect to block event feed: %v", err)
		return err
	}

	subscribeMsg := `{
        "jsonrpc": "2.0",
        "method": "subscribe",
        "id": 1,
        "params": {
            "query": "event='block_found'"
        }
    }`

	err = conn.WriteMessage(websocket.TextMessage, []byte(subscribeMsg))
	if err != nil {
		log.Printf("Failed to send subscription message: %v", err)
		conn.Close()
		return err
	}

	l.Conn = conn
	return nil
}

func (l *Listener) Stats() *Stats {
	return l.stats
}

// ReadEvents consumes block-found events until ctx is cancelled, reconnecting
// on read failures.
func (l *Listener) ReadEvents(ctx context.Context, logger *log.Logger) {
	// Close whichever connection is current at return time; reconnections
	// swap l.Conn under us.
	defer func() { l.Conn.Close() }()
	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := l.Conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Printf("Error reading block event: %v", err)
			if !l.handleReconnection(ctx, logger) {
				return
			}
			continue
		}

		l.processMessage(ctx, message, logger)
	}
}

func (l *Listener) handleReconnection(ctx context.Context, logger *log.Logger) bool {
	logger.Println("Attempting to reconnect to block event feed...")
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.reconnectWait):
		}
		err := l.Connect()
		if err != nil {
			logger.Printf("Reconnection failed: %v", err)
			continue
		}
		logger.Println("Reconnected to block event feed")
		return true
	}
}

func (l *Listener) processMessage(ctx context.Context, message []byte, logger *log.Logger) {
	var event BlockFound
	if err := json.Unmarshal(message, &event); err != nil {
		logger.Printf("Error parsing block event: %v", err)
		return
	}
	if event.Coin == "" || event.Height == 0 {
		return
	}

	block, settled, err := l.settler.SettleBlock(ctx, event.Coin, event.Height, event.Reward, event.ChainBlockID)
	switch {
	case errors.Is(err, settle.ErrNoSharesToDistribute):
		// Retryable: the event was not consumed and no Block row exists yet.
		logger.Printf("Block %s/%d found with no shares to distribute; will settle on redelivery",
			event.Coin, event.Height)
		l.stats.Count(OutcomeDeferred)
	case err != nil:
		logger.Printf("Error settling block %s/%d: %v", event.Coin, event.Height, err)
		l.stats.Count(OutcomeFailed)
	case !settled:
		logger.Printf("Block %s/%d already settled at %s", block.Coin, block.Height, block.CreatedAt)
		l.stats.Count(OutcomeSkipped)
	default:
		l.stats.Count(OutcomeSettled)
	}
}
