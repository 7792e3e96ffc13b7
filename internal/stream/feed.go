package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rawblock/muletrace-engine/internal/ingest"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Live Feed Client
//
// Connects to an external websocket transport that delivers individual
// transaction rows at arbitrary times, either as positional delimited lines
// (transaction_id,sender_id,receiver_id,amount,timestamp) or as JSON
// objects. Accepted rows go straight into the stream buffer; the flush
// runner picks them up on its next tick.
//
// Transport failure is recovered locally: the feed stops, buffered but
// unflushed rows are discarded, and the engine simply receives no further
// rows. No error surfaces into the analysis pipeline.

const feedDialTimeout = 10 * time.Second

// Feed is a single websocket subscription pushing rows into a Buffer.
type Feed struct {
	url    string
	buffer *Buffer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	wg     sync.WaitGroup
}

// feedMessage is the JSON envelope some transports wrap rows in. Either the
// flat row fields or a raw "row" line may be present.
type feedMessage struct {
	Row           string `json:"row"`
	TransactionID string `json:"transaction_id"`
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	Amount        string `json:"amount"`
	Timestamp     string `json:"timestamp"`
}

// NewFeed prepares a feed client for the given websocket URL.
func NewFeed(url string, buffer *Buffer) *Feed {
	return &Feed{url: url, buffer: buffer}
}

// Start dials the transport and begins delivering rows. It returns an error
// only when the initial dial fails.
func (f *Feed) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: feedDialTimeout}
	conn, resp, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("feed dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("feed dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.closed = false
	f.mu.Unlock()

	log.Printf("[Feed] Connected to %s", f.url)

	f.wg.Add(1)
	go f.readLoop()
	return nil
}

// Stop closes the transport and discards unflushed rows.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.closed = true
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()
	f.wg.Wait()
	f.buffer.Discard()
}

func (f *Feed) readLoop() {
	defer f.wg.Done()
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			wasClosed := f.closed
			f.conn = nil
			f.mu.Unlock()
			if !wasClosed {
				log.Printf("[Feed] Transport error, stopping feed: %v", err)
				f.buffer.Discard()
			}
			return
		}

		if row, ok := decodeFeedPayload(payload); ok {
			f.buffer.Append(row)
		}
	}
}

// decodeFeedPayload accepts either a JSON envelope or a raw delimited line.
func decodeFeedPayload(payload []byte) (models.Row, bool) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return models.Row{}, false
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		var msg feedMessage
		if err := json.Unmarshal([]byte(text), &msg); err == nil {
			if msg.Row != "" {
				return ingest.ParsePositional(msg.Row)
			}
			if strings.TrimSpace(msg.SenderID) != "" && strings.TrimSpace(msg.ReceiverID) != "" {
				return models.Row{
					TransactionID: msg.TransactionID,
					SenderID:      msg.SenderID,
					ReceiverID:    msg.ReceiverID,
					Amount:        msg.Amount,
					Timestamp:     msg.Timestamp,
				}, true
			}
			return models.Row{}, false
		}
	}

	return ingest.ParsePositional(text)
}
