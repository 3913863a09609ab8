// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_signaling wraps a WebSocket connection in a duplex,
// order-preserving signaling channel. All writes are funnelled through a
// single writer goroutine so messages are delivered in send order per
// direction; the channel never reconnects — when it dies the owner tears
// down dependent state and decides whether to start a new call.
package internal_signaling

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

const (
	// sendQueueSize bounds the writer queue: ~30s of 100ms audio chunks.
	sendQueueSize = 300
	// recvQueueSize bounds decoded inbound messages.
	recvQueueSize = 300

	writeTimeout = 10 * time.Second
)

var errClosed = errors.New("channel closed")

// Channel is a duplex signaling connection. Safe for concurrent use.
type Channel struct {
	logger commons.Logger
	conn   *websocket.Conn

	sendCh chan internal_protocol.Message
	recvCh chan internal_protocol.Message

	closeOnce sync.Once
	closedCh  chan struct{}

	mu       sync.Mutex
	closeErr error
}

// NewChannel wraps an established WebSocket connection (dialed or accepted)
// and starts its reader and writer loops.
func NewChannel(conn *websocket.Conn, logger commons.Logger) *Channel {
	c := &Channel{
		logger:   logger,
		conn:     conn,
		sendCh:   make(chan internal_protocol.Message, sendQueueSize),
		recvCh:   make(chan internal_protocol.Message, recvQueueSize),
		closedCh: make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Dial opens a signaling channel to the given ws:// or wss:// URL.
func Dial(ctx context.Context, url string, header http.Header, logger commons.Logger) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, &internal_type.SignalingError{Op: "dial", Err: err}
	}
	return NewChannel(conn, logger), nil
}

// Send enqueues a message for ordered delivery. It fails once the channel is
// closed and never blocks longer than the writer queue allows.
func (c *Channel) Send(msg internal_protocol.Message) error {
	select {
	case <-c.closedCh:
		return &internal_type.SignalingError{Op: "send", Err: errClosed}
	default:
	}

	select {
	case c.sendCh <- msg:
		return nil
	case <-c.closedCh:
		return &internal_type.SignalingError{Op: "send", Err: errClosed}
	}
}

// Receive returns the stream of decoded inbound messages. The channel is
// closed after the connection dies and the last buffered message is drained.
func (c *Channel) Receive() <-chan internal_protocol.Message {
	return c.recvCh
}

// Closed fires once the channel is terminally closed, whatever the cause.
func (c *Channel) Closed() <-chan struct{} {
	return c.closedCh
}

// Err reports why the channel closed; nil for a local Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close tears the channel down. Idempotent.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Channel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		c.mu.Unlock()

		// Best-effort close frame; the peer sees a clean close when possible.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		close(c.closedCh)
	})
}

func (c *Channel) readLoop() {
	defer close(c.recvCh)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.shutdown(nil)
			} else {
				c.shutdown(&internal_type.SignalingError{Op: "read", Err: err})
			}
			return
		}

		msg, err := internal_protocol.Unmarshal(data)
		if err != nil {
			// Malformed frames are a protocol violation, not a channel
			// failure: log and drop.
			c.logger.Warnw("dropping malformed signaling frame", "error", err)
			continue
		}

		select {
		case c.recvCh <- msg:
		case <-c.closedCh:
			return
		default:
			c.logger.Warnw("inbound signaling queue full, dropping message",
				"type", msg.MessageType())
		}
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.closedCh:
			return
		case msg := <-c.sendCh:
			data, err := internal_protocol.Marshal(msg)
			if err != nil {
				c.logger.Errorw("failed to encode signaling message",
					"type", msg.MessageType(), "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(&internal_type.SignalingError{Op: "write", Err: err})
				return
			}
		}
	}
}
