package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

// ErrConnClosed is returned when using a closed connection.
var ErrConnClosed = errors.New("bridge: connection closed")

// Conn carries protocol messages. Write is safe for concurrent use; Read
// is called from one goroutine. Read returns io.EOF when the peer is gone
// and *ProtocolError for a bad frame.
type Conn interface {
	Read() (Message, error)
	Write(msg Message) error
	Close() error
}

const maxMessageSize = 16 << 20

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, &ProtocolError{Payload: string(payload), Err: err}
	}
	if msg.Type == "" {
		return Message{}, &ProtocolError{Payload: string(payload), Err: errors.New("missing type")}
	}
	return msg, nil
}

// streamConn speaks newline-delimited JSON over a reader and writer.
type streamConn struct {
	scanner *bufio.Scanner
	closer  io.Closer

	wmu    sync.Mutex
	w      io.Writer
	closed bool
}

// NewStreamConn returns a JSON-lines Conn, typically over stdin/stdout.
// If r is an io.Closer, Close closes it.
func NewStreamConn(r io.Reader, w io.Writer) Conn {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxMessageSize)
	c := &streamConn{scanner: sc, w: w}
	if rc, ok := r.(io.Closer); ok {
		c.closer = rc
	}
	return c
}

func (c *streamConn) Read() (Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return decodeMessage(line)
	}
	if err := c.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

func (c *streamConn) Write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	_, err = c.w.Write(append(data, '\n'))
	return err
}

func (c *streamConn) Close() error {
	c.wmu.Lock()
	c.closed = true
	c.wmu.Unlock()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

const (
	writeDeadline = 5 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// wsConn carries one message per websocket text frame.
type wsConn struct {
	conn *gws.Conn

	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

// NewWebSocketConn wraps an upgraded websocket and starts its keepalive.
func NewWebSocketConn(conn *gws.Conn) Conn {
	c := &wsConn{conn: conn, done: make(chan struct{})}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

func (c *wsConn) Read() (Message, error) {
	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			var ce *gws.CloseError
			if errors.As(err, &ce) {
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		if msgType != gws.TextMessage {
			continue
		}
		return decodeMessage(payload)
	}
}

func (c *wsConn) Write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(gws.TextMessage, data)
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.wmu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			err := c.conn.WriteMessage(gws.PingMessage, nil)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		close(c.done)
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = c.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}
