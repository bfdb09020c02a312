package lavago

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socket owns the node's single WS connection: dial, a send queue and a
// read loop. Generalized from the teacher's Socket (same dial/send-chan
// shape) to v4 framing and headers; reconnection is now owned by Node's
// state machine rather than recursed into here (spec §4.4).
type socket struct {
	dialer       *websocket.Dialer
	url          string
	conn         *websocket.Conn
	sendChan     chan wsSend
	dataReceived func([]byte)
	closed       func(code int, reason string)
	mu           sync.RWMutex
	open         bool
}

type wsSend struct {
	data    []byte
	errChan chan error
}

func newSocket(url string) *socket {
	return &socket{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
		},
		url:          url,
		dataReceived: func([]byte) {},
		closed:       func(int, string) {},
	}
}

func (s *socket) connect(headers http.Header) error {
	conn, _, err := s.dialer.Dial(s.url, headers)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.open = true
	s.sendChan = make(chan wsSend)
	s.mu.Unlock()
	go s.sendLoop()
	go s.readLoop()
	return nil
}

func (s *socket) sendLoop() {
	s.mu.RLock()
	ch := s.sendChan
	conn := s.conn
	s.mu.RUnlock()
	for msg := range ch {
		msg.errChan <- conn.WriteMessage(websocket.TextMessage, msg.data)
	}
}

func (s *socket) readLoop() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNoStatusReceived
			reason := err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			}
			s.mu.Lock()
			s.open = false
			s.mu.Unlock()
			s.closed(code, reason)
			return
		}
		s.dataReceived(data)
	}
}

func (s *socket) send(data []byte) error {
	s.mu.RLock()
	open := s.open
	ch := s.sendChan
	s.mu.RUnlock()
	if !open {
		return errTransport(ErrNodeProtocolError, "", 0, nil, "socket not connected")
	}
	errChan := make(chan error, 1)
	ch <- wsSend{data: data, errChan: errChan}
	return <-errChan
}

func (s *socket) isOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// close sends a close frame with the given code/reason then shuts the
// underlying TCP connection down. code 1000/"destroy" marks a clean,
// intentional close that must not trigger reconnect (spec §4.4).
func (s *socket) close(code int, reason string) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	conn := s.conn
	s.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return conn.Close()
}
