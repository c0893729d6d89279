package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// CloseInvalidToken is sent when the first message is not a valid auth.
	CloseInvalidToken = 4001
	// CloseAuthTimeout is sent when no auth arrives within the auth window.
	CloseAuthTimeout = 4002

	writeTimeout = 2 * time.Second
	// maxMessageSize caps inbound frames; transcripts are far smaller.
	maxMessageSize = 64 << 10
)

type peer struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	closed        bool
}

func newPeer(id string, conn *websocket.Conn, logger *slog.Logger) *peer {
	return &peer{id: id, conn: conn, logger: logger}
}

// authenticate marks the peer as authenticated unless it has already been closed.
func (p *peer) authenticate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.authenticated = true
	return true
}

func (p *peer) isAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// closeIfUnauthenticated closes with code unless auth already succeeded.
func (p *peer) closeIfUnauthenticated(code int, text string) bool {
	p.mu.Lock()
	if p.authenticated || p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	p.mu.Unlock()

	p.sendClose(code, text)
	return true
}

func (p *peer) close(code int, text string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.sendClose(code, text)
}

func (p *peer) sendClose(code int, text string) {
	// WriteControl and Close are safe alongside other writers.
	msg := websocket.FormatCloseMessage(code, text)
	if err := p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		p.logger.Debug("close frame not delivered", "code", code, "error", err)
	}
	_ = p.conn.Close()
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(v)
}
