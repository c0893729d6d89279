package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"holdscribe/internal/domain"
	hlog "holdscribe/internal/log"
	"holdscribe/internal/ports"
)

// ErrNotLoopback is returned when a listener would be reachable from other hosts.
var ErrNotLoopback = errors.New("bridge must bind to a loopback address")

// Config controls the bridge listeners and timing.
type Config struct {
	Host            string
	ChannelPort     int
	BootstrapPort   int
	AuthTimeout     time.Duration
	RelaunchBackoff time.Duration
	// Token overrides the generated session token.
	Token string
}

// Bridge connects the controller to an out-of-process recognition engine. It serves
// the bootstrap page, runs the authenticated session channel and supervises the
// engine process.
type Bridge struct {
	cfg      Config
	token    string
	launcher ports.EngineLauncher
	clock    clockwork.Clock
	logger   *slog.Logger
	upgrader websocket.Upgrader

	events chan domain.EngineEvent
	done   chan struct{}

	channelLn   net.Listener
	bootstrapLn net.Listener

	// launchMu serializes engine launches.
	launchMu sync.Mutex

	mu            sync.Mutex
	peer          *peer
	conns         map[*peer]struct{}
	process       ports.EngineProcess
	procGen       uint64
	relaunchTimer clockwork.Timer
	relaunchSeq   uint64
	closed        bool
}

// New builds a bridge with a fresh session token. launcher may be nil when the
// engine is started by someone else.
func New(cfg Config, launcher ports.EngineLauncher, clk clockwork.Clock, logger *slog.Logger) (*Bridge, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.RelaunchBackoff <= 0 {
		cfg.RelaunchBackoff = 2 * time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.Token
	if token == "" {
		generated, err := NewToken()
		if err != nil {
			return nil, err
		}
		token = generated
	}

	b := &Bridge{
		cfg:      cfg,
		token:    token,
		launcher: launcher,
		clock:    clk,
		logger:   logger,
		events:   make(chan domain.EngineEvent, 64),
		done:     make(chan struct{}),
		conns:    make(map[*peer]struct{}),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     b.checkOrigin,
	}
	return b, nil
}

// Listen binds both loopback listeners. Port 0 picks a fresh ephemeral port.
func (b *Bridge) Listen() error {
	channelLn, err := listenLoopback(b.cfg.Host, b.cfg.ChannelPort)
	if err != nil {
		return fmt.Errorf("bind session channel: %w", err)
	}
	bootstrapLn, err := listenLoopback(b.cfg.Host, b.cfg.BootstrapPort)
	if err != nil {
		_ = channelLn.Close()
		return fmt.Errorf("bind bootstrap page: %w", err)
	}
	b.channelLn = channelLn
	b.bootstrapLn = bootstrapLn

	b.logger.Info("bridge listening",
		"channel", b.ChannelURL(),
		"bootstrap", b.BootstrapURL(),
		"token_prefix", tokenPrefix(b.token),
	)
	return nil
}

func listenLoopback(host string, port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || !addr.IP.IsLoopback() {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotLoopback, ln.Addr())
	}
	return ln, nil
}

// Serve runs both servers until ctx is cancelled, then shuts down and closes the bridge.
func (b *Bridge) Serve(ctx context.Context) error {
	if b.channelLn == nil || b.bootstrapLn == nil {
		return errors.New("bridge is not listening")
	}

	channelSrv := &http.Server{Handler: b.channelRoutes(), ReadHeaderTimeout: 5 * time.Second}
	bootstrapSrv := &http.Server{Handler: b.bootstrapRoutes(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 2)
	serve := func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}
	go serve(channelSrv, b.channelLn)
	go serve(bootstrapSrv, b.bootstrapLn)

	var serveErr error
	select {
	case <-ctx.Done():
		b.logger.Info("bridge shutting down")
	case err := <-errCh:
		serveErr = fmt.Errorf("bridge server error: %w", err)
	}

	b.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = channelSrv.Shutdown(shutdownCtx)
	_ = bootstrapSrv.Shutdown(shutdownCtx)
	return serveErr
}

// Close drops every connection, cancels pending relaunches and kills the engine.
// It is idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cancelRelaunchLocked()
	proc := b.process
	b.process = nil
	b.procGen++
	b.peer = nil
	conns := make([]*peer, 0, len(b.conns))
	for p := range b.conns {
		conns = append(conns, p)
	}
	b.mu.Unlock()

	close(b.done)
	for _, p := range conns {
		p.close(websocket.CloseGoingAway, "Shutting down")
	}
	if proc != nil {
		if err := proc.Kill(); err != nil {
			b.logger.Warn("engine kill failed", "error", err)
		}
	}
}

// Events delivers bridge observations in arrival order.
func (b *Bridge) Events() <-chan domain.EngineEvent {
	return b.events
}

// ChannelURL is the websocket endpoint the engine connects to.
func (b *Bridge) ChannelURL() string {
	if b.channelLn == nil {
		return ""
	}
	return "ws://" + b.channelLn.Addr().String() + "/"
}

// BootstrapURL is the page the engine process is pointed at.
func (b *Bridge) BootstrapURL() string {
	if b.bootstrapLn == nil {
		return ""
	}
	return "http://" + b.bootstrapLn.Addr().String() + "/"
}

// Connected reports whether an authenticated engine peer is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil
}

func (b *Bridge) SendStart() bool {
	return b.send(domain.MessageStart)
}

func (b *Bridge) SendStop() bool {
	return b.send(domain.MessageStop)
}

func (b *Bridge) send(kind domain.MessageKind) bool {
	b.mu.Lock()
	p := b.peer
	b.mu.Unlock()
	if p == nil {
		b.logger.Warn("command not sent, engine not connected", "command", kind)
		return false
	}
	if err := p.writeJSON(domain.TranscriptMessage{Kind: kind}); err != nil {
		b.logger.Warn("command send failed", "command", kind, "peer_id", p.id, "error", err)
		return false
	}
	return true
}

func (b *Bridge) emit(ev domain.EngineEvent) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *Bridge) channelRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", b.handleChannel)
	return r
}

// checkOrigin admits non-browser clients and the bootstrap page's own origin.
func (b *Bridge) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || b.bootstrapLn == nil {
		return false
	}
	return u.Host == b.bootstrapLn.Addr().String()
}

func (b *Bridge) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("session channel upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	p := newPeer(id, conn, hlog.WithPeer(b.logger, id))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		p.close(websocket.CloseGoingAway, "Shutting down")
		return
	}
	b.conns[p] = struct{}{}
	b.mu.Unlock()

	p.logger.Debug("session channel connection opened", "remote", r.RemoteAddr)

	authTimer := b.clock.AfterFunc(b.cfg.AuthTimeout, func() {
		if p.closeIfUnauthenticated(CloseAuthTimeout, "Auth timeout") {
			p.logger.Warn("session channel closed, no auth")
		}
	})
	defer authTimer.Stop()

	b.readLoop(p)
}

func (b *Bridge) readLoop(p *peer) {
	defer b.detach(p)

	for {
		_, payload, err := p.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				p.logger.Warn("session channel frame too large", "limit", maxMessageSize)
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseInvalidToken, CloseAuthTimeout) {
				p.logger.Debug("session channel read ended", "error", err)
			}
			return
		}

		var msg domain.TranscriptMessage
		decodeErr := json.Unmarshal(payload, &msg)

		if !p.isAuthenticated() {
			if decodeErr != nil || msg.NormalizedKind() != domain.MessageAuth || !ValidToken(msg.Token, b.token) {
				p.logger.Warn("session channel rejected", "error", domain.ErrInvalidToken)
				p.close(CloseInvalidToken, "Invalid token")
				return
			}
			if !b.attach(p) {
				return
			}
			continue
		}

		if decodeErr != nil {
			p.logger.Warn("ignoring malformed message", "error", decodeErr)
			continue
		}
		if !b.isCurrent(p) {
			p.logger.Debug("ignoring message from superseded peer", "type", msg.Kind)
			continue
		}

		switch {
		case msg.IsTranscript():
			p.logger.Info("transcript received", "length", len(msg.Text))
			b.emit(domain.EngineEvent{Kind: domain.EngineEventTranscript, Text: msg.Text, PeerID: p.id})
		case msg.NormalizedKind() == domain.MessageError:
			p.logger.Warn("engine reported error", "detail", msg.Error)
			b.emit(domain.EngineEvent{Kind: domain.EngineEventError, Detail: msg.Error, PeerID: p.id})
		default:
			p.logger.Debug("ignoring message", "type", msg.Kind)
		}
	}
}

// attach makes p the single authenticated peer, superseding any previous one.
func (b *Bridge) attach(p *peer) bool {
	if !p.authenticate() {
		return false
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		p.close(websocket.CloseGoingAway, "Shutting down")
		return false
	}
	previous := b.peer
	b.peer = p
	b.mu.Unlock()

	if previous != nil && previous != p {
		previous.logger.Info("session channel superseded", "by", p.id)
		previous.close(websocket.CloseNormalClosure, "Superseded")
	}

	if err := p.writeJSON(domain.TranscriptMessage{Kind: domain.MessageAuthOK}); err != nil {
		p.logger.Warn("auth_ok send failed", "error", err)
	}
	p.logger.Info("engine authenticated")
	b.emit(domain.EngineEvent{Kind: domain.EngineEventReady, PeerID: p.id})
	return true
}

func (b *Bridge) isCurrent(p *peer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer == p
}

// detach forgets p. Only the current peer's loss is reported.
func (b *Bridge) detach(p *peer) {
	p.close(websocket.CloseNormalClosure, "")

	b.mu.Lock()
	delete(b.conns, p)
	current := b.peer == p
	if current {
		b.peer = nil
	}
	b.mu.Unlock()

	if current {
		p.logger.Info("engine disconnected")
		b.emit(domain.EngineEvent{Kind: domain.EngineEventDisconnected, PeerID: p.id})
	}
}
