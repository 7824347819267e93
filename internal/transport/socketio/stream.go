// Package socketio receives job push events from the execution service over
// its Socket.IO endpoint (Engine.IO v4, websocket transport only).
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/transport"
)

const (
	defaultPath       = "/socket.io/"
	defaultMaxBackoff = 30 * time.Second
	minBackoff        = 500 * time.Millisecond
)

// ErrNotConnected is returned by Watch while the stream is down. The watch is
// still remembered and sent on the next connect.
var ErrNotConnected = errors.New("push stream not connected")

// Stream is a reconnecting Socket.IO client. Reconnection is owned here; the
// session only sees a long-running Run.
type Stream struct {
	url        string
	dialer     *websocket.Dialer
	maxBackoff time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	watched map[string]struct{}
}

// Options configures the push stream. Jar should be the REST client's jar so
// the websocket carries the same session cookie.
type Options struct {
	Path       string
	Jar        http.CookieJar
	MaxBackoff time.Duration
}

// New prepares a stream for baseURL. Nothing is dialled until Run.
func New(baseURL string, opts Options) (*Stream, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	path := opts.Path
	if path == "" {
		path = defaultPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()

	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	return &Stream{
		url: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Jar:              opts.Jar,
		},
		maxBackoff: maxBackoff,
		watched:    make(map[string]struct{}),
	}, nil
}

// Run keeps a connection open and feeds events to h until ctx is done.
func (s *Stream) Run(ctx context.Context, h transport.StreamHandler) error {
	backoff := minBackoff
	for {
		connected, err := s.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("push stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// Watch asks the service to replay jobID's current state.
func (s *Stream) Watch(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[jobID] = struct{}{}
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.emitLocked("subscribe_job", map[string]string{"job_id": jobID})
}

// session runs one connection. connected reports whether the handshake
// completed.
func (s *Stream) session(ctx context.Context, h transport.StreamHandler) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// unblock reads when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hs, err := handshake(conn)
	if err != nil {
		return false, err
	}
	log.Info().Str("sid", hs.SID).Msg("push stream connected")

	s.mu.Lock()
	s.conn = conn
	for id := range s.watched {
		if err := s.emitLocked("subscribe_job", map[string]string{"job_id": id}); err != nil {
			log.Debug().Err(err).Str("job_id", id).Msg("re-subscribe failed")
		}
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	deadline := hs.PingInterval + hs.PingTimeout
	for {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if err := s.dispatch(ctx, string(data), h); err != nil {
			return true, err
		}
	}
}

type openPacket struct {
	SID          string        `json:"sid"`
	PingInterval time.Duration `json:"-"`
	PingTimeout  time.Duration `json:"-"`
}

// handshake reads the Engine.IO open packet and joins the default namespace.
// TODO: replace the framing with github.com/zishang520/socket.io's client once
// it is confirmed to dial with a shared cookie jar.
func handshake(conn *websocket.Conn) (openPacket, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return openPacket{}, fmt.Errorf("read open packet: %w", err)
	}
	msg := string(data)
	if !strings.HasPrefix(msg, "0") {
		return openPacket{}, fmt.Errorf("unexpected first packet %q", msg)
	}
	var raw struct {
		SID          string `json:"sid"`
		PingInterval int64  `json:"pingInterval"`
		PingTimeout  int64  `json:"pingTimeout"`
	}
	if err := json.Unmarshal([]byte(msg[1:]), &raw); err != nil {
		return openPacket{}, fmt.Errorf("parse open packet: %w", err)
	}
	op := openPacket{
		SID:          raw.SID,
		PingInterval: time.Duration(raw.PingInterval) * time.Millisecond,
		PingTimeout:  time.Duration(raw.PingTimeout) * time.Millisecond,
	}
	if op.PingInterval <= 0 {
		op.PingInterval = 25 * time.Second
	}
	if op.PingTimeout <= 0 {
		op.PingTimeout = 20 * time.Second
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return openPacket{}, fmt.Errorf("namespace connect: %w", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		return openPacket{}, fmt.Errorf("read connect ack: %w", err)
	}
	switch ack := string(data); {
	case strings.HasPrefix(ack, "40"):
	case strings.HasPrefix(ack, "44"):
		return openPacket{}, fmt.Errorf("namespace refused: %s", ack[2:])
	default:
		return openPacket{}, fmt.Errorf("unexpected connect ack %q", ack)
	}
	return op, nil
}

func (s *Stream) dispatch(ctx context.Context, msg string, h transport.StreamHandler) error {
	if msg == "" {
		return nil
	}
	switch msg[0] {
	case '2':
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn == nil {
			return ErrNotConnected
		}
		return s.conn.WriteMessage(websocket.TextMessage, []byte("3"))
	case '1':
		return errors.New("server closed the connection")
	case '4':
		return s.handleSocketPacket(ctx, msg[1:], h)
	}
	return nil
}

func (s *Stream) handleSocketPacket(ctx context.Context, pkt string, h transport.StreamHandler) error {
	if pkt == "" {
		return nil
	}
	switch pkt[0] {
	case '1':
		return errors.New("namespace disconnected")
	case '2':
		name, payload, err := decodeEvent(pkt[1:])
		if err != nil {
			log.Debug().Err(err).Msg("dropping malformed event")
			return nil
		}
		s.handleEvent(ctx, name, payload, h)
	}
	return nil
}

// decodeEvent splits `[optional ack id]["name", payload]`.
func decodeEvent(body string) (string, json.RawMessage, error) {
	i := strings.IndexByte(body, '[')
	if i < 0 {
		return "", nil, fmt.Errorf("no event array in %q", body)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body[i:]), &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty event")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name: %w", err)
	}
	var payload json.RawMessage
	if len(parts) > 1 {
		payload = parts[1]
	}
	return name, payload, nil
}

func (s *Stream) handleEvent(ctx context.Context, name string, payload json.RawMessage, h transport.StreamHandler) {
	switch name {
	case "job_update":
		var u transport.JobUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			log.Debug().Err(err).Msg("dropping malformed job_update")
			return
		}
		if u.Data.ID == "" {
			u.Data.ID = u.JobID
		}
		h.HandleJobUpdate(ctx, u)
	case "job_log":
		var l transport.JobLog
		if err := json.Unmarshal(payload, &l); err != nil {
			log.Debug().Err(err).Msg("dropping malformed job_log")
			return
		}
		h.HandleJobLog(ctx, l)
	case "connected":
		log.Debug().RawJSON("payload", payload).Msg("server greeting")
	default:
		log.Debug().Str("event", name).Msg("ignoring event")
	}
}

func (s *Stream) emitLocked(name string, payload any) error {
	b, err := json.Marshal([]any{name, payload})
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, append([]byte("42"), b...))
}
