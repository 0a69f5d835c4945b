// Package bridge exposes a workflow.Machine over a websocket.
//
// Clients send JSON Requests and receive JSON Events. Every connection gets
// a snapshot on connect and then every state transition, in order. Analyze,
// summarize and answer run in the background and finish with a "done" or
// "error" event carrying the request ID; the other requests reply
// immediately. All connections share the one machine, so a background
// action keeps running when the client that started it disconnects. It is
// only cancelled by Server.Close.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/storage"
	"github.com/haivivi/explainer/pkg/workflow"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	maxFileSize    = 64 << 20
)

// Config configures a Server.
type Config struct {
	// Machine is driven by every connection. Required.
	Machine *workflow.Machine

	// Store receives exports requested with Save and serves fetch and
	// delete requests. Optional.
	Store storage.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is an http.Handler upgrading requests to websocket sessions.
type Server struct {
	machine  *workflow.Machine
	store    storage.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// ctx scopes background actions. It outlives any one connection.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:     ctx,
		cancel:  cancel,
		machine: cfg.Machine,
		store:   cfg.Store,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Close cancels the background actions still running and waits for them to
// return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// ServeHTTP upgrades the request and serves the connection until the client
// goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("bridge: upgrade failed", "err", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		s:      s,
		ws:     ws,
		send:   make(chan Event, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: s.logger.With("remote", r.RemoteAddr),
	}
	c.logger.Info("bridge: client connected")

	snap := s.machine.Snapshot()
	c.push(Event{Type: TypeSnapshot, Snapshot: &snap})
	unsubscribe := s.machine.Subscribe(func(t workflow.Transition) {
		c.push(Event{Type: TypeTransition, Transition: &t})
	})

	go c.writePump()
	c.readPump()

	unsubscribe()
	cancel()
	ws.Close()
	c.logger.Info("bridge: client disconnected")
}

type conn struct {
	s      *Server
	ws     *websocket.Conn
	send   chan Event
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// push queues ev without blocking. A client too slow to drain its queue is
// disconnected, since dropping a transition would break ordering.
func (c *conn) push(ev Event) {
	select {
	case <-c.ctx.Done():
	case c.send <- ev:
	default:
		c.logger.Warn("bridge: client too slow, disconnecting")
		c.cancel()
		c.ws.Close()
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("bridge: write failed", "err", err)
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("bridge: read failed", "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.push(Event{Type: TypeError, Error: "invalid request: " + err.Error()})
			continue
		}
		c.handle(req)
	}
}

func (c *conn) handle(req Request) {
	m := c.s.machine
	c.logger.Debug("bridge: request", "type", req.Type, "id", req.ID)
	switch req.Type {
	case TypeAnalyze:
		tone, err := ai.ParseTone(req.Tone)
		if err != nil {
			c.fail(req, err)
			return
		}
		level, err := ai.ParseLevel(req.Level)
		if err != nil {
			c.fail(req, err)
			return
		}
		c.background(req, func(ctx context.Context) error {
			return m.Analyze(ctx, ai.ScriptRequest{Text: req.Text, Tone: tone, Level: level})
		})
	case TypeSummarize:
		c.background(req, func(ctx context.Context) error {
			return m.Summarize(ctx, req.Text)
		})
	case TypeAnswer:
		c.background(req, func(ctx context.Context) error {
			return m.Answer(ctx, req.Question)
		})
	case TypeStop:
		m.Stop()
		c.push(Event{ID: req.ID, Type: TypeAck})
	case TypeReplay:
		if err := m.Replay(); err != nil {
			c.fail(req, err)
			return
		}
		c.push(Event{ID: req.ID, Type: TypeAck})
	case TypeGain:
		v := m.SetGain(req.Value)
		c.push(Event{ID: req.ID, Type: TypeAck, Value: &v})
	case TypeRate:
		v := m.SetRate(req.Value)
		c.push(Event{ID: req.ID, Type: TypeAck, Value: &v})
	case TypeSnapshot:
		snap := m.Snapshot()
		c.push(Event{ID: req.ID, Type: TypeSnapshot, Snapshot: &snap})
	case TypeHistory:
		c.push(Event{ID: req.ID, Type: TypeHistory, History: m.History(c.ctx)})
	case TypeExport:
		file, err := c.export(req)
		if err != nil {
			c.fail(req, err)
			return
		}
		c.push(Event{ID: req.ID, Type: TypeExport, File: file})
	case TypeFetch:
		file, err := c.fetch(req)
		if err != nil {
			c.fail(req, err)
			return
		}
		c.push(Event{ID: req.ID, Type: TypeFetch, File: file})
	case TypeDelete:
		if err := c.delete(req); err != nil {
			c.fail(req, err)
			return
		}
		c.push(Event{ID: req.ID, Type: TypeAck})
	default:
		c.fail(req, fmt.Errorf("unknown request type %q", req.Type))
	}
}

// background runs a long action off the read loop, on the server context.
// The reply is dropped if the client has gone by then.
func (c *conn) background(req Request, fn func(ctx context.Context) error) {
	s := c.s
	if err := s.ctx.Err(); err != nil {
		c.fail(req, errors.New("server is shutting down"))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			c.fail(req, err)
			return
		}
		c.push(Event{ID: req.ID, Type: TypeDone})
	}()
}

func (c *conn) fail(req Request, err error) {
	c.push(Event{ID: req.ID, Type: TypeError, Error: errorText(err)})
}

func (c *conn) export(req Request) (*File, error) {
	m := c.s.machine
	var (
		file File
		err  error
	)
	switch req.What {
	case "audio", "":
		file.Name = workflow.AudioFilename
		if req.Rate != 0 && req.Rate != 1 {
			file.Data, err = m.ExportAudioAt(req.Rate)
		} else {
			file.Data, err = m.ExportAudio()
		}
	case "script":
		file.Name = workflow.ScriptFilename
		file.Data, err = m.ExportScript()
	default:
		return nil, fmt.Errorf("unknown export %q", req.What)
	}
	if err != nil {
		return nil, err
	}
	file.ContentType = storage.ContentType(file.Name)
	if req.Save {
		if c.s.store == nil {
			return nil, errors.New("no export store configured")
		}
		file.Location, err = c.s.store.Save(c.ctx, file.Name, file.Data)
		if err != nil {
			return nil, err
		}
		c.logger.Info("bridge: export saved", "location", file.Location, "bytes", len(file.Data))
	}
	return &file, nil
}

// savedName is the store name a fetch or delete request refers to: Name
// when set, else the export file for What.
func savedName(req Request) (string, error) {
	if req.Name != "" {
		return req.Name, nil
	}
	switch req.What {
	case "audio", "":
		return workflow.AudioFilename, nil
	case "script":
		return workflow.ScriptFilename, nil
	}
	return "", fmt.Errorf("unknown export %q", req.What)
}

func (c *conn) fetch(req Request) (*File, error) {
	if c.s.store == nil {
		return nil, errors.New("no export store configured")
	}
	name, err := savedName(req)
	if err != nil {
		return nil, err
	}
	ok, err := c.s.store.Exists(c.ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s has not been saved", name)
	}
	rc, err := c.s.store.Open(c.ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", name, maxFileSize)
	}
	return &File{Name: name, ContentType: storage.ContentType(name), Data: data}, nil
}

func (c *conn) delete(req Request) error {
	if c.s.store == nil {
		return errors.New("no export store configured")
	}
	name, err := savedName(req)
	if err != nil {
		return err
	}
	if err := c.s.store.Delete(c.ctx, name); err != nil {
		return err
	}
	c.logger.Info("bridge: saved export deleted", "name", name)
	return nil
}

func errorText(err error) string {
	if errors.Is(err, ai.ErrGeneration) {
		return ai.Message(err)
	}
	return err.Error()
}
