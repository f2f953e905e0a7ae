package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	fractal "github.com/marben/fractile"
)

const writeTimeout = 10 * time.Second

// command is a client request. Op is "render", "stop" or "status".
type command struct {
	Op     string            `json:"op"`
	Params *fractal.Document `json:"params,omitempty"`
}

// controller is the part of render.Engine the server drives.
type controller interface {
	Start(fractal.Params) error
	Stop()
	Snapshot() fractal.Snapshot
}

type server struct {
	log    *slog.Logger
	hub    *hub
	engine controller
	// dir replaces the storage directory of every render request
	dir     string
	static  fs.FS
	origins []string
}

// handler serves the static client on / and the websocket endpoint on /ws.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.websocketHandler)
	mux.Handle("/", http.FileServerFS(s.static))
	return mux
}

func (s *server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("websocket accept", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer c.CloseNow()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)
	s.log.Info("client connected", "remote", r.RemoteAddr)
	sub.send(frame{msg: newEvent("status", s.engine.Snapshot())})

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return writeLoop(ctx, c, sub) })
	g.Go(func() error { return s.readLoop(ctx, c, sub) })
	err = g.Wait()

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.log.Info("client disconnected", "remote", r.RemoteAddr)
	default:
		if errors.Is(err, context.Canceled) {
			s.log.Info("client closed on shutdown", "remote", r.RemoteAddr)
			return
		}
		s.log.Warn("client dropped", "remote", r.RemoteAddr, "err", err)
	}
}

func (s *server) readLoop(ctx context.Context, c *websocket.Conn, sub *subscriber) error {
	for {
		var cmd command
		if err := wsjson.Read(ctx, c, &cmd); err != nil {
			return err
		}
		s.handle(cmd, sub)
	}
}

func (s *server) handle(cmd command, sub *subscriber) {
	switch cmd.Op {
	case "render":
		if cmd.Params == nil {
			sub.send(errorEvent(errors.New("render: missing params")))
			return
		}
		p, err := cmd.Params.Params()
		if err == nil {
			p.Storage.Directory = s.dir
			err = s.engine.Start(p)
		}
		if err != nil {
			sub.send(errorEvent(fmt.Errorf("render: %w", err)))
			return
		}
		s.log.Info("render requested", "name", p.Name, "width", p.Width, "height", p.Height)
	case "stop":
		s.engine.Stop()
	case "status":
		sub.send(frame{msg: newEvent("status", s.engine.Snapshot())})
	default:
		sub.send(errorEvent(fmt.Errorf("unknown op %q", cmd.Op)))
	}
}

// writeLoop is the only writer of c.
func writeLoop(ctx context.Context, c *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-sub.frames:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			var err error
			if f.msg != nil {
				err = wsjson.Write(wctx, c, f.msg)
			} else {
				err = c.Write(wctx, websocket.MessageBinary, f.png)
			}
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
