package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	fractal "github.com/marben/fractile"
	"github.com/marben/fractile/cache"
	"github.com/marben/fractile/render"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := cache.New()
	if err != nil {
		t.Fatal(err)
	}
	h := newHub(logger)
	eng := render.New(store,
		render.WithObserver(h),
		render.WithTileSize(8),
		render.WithWorkers(2),
		render.WithUpdateInterval(0),
	)
	ctx, cancel := context.WithCancel(context.Background())
	go h.runPreviews(ctx, eng, 16)

	srv := &server{
		log:    logger,
		hub:    h,
		engine: eng,
		static: fstest.MapFS{"index.html": {Data: []byte("fractald client")}},
	}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = eng.Close()
		_ = store.Close()
	})
	return ts
}

func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })

	ev := readEvent(t, ctx, c)
	if ev.Type != "status" || ev.Status != "idle" {
		t.Fatalf("greeting = %+v", ev)
	}
	return c
}

// readEvent returns the next JSON message, skipping previews.
func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) event {
	t.Helper()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		return ev
	}
}

func TestRenderOverWebsocket(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := dial(t, ctx, ts)

	p := fractal.DefaultParams()
	p.Width, p.Height = 24, 16
	p.Depth = 60
	doc := p.Document()
	if err := wsjson.Write(ctx, c, command{Op: "render", Params: &doc}); err != nil {
		t.Fatal(err)
	}

	var finished *event
	previews := 0
	for finished == nil || previews == 0 {
		typ, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ == websocket.MessageBinary {
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("preview: %v", err)
			}
			if img.Bounds() != image.Rect(0, 0, 16, 10) {
				t.Errorf("preview bounds = %v", img.Bounds())
			}
			previews++
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		switch ev.Type {
		case "error":
			t.Fatalf("server error: %s", ev.Error)
		case "finished":
			finished = &ev
		}
	}
	if finished.Status != "idle" || finished.TilesDone != finished.TilesTotal || finished.PointsFinished != 24*16 {
		t.Errorf("finished = %+v", *finished)
	}

	if err := wsjson.Write(ctx, c, command{Op: "status"}); err != nil {
		t.Fatal(err)
	}
	for {
		ev := readEvent(t, ctx, c)
		if ev.Type == "status" {
			if ev.TilesTotal != 6 {
				t.Errorf("status = %+v", ev)
			}
			break
		}
	}
}

func TestBadCommands(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, ts)

	p := fractal.DefaultParams()
	p.Depth = 0
	doc := p.Document()
	for _, cmd := range []command{
		{Op: "render"},
		{Op: "render", Params: &doc},
		{Op: "explode"},
	} {
		if err := wsjson.Write(ctx, c, cmd); err != nil {
			t.Fatal(err)
		}
		ev := readEvent(t, ctx, c)
		if ev.Type != "error" || ev.Error == "" {
			t.Errorf("%s: got %+v, want an error", cmd.Op, ev)
		}
	}
}

func TestStaticClient(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "fractald client" {
		t.Errorf("GET / = %d %q", resp.StatusCode, body)
	}
}

func TestSlowSubscriberDropsFrames(t *testing.T) {
	h := newHub(slog.New(slog.DiscardHandler))
	s := h.subscribe()
	for range subscriberQueue + 5 {
		h.Progress(fractal.Snapshot{})
	}
	if len(s.frames) != subscriberQueue {
		t.Errorf("queued %d frames, want %d", len(s.frames), subscriberQueue)
	}
	if s.dropped.Load() != 5 {
		t.Errorf("dropped %d frames, want 5", s.dropped.Load())
	}
	h.unsubscribe(s)
	h.Progress(fractal.Snapshot{})
	if len(s.frames) != subscriberQueue {
		t.Error("unsubscribed subscriber still receives frames")
	}
}

func TestEncodePreviewKeepsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 5))
	data, err := encodePreview(img, 64)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("preview is %dx%d, want 10x5", cfg.Width, cfg.Height)
	}
}
