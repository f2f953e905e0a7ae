package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"sync/atomic"

	fractal "github.com/marben/fractile"
	"golang.org/x/image/draw"
)

// event is the JSON message pushed to clients.
type event struct {
	Type            string  `json:"type"`
	Status          string  `json:"status,omitempty"`
	TilesTotal      int     `json:"tiles_total"`
	TilesDone       int     `json:"tiles_done"`
	TilesDispatched int     `json:"tiles_dispatched"`
	InFlight        int     `json:"in_flight"`
	PointsFinished  int64   `json:"points_finished"`
	PointsInSet     int64   `json:"points_in_set"`
	Iterations      int64   `json:"total_iterations"`
	ElapsedSeconds  float64 `json:"elapsed_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func newEvent(typ string, s fractal.Snapshot) event {
	e := event{
		Type:            typ,
		Status:          s.Status.String(),
		TilesTotal:      s.TilesTotal,
		TilesDone:       s.TilesDone,
		TilesDispatched: s.TilesDispatched,
		InFlight:        s.InFlight,
		PointsFinished:  s.Statistics.PointsFinished,
		PointsInSet:     s.Statistics.PointsInSet,
		Iterations:      s.Statistics.TotalIterations,
	}
	if !s.Statistics.FinishTime.IsZero() {
		e.ElapsedSeconds = s.Statistics.FinishTime.Sub(s.Statistics.StartTime).Seconds()
	}
	return e
}

func errorEvent(err error) frame {
	return frame{msg: event{Type: "error", Error: err.Error()}}
}

// frame is one outgoing message: msg is sent as JSON, png as a binary message.
type frame struct {
	msg any
	png []byte
}

type subscriber struct {
	frames  chan frame
	dropped atomic.Int64
}

// send queues f unless the subscriber is too far behind.
func (s *subscriber) send(f frame) bool {
	select {
	case s.frames <- f:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

const subscriberQueue = 64

// hub fans engine notifications out to websocket subscribers. It is the
// engine's observer and never blocks it.
type hub struct {
	log      *slog.Logger
	previews chan struct{}

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		log:      log,
		previews: make(chan struct{}, 1),
		subs:     make(map[*subscriber]struct{}),
	}
}

func (h *hub) subscribe() *subscriber {
	s := &subscriber{frames: make(chan frame, subscriberQueue)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	if n := s.dropped.Load(); n > 0 {
		h.log.Debug("subscriber missed frames", "dropped", n)
	}
}

func (h *hub) broadcast(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.send(f)
	}
}

func (h *hub) notify(typ string, s fractal.Snapshot) {
	h.broadcast(frame{msg: newEvent(typ, s)})
	select {
	case h.previews <- struct{}{}:
	default:
	}
}

func (h *hub) Started(s fractal.Snapshot)  { h.notify("started", s) }
func (h *hub) Progress(s fractal.Snapshot) { h.notify("progress", s) }
func (h *hub) Finished(s fractal.Snapshot) { h.notify("finished", s) }

type canvasSource interface {
	Canvas() *image.RGBA
}

// runPreviews sends a scaled PNG of the canvas after notifications, at most
// one at a time. Notifications arriving while a preview is encoded collapse
// into one.
func (h *hub) runPreviews(ctx context.Context, src canvasSource, width int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.previews:
		}
		img := src.Canvas()
		if img == nil {
			continue
		}
		data, err := encodePreview(img, width)
		if err != nil {
			h.log.Warn("cannot encode preview", "err", err)
			continue
		}
		h.broadcast(frame{png: data})
	}
}

// encodePreview scales img down to width pixels, keeping its aspect ratio.
func encodePreview(img *image.RGBA, width int) ([]byte, error) {
	b := img.Bounds()
	var out image.Image = img
	if width > 0 && b.Dx() > width {
		dst := image.NewRGBA(image.Rect(0, 0, width, max(b.Dy()*width/b.Dx(), 1)))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
