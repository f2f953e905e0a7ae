// fractald serves a browser client that starts and stops renders and watches
// them progress over a websocket.
package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/sync/errgroup"

	"github.com/marben/fractile/cache"
	"github.com/marben/fractile/render"
)

//go:embed static
var embedded embed.FS

type cli struct {
	Addr           string        `arg:"--addr" default:":8080" help:"listen address"`
	Static         string        `arg:"--static" help:"serve the web client from this directory instead of the built-in one"`
	Dir            string        `arg:"--dir" help:"storage directory for the disk cache, pictures and statistics"`
	Origins        []string      `arg:"--origin,separate" help:"extra websocket origin patterns to accept"`
	Workers        int           `arg:"-j,--workers" help:"tiles rendered concurrently [default: processors-1]"`
	TileSize       int           `arg:"--tile-size" default:"100"`
	PreviewWidth   int           `arg:"--preview-width" default:"640" help:"maximum width of the pushed previews"`
	UpdateInterval time.Duration `arg:"--update-interval" default:"500ms" help:"minimum time between progress messages"`
	Verbose        bool          `arg:"-v,--verbose"`
}

func main() {
	var args cli
	arg.MustParse(&args)
	if err := run(args); err != nil {
		log.Fatalf("run: %v", err)
	}
}

func run(args cli) error {
	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	h := newHub(logger)
	eng := render.New(store,
		render.WithWorkers(args.Workers),
		render.WithTileSize(args.TileSize),
		render.WithLogger(logger),
		render.WithObserver(h),
		render.WithUpdateInterval(args.UpdateInterval),
	)
	defer eng.Close()

	static, err := staticFS(args.Static)
	if err != nil {
		return err
	}
	srv := &server{
		log:     logger,
		hub:     h,
		engine:  eng,
		dir:     args.Dir,
		static:  static,
		origins: args.Origins,
	}
	httpServer := &http.Server{
		Addr:              args.Addr,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", args.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return h.runPreviews(gctx, eng, args.PreviewWidth)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		eng.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

func staticFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "static")
}
