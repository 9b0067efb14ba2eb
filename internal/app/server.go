package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/render"
)

// shutdownGrace bounds how long Serve waits for open requests on exit.
const shutdownGrace = 5 * time.Second

// Handler returns the HTTP endpoints of the host:
//
//	/ws?path=<file>       websocket for one editor surface
//	/preview?path=<file>  rendered HTML of the file
//	/metrics              activity counters as JSON
//	/healthz              liveness probe
func (app *Application) Handler() http.Handler {
	up := channel.Upgrader(app.opts.AllowAnyOrigin)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, ErrMissingPath.Error(), http.StatusBadRequest)
			return
		}
		if _, err := os.Stat(path); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		t, err := channel.Upgrade(&up, w, r)
		if err != nil {
			// The upgrader has already replied.
			app.logger.Warn("upgrade %s: %v", r.RemoteAddr, err)
			return
		}
		s, err := app.Open(path, t)
		if err != nil {
			app.logComponentError("server", err)
			_ = t.Close()
			return
		}
		app.logger.Info("session %s opened %s", s.ID(), path)
	})

	mux.HandleFunc("GET /preview", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, ErrMissingPath.Error(), http.StatusBadRequest)
			return
		}
		timer := StartTimer()
		out, err := app.Preview(path)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		app.metrics.RecordRender(timer.Elapsed())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(app.metrics.Snapshot())
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if app.IsShutdown() {
			http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Preview renders the markdown file at path the way the editor surface
// shows it, with local images mapped to the resource origin.
func (app *Application) Preview(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", NewOperationError("render", path, err)
	}
	out, err := render.New().Render(string(src))
	if err != nil {
		return "", NewOperationError("render", path, err)
	}
	return out, nil
}

// Serve listens on the configured address until ctx is canceled, then
// shuts the server and the application down.
func (app *Application) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.opts.Addr)
	if err != nil {
		return NewComponentError("server", "listen", err)
	}
	return app.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (app *Application) ServeListener(ctx context.Context, ln net.Listener) error {
	if app.IsShutdown() {
		_ = ln.Close()
		return ErrNotRunning
	}
	if app.running.Swap(true) {
		_ = ln.Close()
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)

	app.mu.Lock()
	app.baseCtx = ctx
	app.mu.Unlock()

	srv := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		app.logger.Info("listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return NewComponentError("server", "serve", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		var errs ErrorList
		if err := srv.Shutdown(sctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrShutdownTimeout
			}
			errs.Add(NewComponentError("server", "shutdown", err))
		}
		errs.Add(app.Shutdown())
		return errs.AsError()
	})

	return g.Wait()
}
