// Package status serves a read-only HTTP view of a running node.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inconshreveable/log15"
	"github.com/ngrok/standby"
	"github.com/pkg/errors"
)

// Source is implemented by *standby.Node.
type Source interface {
	Status() standby.Status
}

// Router returns the status routes:
//
//	GET /healthz  always 200 "ok"
//	GET /status   the node's Status as JSON
func Router(src Source) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", healthz)
	r.Get("/status", statusHandler(src))
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

func statusHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(src.Status())
	}
}

// shutdownTimeout bounds how long in-flight requests get once ctx is done.
const shutdownTimeout = 5 * time.Second

// Serve serves h on l until ctx is canceled.
func Serve(ctx context.Context, logger log15.Logger, l net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	logger.Info("serving status", "addr", l.Addr())

	select {
	case err := <-errc:
		return errors.Wrap(err, "status server failed")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "status server shutdown")
	}
	return nil
}
