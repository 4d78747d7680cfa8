// Package listen binds the piping relay's HTTP and (optionally) HTTPS
// listeners and runs them concurrently until ctx is cancelled.
//
// The two listeners are supervised independently: the HTTP listener always
// runs, the HTTPS listener runs only when enabled, and a fatal error on
// either is logged without tearing down the other. A relay with TLS
// configured wrong shouldn't take down plaintext service for existing
// unencrypted clients. The error is still reported once both listeners
// have stopped, so the process ultimately exits non-zero.
package listen

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"piping-relay/server"
	"piping-relay/tlsconfig"
)

// Serve binds and runs the configured listeners. It blocks until ctx is
// cancelled or every listener has stopped, shuts the servers down
// gracefully on cancellation, and returns the first listener failure so a
// bind or certificate error surfaces as a non-zero process exit.
func Serve(ctx context.Context, cfg server.Config, handler http.Handler, watcher *tlsconfig.Watcher, log *logrus.Logger) error {
	// A plain zero-value Group, not WithContext: one listener failing must
	// not cancel the other, so the group's cancel-on-first-error context is
	// deliberately left unused. Wait still collects both results and
	// surfaces the first error.
	var g errgroup.Group

	httpSrv := &http.Server{
		Addr:    joinHostPort(cfg.Host, cfg.HTTPPort),
		Handler: handler,
	}
	g.Go(func() error {
		return runListener(ctx, httpSrv, log, "http")
	})

	var httpsSrv *http.Server
	if cfg.HTTPSEnabled {
		httpsSrv = &http.Server{
			Addr:    joinHostPort(cfg.Host, cfg.HTTPSPort),
			Handler: handler,
			TLSConfig: &tls.Config{
				GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
					return watcher.Current(), nil
				},
			},
		}
		g.Go(func() error {
			return runListenerTLS(ctx, httpsSrv, log)
		})
	}

	return g.Wait()
}

func runListener(ctx context.Context, srv *http.Server, log *logrus.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("listener", name).Error("listener stopped")
			return err
		}
		return nil
	}
}

func runListenerTLS(ctx context.Context, srv *http.Server, log *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		// certFile/keyFile are empty: the real pair is supplied per-handshake
		// by TLSConfig.GetConfigForClient set in Serve.
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("listener", "https").Error("listener stopped")
			return err
		}
		return nil
	}
}

func joinHostPort(host string, port uint16) string {
	return host + ":" + strconv.Itoa(int(port))
}
