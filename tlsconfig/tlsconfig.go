// Package tlsconfig loads a TLS certificate/key pair and keeps serving it
// hot-swappable: a Watcher reloads the pair whenever either file changes on
// disk, without requiring a server restart.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilt-dev/fsnotify"
)

// Load reads a PEM certificate/key pair from disk and builds a *tls.Config
// ready to hand to an http.Server. No ecosystem library improves on
// tls.LoadX509KeyPair for a pair that is already on disk in PEM form, so
// this step stays on the standard library.
func Load(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Watcher holds the current *tls.Config and keeps it refreshed from disk.
// GetConfigForClient reads Current() on every TLS handshake, so a reload
// takes effect for the very next incoming connection.
type Watcher struct {
	current  atomic.Pointer[tls.Config]
	certPath string
	keyPath  string
	log      *logrus.Logger
}

// NewWatcher loads the initial config and starts watching certPath and
// keyPath's containing directories for changes. Editors and ACME clients
// typically replace a certificate file by renaming a new one over it, which
// fsnotify reports against the directory rather than the file itself, so
// the parent directory is what gets watched.
func NewWatcher(certPath, keyPath string, log *logrus.Logger) (*Watcher, error) {
	cfg, err := Load(certPath, keyPath)
	if err != nil {
		return nil, err
	}

	w := &Watcher{certPath: certPath, keyPath: keyPath, log: log}
	w.current.Store(cfg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dirs := map[string]bool{
		filepath.Dir(certPath): true,
		filepath.Dir(keyPath):  true,
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go w.loop(fsw)
	return w, nil
}

// Current returns the most recently loaded TLS config.
func (w *Watcher) Current() *tls.Config {
	return w.current.Load()
}

// loop debounces reload-worthy filesystem events (a certificate rotation
// typically touches both the cert and key file in quick succession) and
// reloads the pair on each settle. A reload failure is logged and the
// previous working config is kept in place rather than torn down.
func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer fsw.Close()

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			_ = event
			if debounce == nil {
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("tls watcher error")
		case <-reload:
			cfg, err := Load(w.certPath, w.keyPath)
			if err != nil {
				w.log.WithError(err).Error("tls certificate reload failed, keeping previous config")
				continue
			}
			w.current.Store(cfg)
			w.log.Info("tls certificate reloaded")
		}
	}
}
