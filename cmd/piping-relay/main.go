// Command piping-relay runs the HTTP streaming relay: a sender POSTs or
// PUTs to a path, a receiver GETs the same path, and the server streams the
// sender's body to the receiver without buffering it to disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"piping-relay/listen"
	"piping-relay/middleware"
	"piping-relay/server"
	"piping-relay/tlsconfig"
)

var version = "dev"

type options struct {
	host        string
	httpPort    uint16
	enableHTTPS bool
	httpsPort   uint16
	crtPath     string
	keyPath     string
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the piping-relay root command.
func NewRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "piping-relay",
		Short:   "Stream a request body from a sender to a receiver on a shared path",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "address to listen on")
	cmd.Flags().Uint16Var(&opts.httpPort, "http-port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&opts.enableHTTPS, "enable-https", false, "also listen on an HTTPS port")
	cmd.Flags().Uint16Var(&opts.httpsPort, "https-port", 0, "HTTPS listen port (required with --enable-https)")
	cmd.Flags().StringVar(&opts.crtPath, "crt-path", "", "TLS certificate path (required with --enable-https)")
	cmd.Flags().StringVar(&opts.keyPath, "key-path", "", "TLS private key path (required with --enable-https)")

	return cmd
}

func run(opts options) error {
	if opts.enableHTTPS && (opts.httpsPort == 0 || opts.crtPath == "" || opts.keyPath == "") {
		return fmt.Errorf("--https-port, --crt-path and --key-path are required when --enable-https is set")
	}

	log := logrus.New()
	if lvl := os.Getenv("PIPING_LOG_LEVEL"); lvl != "" {
		parsed, err := logrus.ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("invalid PIPING_LOG_LEVEL %q: %w", lvl, err)
		}
		log.SetLevel(parsed)
	}

	cfg := server.Config{
		Host:         opts.host,
		HTTPPort:     opts.httpPort,
		HTTPSEnabled: opts.enableHTTPS,
		HTTPSPort:    opts.httpsPort,
		CertPath:     opts.crtPath,
		KeyPath:      opts.keyPath,
		Version:      version,
	}

	var watcher *tlsconfig.Watcher
	if cfg.HTTPSEnabled {
		w, err := tlsconfig.NewWatcher(cfg.CertPath, cfg.KeyPath, log)
		if err != nil {
			return fmt.Errorf("load tls certificate: %w", err)
		}
		watcher = w
	}

	handler := middleware.Chain(
		middleware.Recover(log),
		middleware.Logging(log),
	)(server.NewServer(cfg, log))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.WithFields(logrus.Fields{
		"host":          cfg.Host,
		"http_port":     cfg.HTTPPort,
		"https_enabled": cfg.HTTPSEnabled,
	}).Info("starting piping-relay")

	return listen.Serve(ctx, cfg, handler, watcher, log)
}
