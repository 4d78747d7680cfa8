// Package server implements the HTTP surface: method/path dispatch,
// reserved-path handling, CORS/preflight, request validation, and the
// static/dynamic resource pages. Rendezvous itself is delegated to the pipe
// package.
//
// Dispatch is a flat switch over the method rather than a router library:
// every non-reserved path is a valid rendezvous target, so there is no
// route tree to match against.
package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"piping-relay/pipe"
)

// reservedPaths are the paths the server handles itself; POST/PUT to any of
// these is rejected.
var reservedPaths = map[string]bool{
	"/":            true,
	"/noscript":    true,
	"/version":     true,
	"/help":        true,
	"/favicon.ico": true,
	"/robots.txt":  true,
}

// Server is the piping relay's HTTP handler.
type Server struct {
	cfg   Config
	table *pipe.Table
	log   *logrus.Logger
}

// NewServer creates a Server bound to the given configuration. log receives
// per-request and per-transfer diagnostics.
func NewServer(cfg Config, log *logrus.Logger) *Server {
	return &Server{
		cfg:   cfg,
		table: pipe.NewTable(log),
		log:   log,
	}
}

// ServeHTTP routes by method first, then by whether the path is reserved.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch r.Method {
	case http.MethodOptions:
		s.handlePreflight(w, r)
	case http.MethodGet, http.MethodHead:
		if reservedPaths[path] {
			s.handleReserved(w, r, path)
			return
		}
		s.handleReceive(w, r, path)
	case http.MethodPost, http.MethodPut:
		if reservedPaths[path] {
			writeTextError(w, http.StatusBadRequest, fmt.Sprintf("[ERROR] Cannot send to the reserved path '%s'. (e.g. '/mypath123')\n", path))
			return
		}
		s.handleSend(w, r, path)
	default:
		writeTextError(w, http.StatusMethodNotAllowed, fmt.Sprintf("[ERROR] Unsupported method: %s.\n", r.Method))
	}
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Disposition, X-Piping")
	h.Set("Access-Control-Expose-Headers", "Access-Control-Allow-Headers")
	h.Set("Access-Control-Max-Age", "86400")
	if r.Header.Get("Access-Control-Request-Private-Network") == "true" {
		h.Set("Access-Control-Allow-Private-Network", "true")
	}
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

// handleReserved answers GET/HEAD on one of the fixed reserved paths. HEAD
// must match GET's status and headers, so every branch sets headers
// identically for both methods and only skips the body write for HEAD.
// Content-Length is set explicitly because net/http only computes it for a
// response whose body was actually written.
func (s *Server) handleReserved(w http.ResponseWriter, r *http.Request, path string) {
	switch path {
	case "/":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Length", strconv.Itoa(len(indexHTML)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(indexHTML))
		}
	case "/noscript":
		s.serveNoscript(w, r)
	case "/version":
		body := fmt.Sprintf("%s (Go)\n", s.cfg.Version)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(body))
		}
	case "/help":
		body := s.helpText(r)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(body))
		}
	case "/favicon.ico":
		w.WriteHeader(http.StatusNoContent)
	case "/robots.txt":
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleReceive validates and runs a GET/HEAD request as a rendezvous
// receiver.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request, path string) {
	if msg, ok := validateN(r); !ok {
		writeTextError(w, http.StatusBadRequest, msg)
		return
	}
	if r.Header.Get("Service-Worker") == "script" {
		writeTextError(w, http.StatusBadRequest, "[ERROR] Service Worker registration is rejected.\n")
		return
	}

	deliveryCh, err := s.table.EnterAsReceiver(r.Context(), path)
	if err != nil {
		writeTextError(w, http.StatusBadRequest, fmt.Sprintf("[ERROR] %s\n", err.Error()))
		return
	}

	select {
	case delivery, ok := <-deliveryCh:
		if !ok {
			// Multipart peeling failed sender-side: no valid body was ever
			// produced. Abort rather than send a bogus 200.
			panic(http.ErrAbortHandler)
		}
		for k, values := range delivery.Header {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		if _, ok := delivery.Header["Content-Type"]; !ok {
			// not to sniff: a sender that omitted Content-Type must yield a
			// receiver response without one, but net/http sniffs the body
			// unless the key itself is present.
			w.Header()["Content-Type"] = nil
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			s.copyBody(w, delivery.Body)
		}
		_ = delivery.Body.Close()
	case <-r.Context().Done():
		// Receiver gave up before a sender ever arrived; the slot is left
		// for the next arrival to find stale.
		return
	}
}

// handleSend validates and runs a POST/PUT request as a rendezvous sender.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, path string) {
	if msg, ok := validateN(r); !ok {
		writeTextError(w, http.StatusBadRequest, msg)
		return
	}
	if len(r.Header.Values("Content-Range")) != 0 {
		writeTextError(w, http.StatusBadRequest, fmt.Sprintf("[ERROR] Content-Range is not supported for now in %s\n", r.Method))
		return
	}

	// The receiver reads r.Body while this handler writes progress lines.
	// Without full duplex, net/http closes an unread request body as soon as
	// this response's headers are flushed.
	_ = http.NewResponseController(w).EnableFullDuplex()

	messages, err := s.table.EnterAsSender(r)
	if err != nil {
		writeTextError(w, http.StatusBadRequest, fmt.Sprintf("[ERROR] %s\n", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_, _ = fmt.Fprintln(w, msg)
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// copyBody streams the receiver's body, flushing after each chunk so
// backpressure runs receiver to network to sender with no buffering.
func (s *Server) copyBody(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// validateN checks the "n" query parameter: absent defaults to 1, and only
// 1 is accepted.
func validateN(r *http.Request) (errMsg string, ok bool) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return "", true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "[ERROR] Invalid \"n\" query parameter.\n", false
	}
	if n == 0 {
		return "[ERROR] n should > 0, but n = 0.\n", false
	}
	if n > 1 {
		return "[ERROR] n > 1 not supported yet.\n", false
	}
	return "", true
}

func writeTextError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
