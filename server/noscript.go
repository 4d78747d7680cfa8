package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

// htmlEscape replaces the five characters that are unsafe inside HTML
// attribute values with entity references. strings.Replacer substitutes in
// a single pass, so the entities it introduces are never escaped again.
func htmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"'", "&#39;",
		`"`, "&quot;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

func nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// serveNoscript renders the no-script upload form. GET re-submits to
// itself to let the user pick a path and mode; the rendered form's own
// action then targets that path for the actual POST.
func (s *Server) serveNoscript(w http.ResponseWriter, r *http.Request) {
	n := nonce()

	q := r.URL.Query()
	path := q.Get("path")
	mode := q.Get("mode")
	if mode != "text" {
		mode = "file"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Piping (no script)</title>\n")
	b.WriteString("<style nonce=\"" + n + "\">body{font-family:sans-serif}</style>\n</head>\n<body>\n")
	b.WriteString("<h1>Piping (no script)</h1>\n")

	if path == "" {
		// Step 1: choose a path and mode. This form re-submits to /noscript
		// itself via GET.
		b.WriteString("<form method=\"GET\" action=\"/noscript\">\n")
		b.WriteString("<label>Path: <input type=\"text\" name=\"path\" value=\"" + htmlEscape(path) + "\"></label><br>\n")
		b.WriteString("<label><input type=\"radio\" name=\"mode\" value=\"file\" checked> File</label>\n")
		b.WriteString("<label><input type=\"radio\" name=\"mode\" value=\"text\"> Text</label><br>\n")
		b.WriteString("<button type=\"submit\">Next</button>\n")
		b.WriteString("</form>\n")
	} else {
		// Step 2/3: submit the actual payload to the chosen path.
		escapedPath := htmlEscape(path)
		b.WriteString("<form method=\"POST\" action=\"" + escapedPath + "\" enctype=\"multipart/form-data\">\n")
		if mode == "text" {
			b.WriteString("<label>Text: <textarea name=\"input\"></textarea></label><br>\n")
		} else {
			b.WriteString("<label>File: <input type=\"file\" name=\"input\"></label><br>\n")
		}
		b.WriteString("<button type=\"submit\">Send to " + escapedPath + "</button>\n")
		b.WriteString("</form>\n")
	}

	b.WriteString("</body>\n</html>\n")

	// The page is rendered for HEAD too, so both methods carry the same
	// Content-Length.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'nonce-"+n+"'")
	w.Header().Set("Content-Length", strconv.Itoa(b.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(b.String()))
	}
}
