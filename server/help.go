package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const helpTemplate = `Help for piping-relay
=====================

Usage: send data through a path, receive it on the same path.

- Get:
    curl %[1]s

- Send a file:
    curl -T myfile %[1]s

- Send a directory (zip):
    zip -r - ./mydir | curl -T - %[1]s

- Send a directory (tar):
    tar cf - ./mydir | curl -T - %[1]s

- Encrypt and send:
    cat myfile | openssl aes-256-cbc -e | curl -T - %[1]s

- Receive and decrypt:
    curl %[1]s | openssl aes-256-cbc -d
`

// helpText renders the usage examples. Scheme is https if this connection
// is TLS or the request carries X-Forwarded-Proto: https*, else http.
// Falls back to "http://hostname/" if the Host header doesn't parse.
func (s *Server) helpText(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}

	host := r.Host
	base, err := url.Parse(scheme + "://" + host)
	if err != nil || base.Host == "" {
		return fmt.Sprintf(helpTemplate, "http://hostname/mypath")
	}

	base.Path = "/mypath"
	return fmt.Sprintf(helpTemplate, base.String())
}
