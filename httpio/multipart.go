package httpio

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
)

// ErrMultipart is returned when a request declares multipart/form-data but
// the body cannot be parsed as such, or yields no part.
var ErrMultipart = errors.New("httpio: multipart error")

// TransferPayload is the sender-side view of the bytes and headers that
// will be relayed to the receiver, after any multipart peeling.
type TransferPayload struct {
	ContentType           string
	HasContentType        bool
	ContentLength         int64
	HasContentLength      bool
	ContentDisposition    string
	HasContentDisposition bool
	Body                  io.ReadCloser
}

// Peel inspects the request's Content-Type. If it is not multipart/form-data
// (absent, unparseable, or a different essence), it returns the request's
// own content-* headers and body untouched. Otherwise it parses the first
// part of the multipart body and returns that part's content-* headers and
// body; later parts are never read.
func Peel(req *http.Request) (TransferPayload, error) {
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return rawPayload(req.Header, req.Body), nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		return TransferPayload{}, ErrMultipart
	}

	mr := multipart.NewReader(req.Body, boundary)
	part, err := mr.NextPart()
	if err != nil {
		return TransferPayload{}, ErrMultipart
	}

	payload := rawPayload(http.Header(part.Header), part)
	return payload, nil
}

func rawPayload(h http.Header, body io.ReadCloser) TransferPayload {
	var payload TransferPayload
	payload.Body = body

	if v := h.Get("Content-Type"); v != "" {
		payload.ContentType = v
		payload.HasContentType = true
	}
	if v := h.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			payload.ContentLength = n
			payload.HasContentLength = true
		}
	}
	if v := h.Get("Content-Disposition"); v != "" {
		payload.ContentDisposition = v
		payload.HasContentDisposition = true
	}
	return payload
}

// SetIfPresent sets header "name" on dst only if the sender actually
// carried it, so Content-Type, Content-Length, and Content-Disposition
// never appear on a response the sender never supplied them for.
func SetIfPresent(dst http.Header, name, value string, present bool) {
	if present {
		dst.Set(name, value)
	}
}

// AppendAll adds every entry of values to header "name" on dst, preserving
// order, used for X-Piping passthrough.
func AppendAll(dst http.Header, name string, values []string) {
	for _, v := range values {
		dst.Add(name, v)
	}
}
