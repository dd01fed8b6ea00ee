// Package handler answers a single layout download per connection.
package handler

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gaspardpetit/layoutd/internal/logx"
	"github.com/gaspardpetit/layoutd/internal/metrics"
	"github.com/gaspardpetit/layoutd/internal/payload"
)

// Options controls the fixed response.
type Options struct {
	MediaType string
	Extension string
	// Timeout bounds reading the request and writing the response. Zero
	// disables the deadline.
	Timeout time.Duration
}

// ConnectionError is a per-connection fault. It never stops the listener.
type ConnectionError struct {
	Remote string
	Phase  string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %s: %v", e.Remote, e.Phase, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "", "\n", "")

// Handler serves the same download for every request, whatever its method,
// path or query.
type Handler struct {
	store       *payload.Store
	timeout     time.Duration
	header      http.Header
	disposition string
	log         logx.Logger
}

// New builds a handler over store. The response headers are computed once.
func New(store *payload.Store, opts Options, log logx.Logger) *Handler {
	if log == nil {
		log = logx.Nop()
	}
	disposition := `attachment; filename="` + quoteEscaper.Replace(store.Filename(opts.Extension)) + `"`
	h := http.Header{}
	h.Set("Content-Type", opts.MediaType)
	h.Set("Content-Disposition", disposition)
	return &Handler{store: store, timeout: opts.Timeout, header: h, disposition: disposition, log: log}
}

// Disposition returns the Content-Disposition value sent with every response.
func (h *Handler) Disposition() string { return h.disposition }

// ServeConn reads one request from conn and writes the payload back. The
// caller owns conn and closes it afterwards.
func (h *Handler) ServeConn(conn net.Conn) error {
	remote := conn.RemoteAddr().String()
	if h.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(h.timeout))
	}

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err == io.EOF {
		// Connected and hung up without a byte, as TCP health checks do.
		h.log.Debugf("connection from %s closed before sending a request", remote)
		return nil
	}
	if err != nil {
		metrics.ConnectionFailed()
		return &ConnectionError{Remote: remote, Phase: "read", Err: err}
	}
	_, _ = io.Copy(io.Discard, req.Body)
	_ = req.Body.Close()
	h.log.Debugf("%s %s %s from %s", req.Method, req.URL.RequestURI(), req.Proto, remote)

	resp := &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h.header.Clone(),
		ContentLength: int64(h.store.Len()),
		Body:          io.NopCloser(bytes.NewReader(h.store.Bytes())),
		Close:         true,
	}
	w := bufio.NewWriter(conn)
	if err := resp.Write(w); err != nil {
		metrics.ConnectionFailed()
		return &ConnectionError{Remote: remote, Phase: "write", Err: err}
	}
	if err := w.Flush(); err != nil {
		metrics.ConnectionFailed()
		return &ConnectionError{Remote: remote, Phase: "write", Err: err}
	}
	metrics.ConnectionServed(h.store.Len())
	h.log.Infof("served %s (%d bytes) to %s", h.store.Filename(""), h.store.Len(), remote)
	return nil
}
