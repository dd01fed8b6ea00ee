package handler

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gaspardpetit/layoutd/internal/logx"
	"github.com/gaspardpetit/layoutd/internal/payload"
)

// serveOnce accepts a single connection on a loopback listener and hands it
// to h. The ServeConn result is delivered on the returned channel.
func serveOnce(t *testing.T, h *Handler) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer func() { _ = conn.Close() }()
		done <- h.ServeConn(conn)
	}()
	return ln.Addr().String(), done
}

func newHandler(name, body string) *Handler {
	return New(payload.New(name, []byte(body)), Options{
		MediaType: "application/x-touchosc-layout",
		Extension: "touchosc",
		Timeout:   5 * time.Second,
	}, logx.Nop())
}

func TestServeConnAnyPathAndMethod(t *testing.T) {
	body := "<xml>...</xml>"
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/anything"},
		{http.MethodGet, "/"},
		{http.MethodGet, "/deep/path?x=1&y=2"},
		{http.MethodPost, "/upload"},
		{http.MethodPut, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h := newHandler("MyLayout", body)
			addr, done := serveOnce(t, h)

			req, err := http.NewRequest(tt.method, "http://"+addr+tt.path, strings.NewReader("ignored"))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			got, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status=%d", resp.StatusCode)
			}
			if string(got) != body {
				t.Fatalf("body=%q", got)
			}
			if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="MyLayout.touchosc"` {
				t.Fatalf("Content-Disposition=%q", cd)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/x-touchosc-layout" {
				t.Fatalf("Content-Type=%q", ct)
			}
			if resp.ContentLength != int64(len(body)) {
				t.Fatalf("Content-Length=%d", resp.ContentLength)
			}
			if err := <-done; err != nil {
				t.Fatalf("ServeConn: %v", err)
			}
		})
	}
}

func TestServeConnMalformedRequest(t *testing.T) {
	var logs bytes.Buffer
	h := New(payload.New("x", []byte("y")), Options{Timeout: time.Second}, logx.Writer(&logs))
	addr, done := serveOnce(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("this is not http\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	err = <-done
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if ce.Phase != "read" {
		t.Fatalf("phase=%q", ce.Phase)
	}
}

func TestServeConnEmptyConnectionIsQuiet(t *testing.T) {
	var logs bytes.Buffer
	h := New(payload.New("x", []byte("y")), Options{Timeout: 5 * time.Second}, logx.Writer(&logs))
	addr, done := serveOnce(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()

	if err := <-done; err != nil {
		t.Fatalf("expected no error for an empty connection, got %v", err)
	}
	if strings.Contains(logs.String(), "ERR") {
		t.Fatalf("unexpected error log: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "DBG connection from") {
		t.Fatalf("expected debug line, got %q", logs.String())
	}
}

func TestServeConnClientGoesAwayMidRequest(t *testing.T) {
	h := newHandler("x", "y")
	addr, done := serveOnce(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, _ = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n"))
	_ = conn.Close()

	var ce *ConnectionError
	if err := <-done; !errors.As(err, &ce) || ce.Phase != "read" {
		t.Fatalf("expected read ConnectionError, got %v", err)
	}
}

func TestServeConnHonoursDeadline(t *testing.T) {
	const timeout = 50 * time.Millisecond
	h := New(payload.New("x", []byte("y")), Options{Timeout: timeout}, nil)
	addr, done := serveOnce(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	start := time.Now()
	// A complete request line, then stall inside the headers.
	_, _ = conn.Write([]byte("GET / HTTP/1.1\r\n"))

	select {
	case err := <-done:
		elapsed := time.Since(start)
		var ce *ConnectionError
		if !errors.As(err, &ce) || ce.Phase != "read" {
			t.Fatalf("expected read ConnectionError, got %v", err)
		}
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			t.Fatalf("expected timeout cause, got %v", err)
		}
		if elapsed > time.Second {
			t.Fatalf("deadline took %s", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not give up on a stalled client")
	}
}

func TestDispositionEscapesQuotes(t *testing.T) {
	h := New(payload.New(`My "Big" Layout`, nil), Options{Extension: "touchosc"}, nil)
	if got, want := h.Disposition(), `attachment; filename="My \"Big\" Layout.touchosc"`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
