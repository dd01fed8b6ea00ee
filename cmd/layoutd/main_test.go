package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LAYOUTD_CONFIG_FILE", filepath.Join(dir, "absent.yaml"))
	return dir
}

func TestRunRequiresLayout(t *testing.T) {
	isolateConfig(t)
	var stderr bytes.Buffer
	if code := run(context.Background(), nil, &stderr); code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "please specify a layout file") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestRunBadLayout(t *testing.T) {
	dir := isolateConfig(t)
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--no-discovery", filepath.Join(dir, "missing.touchosc")}, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
}

func TestRunExplicitMissingConfig(t *testing.T) {
	dir := isolateConfig(t)
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", filepath.Join(dir, "nope.yaml"), "x.touchosc"}, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
}

func TestRunVersion(t *testing.T) {
	isolateConfig(t)
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"--version"}, &stderr); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "layoutd version=dev") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	dir := isolateConfig(t)
	path := filepath.Join(dir, "Mixer.touchosc")
	if err := os.WriteFile(path, []byte(`<layout version="8"/>`), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"--no-discovery", "--host", "127.0.0.1", "-p", "0", "--log-level", "none", path}, &bytes.Buffer{})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("exit code %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancellation")
	}
}
