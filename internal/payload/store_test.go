package payload

import (
	"bytes"
	"errors"
	"testing"
)

type stubSource struct {
	name string
	data []byte
	err  error
}

func (s stubSource) Name() string           { return s.name }
func (s stubSource) Bytes() ([]byte, error) { return s.data, s.err }

func TestNewCopiesInput(t *testing.T) {
	in := []byte("<layout/>")
	s := New("MyLayout", in)
	in[0] = 'X'
	if !bytes.Equal(s.Bytes(), []byte("<layout/>")) {
		t.Fatalf("store aliased caller slice: %q", s.Bytes())
	}
	if s.Len() != 9 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestFilename(t *testing.T) {
	s := New("MyLayout", nil)
	if got := s.Filename("touchosc"); got != "MyLayout.touchosc" {
		t.Fatalf("got %q", got)
	}
	if got := s.Filename(""); got != "MyLayout" {
		t.Fatalf("got %q", got)
	}
}

func TestFromSource(t *testing.T) {
	s, err := FromSource(stubSource{name: "a", data: []byte("b")})
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	if s.Name() != "a" || string(s.Bytes()) != "b" {
		t.Fatalf("unexpected store %q %q", s.Name(), s.Bytes())
	}

	boom := errors.New("boom")
	if _, err := FromSource(stubSource{name: "a", err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
