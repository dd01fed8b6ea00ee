// Package layout loads TouchOSC layouts from disk.
//
// A layout is either a zipped .touchosc bundle holding an index.xml entry, or
// a bare index.xml. The XML is parsed once and re-serialized; nothing about
// its element structure is checked beyond having a root element.
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/zip"
)

// IndexEntry is the archive member holding the layout XML.
const IndexEntry = "index.xml"

var zipMagic = []byte("PK\x03\x04")

// SourceError reports a path that does not hold a usable layout.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("layout source %q: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ErrNoIndex is returned for archives without an index.xml entry.
var ErrNoIndex = errors.New("archive has no " + IndexEntry)

// ErrNoRoot is returned when the content parses but has no root element.
var ErrNoRoot = errors.New("no root element")

// Layout is a parsed TouchOSC layout.
type Layout struct {
	name string
	doc  *etree.Document
}

// Load reads the layout at path.
func Load(path string) (*Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	l, err := Parse(nameFromPath(path), b)
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	return l, nil
}

// Parse builds a layout called name from raw file content, zipped or not.
func Parse(name string, b []byte) (*Layout, error) {
	xml := b
	if bytes.HasPrefix(b, zipMagic) {
		var err error
		if xml, err = readIndex(b); err != nil {
			return nil, err
		}
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if doc.Root() == nil {
		return nil, ErrNoRoot
	}
	return &Layout{name: name, doc: doc}, nil
}

func readIndex(b []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != IndexEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", IndexEntry, err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, ErrNoIndex
}

// nameFromPath strips the extension; a bare index.xml takes its directory's name.
func nameFromPath(path string) string {
	base := filepath.Base(path)
	if strings.EqualFold(base, IndexEntry) {
		if dir := filepath.Base(filepath.Dir(path)); dir != "." && dir != string(filepath.Separator) {
			return dir
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name is the layout name, used as the download file name.
func (l *Layout) Name() string { return l.name }

// String returns the layout name.
func (l *Layout) String() string { return l.name }

// Root returns the tag of the root element.
func (l *Layout) Root() string { return l.doc.Root().Tag }

// Bytes serializes the layout XML.
func (l *Layout) Bytes() ([]byte, error) {
	return l.doc.WriteToBytes()
}
