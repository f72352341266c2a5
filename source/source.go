// Package source reads and writes lean result trees as JSON through a
// pluggable driver. Numbers decode as json.Number so integers survive round
// trips unchanged.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Decoder reads consecutive JSON values from a stream.
type Decoder interface {
	Decode(v any) error
	More() bool
}

// Driver is the JSON implementation behind the package functions. The
// default is backed by goccy/go-json; StdJSON falls back to encoding/json.
type Driver interface {
	Name() string
	// NewDecoder returns a decoder with number preservation enabled.
	NewDecoder(r io.Reader) Decoder
	Marshal(v any) ([]byte, error)
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
}

var (
	driverMu      sync.RWMutex
	currentDriver Driver = GoJSON()
)

// SetDriver replaces the global driver; nil values are ignored.
func SetDriver(d Driver) {
	if d == nil {
		return
	}
	driverMu.Lock()
	currentDriver = d
	driverMu.Unlock()
}

// UseDefaultDriver restores the go-json driver.
func UseDefaultDriver() { SetDriver(GoJSON()) }

// CurrentDriver returns the driver in use.
func CurrentDriver() Driver {
	driverMu.RLock()
	d := currentDriver
	driverMu.RUnlock()
	return d
}

// Decode reads exactly one JSON value from r. Trailing data is an error.
func Decode(r io.Reader) (any, error) {
	dec := CurrentDriver().NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode: unexpected data after top-level value")
	}
	return v, nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(b []byte) (any, error) { return Decode(bytes.NewReader(b)) }

// DecodeDocument reads one JSON object.
func DecodeDocument(b []byte) (map[string]any, error) {
	v, err := DecodeBytes(b)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode: expected an object, got %s", kindOf(v))
	}
	return m, nil
}

// Encode writes v followed by a newline. indent pretty-prints with two spaces.
func Encode(w io.Writer, v any, indent bool) error {
	var (
		b   []byte
		err error
	)
	if indent {
		b, err = CurrentDriver().MarshalIndent(v, "", "  ")
	} else {
		b, err = CurrentDriver().Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// Marshal encodes v compactly.
func Marshal(v any) ([]byte, error) { return CurrentDriver().Marshal(v) }

// DocumentReader yields the objects of a newline-delimited JSON stream.
type DocumentReader struct {
	dec Decoder
	n   int
}

// NewDocumentReader reads documents from r.
func NewDocumentReader(r io.Reader) *DocumentReader {
	return &DocumentReader{dec: CurrentDriver().NewDecoder(r)}
}

// Next returns the next document or io.EOF.
func (d *DocumentReader) Next() (map[string]any, error) {
	var v any
	if err := d.dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("document %d: %w", d.n, err)
	}
	d.n++
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document %d: expected an object, got %s", d.n-1, kindOf(v))
	}
	return m, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
