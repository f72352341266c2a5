package source

import (
	"io"

	j "github.com/goccy/go-json"
)

// GoJSON returns the goccy/go-json driver.
func GoJSON() Driver { return driverGoJSON{} }

type driverGoJSON struct{}

func (driverGoJSON) Name() string { return "go-json" }

func (driverGoJSON) NewDecoder(r io.Reader) Decoder {
	dec := j.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func (driverGoJSON) Marshal(v any) ([]byte, error) { return j.Marshal(v) }

func (driverGoJSON) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return j.MarshalIndent(v, prefix, indent)
}
