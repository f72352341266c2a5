package source

import (
	"encoding/json"
	"io"
)

// StdJSON returns the encoding/json driver.
func StdJSON() Driver { return driverStd{} }

type driverStd struct{}

func (driverStd) Name() string { return "encoding/json" }

func (driverStd) NewDecoder(r io.Reader) Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func (driverStd) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (driverStd) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}
