package jtd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrUnknownEncoding is returned when a document is neither verbose JTD nor
// JTD-min.
var ErrUnknownEncoding = errors.New("jtd: unrecognized schema encoding")

// Sniff reports which encoding data is written in. Verbose documents carry
// "metadata" or "definitions"; compact ones carry "md" or "def".
func Sniff(data []byte) (Encoding, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return "", fmt.Errorf("jtd: %w", err)
	}
	if _, ok := keys["metadata"]; ok {
		return Verbose, nil
	}
	if _, ok := keys["md"]; ok {
		return Compact, nil
	}
	if _, ok := keys["definitions"]; ok {
		return Verbose, nil
	}
	if _, ok := keys["def"]; ok {
		return Compact, nil
	}
	return "", ErrUnknownEncoding
}

// Decode parses a schema in either encoding.
func Decode(data []byte) (*Root, error) {
	enc, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	return DecodeAs(data, enc)
}

// DecodeAs parses a schema in the given encoding.
func DecodeAs(data []byte, enc Encoding) (*Root, error) {
	switch enc {
	case Verbose:
		var v verboseRoot
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("jtd: decode verbose schema: %w", err)
		}
		return v.toRoot()
	case Compact:
		var c compactRoot
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("jtd: decode compact schema: %w", err)
		}
		return c.toRoot()
	}
	return nil, ErrUnknownEncoding
}

// Load reads and decodes a schema file.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return r, nil
}

// Marshal encodes r in enc. An empty enc uses the encoding r was decoded from.
func Marshal(r *Root, enc Encoding) ([]byte, error) {
	if enc == "" {
		enc = r.Encoding
	}
	switch enc {
	case Verbose:
		return json.Marshal(verboseFromRoot(r))
	case Compact:
		return json.Marshal(compactFromRoot(r))
	}
	return nil, ErrUnknownEncoding
}

// EncodeType returns a JSON-marshalable form of t in enc.
func EncodeType(t *Type, enc Encoding) any {
	if enc == Compact {
		return compactFromType(t)
	}
	return verboseFromType(t)
}
