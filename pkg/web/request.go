package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Decoder represents data that can be decoded.
type Decoder interface {
	Decode(data []byte) error
}

type validator interface {
	Validate() error
}

// Decode reads the body of an HTTP request and decodes it into the specified
// value. Values implementing Decoder decode themselves; anything else is
// treated as JSON. Values implementing Validate are validated afterwards.
func Decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("request: unable to read payload: %w", err)
	}

	if d, ok := v.(Decoder); ok {
		if err := d.Decode(data); err != nil {
			return fmt.Errorf("request: decode: %w", err)
		}
	} else if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("request: decode: %w", err)
	}

	if val, ok := v.(validator); ok {
		if err := val.Validate(); err != nil {
			return err
		}
	}

	return nil
}
