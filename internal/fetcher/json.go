package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONList streams list elements from either a top-level array or, when
// key is non-empty, the array stored under key in a top-level object
// ({"items": [...]}). An object without the key yields no elements.
func DecodeJSONList[T any](ctx context.Context, r io.Reader, key string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}

		delim, _ := tok.(json.Delim)
		switch {
		case delim == '[':
		case delim == '{' && key != "":
			found, err := seekKey(dec, key)
			if err != nil {
				errCh <- err
				return
			}
			if !found {
				return
			}
		default:
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		if err := streamArray(ctx, dec, outCh); err != nil {
			errCh <- err
		}
	}()

	return outCh, errCh
}

// seekKey advances dec past object members until key, leaving the decoder
// just inside the array stored under it.
func seekKey(dec *json.Decoder, key string) (bool, error) {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false, eris.Wrap(err, "json: read object key")
		}
		if name, _ := tok.(string); name == key {
			open, err := dec.Token()
			if err != nil {
				return false, eris.Wrapf(err, "json: read %q", key)
			}
			if d, ok := open.(json.Delim); !ok || d != '[' {
				return false, eris.Errorf("json: %q is not an array", key)
			}
			return true, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return false, eris.Wrap(err, "json: skip object value")
		}
	}
	return false, nil
}

func streamArray[T any](ctx context.Context, dec *json.Decoder, outCh chan<- T) error {
	for dec.More() {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}

		var item T
		if err := dec.Decode(&item); err != nil {
			return eris.Wrap(err, "json: decode element")
		}

		select {
		case outCh <- item:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return eris.Wrap(err, "json: read closing token")
	}
	return nil
}
