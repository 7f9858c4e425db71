package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// badRequestError marks malformed request input.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "bad request: " + e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: errors.Errorf(format, args...)}
}

// decodeObject reads a JSON object body, handing each known key to its field
// decoder. Unknown keys are skipped. An empty body is an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request, fields map[string]func(d *jx.Decoder) error) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &badRequestError{err: errors.Wrap(err, "read body")}
	}
	if len(body) == 0 {
		return nil
	}

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if fn, ok := fields[key]; ok {
			return errors.Wrap(fn(d), key)
		}
		return d.Skip()
	}); err != nil {
		return &badRequestError{err: err}
	}
	return nil
}

func intField(dst *int, set *bool) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Int()
		if err != nil {
			return err
		}
		*dst = v
		if set != nil {
			*set = true
		}
		return nil
	}
}

func strField(dst *string) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func boolField(dst *bool) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Bool()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func logError(r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
}
