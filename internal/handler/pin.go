package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/mandala-pos/terminal/internal/domain/pin"
	"github.com/mandala-pos/terminal/internal/terminal"
)

const timeFormat = time.RFC3339

// GetPin returns the PIN pad state.
func (h *Handler) GetPin(w http.ResponseWriter, r *http.Request) {
	writePin(w, sessionFrom(r.Context()).Pin())
}

// PinDigit types a character into a slot. Filtered input is reported with
// accepted=false, never as an error.
func (h *Handler) PinDigit(w http.ResponseWriter, r *http.Request) {
	var (
		index int
		set   bool
		value string
	)
	if err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"index": intField(&index, &set),
		"value": strField(&value),
	}); err != nil {
		respondError(w, r, err)
		return
	}
	if !set {
		respondError(w, r, badRequest("index is required"))
		return
	}
	st, ok := sessionFrom(r.Context()).PinDigit(index, value)
	writePinResult(w, st, ok)
}

// PinBackspace handles backspace in a slot.
func (h *Handler) PinBackspace(w http.ResponseWriter, r *http.Request) {
	index, ok := decodeIndex(w, r)
	if !ok {
		return
	}
	writePin(w, sessionFrom(r.Context()).PinBackspace(index))
}

// PinClear empties a slot.
func (h *Handler) PinClear(w http.ResponseWriter, r *http.Request) {
	index, ok := decodeIndex(w, r)
	if !ok {
		return
	}
	st, accepted := sessionFrom(r.Context()).PinClear(index)
	writePinResult(w, st, accepted)
}

// PinPaste fills the pad from pasted text.
func (h *Handler) PinPaste(w http.ResponseWriter, r *http.Request) {
	var text string
	if err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"text": strField(&text),
	}); err != nil {
		respondError(w, r, err)
		return
	}
	st, ok := sessionFrom(r.Context()).PinPaste(text)
	writePinResult(w, st, ok)
}

// PinReset starts a new entry.
func (h *Handler) PinReset(w http.ResponseWriter, r *http.Request) {
	writePin(w, sessionFrom(r.Context()).PinReset())
}

func decodeIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	var (
		index int
		set   bool
	)
	err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"index": intField(&index, &set),
	})
	if err == nil && !set {
		err = badRequest("index is required")
	}
	if err != nil {
		respondError(w, r, err)
		return 0, false
	}
	return index, true
}

func writePin(w http.ResponseWriter, st pin.State) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		terminal.EncodePin(e, st, false)
	})
}

func writePinResult(w http.ResponseWriter, st pin.State, accepted bool) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("accepted", func(e *jx.Encoder) { e.Bool(accepted) })
			e.Field("pin", func(e *jx.Encoder) { terminal.EncodePin(e, st, false) })
		})
	})
}
