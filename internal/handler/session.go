package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/mandala-pos/terminal/internal/terminal"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) *terminal.Session {
	s, _ := ctx.Value(sessionKey{}).(*terminal.Session)
	return s
}

// withSession resolves the {tid} URL parameter to an open session.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(chi.URLParam(r, "tid"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

// requireStaff accepts only requests carrying the bearer token of the member
// signed in on the session.
func (h *Handler) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := sessionFrom(r.Context()).Authorize(token); err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OpenTerminal starts a terminal session.
func (h *Handler) OpenTerminal(w http.ResponseWriter, r *http.Request) {
	var remember bool
	if err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"remember": boolField(&remember),
	}); err != nil {
		respondError(w, r, err)
		return
	}

	s, err := h.sessions.Open(r.Context(), remember)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/terminals/"+s.ID())
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(s.ID()) })
			e.Field("remember", func(e *jx.Encoder) { e.Bool(s.Remember()) })
			e.Field("pin", func(e *jx.Encoder) { terminal.EncodePin(e, s.Pin(), false) })
		})
	})
}

// CloseTerminal ends a terminal session.
func (h *Handler) CloseTerminal(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), sessionFrom(r.Context()).ID()); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStaff returns the signed-in member and the session token. Terminals
// poll it after submitting a PIN.
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	in, err := sessionFrom(r.Context()).Staff()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("member", func(e *jx.Encoder) { terminal.EncodeMember(e, in.Member) })
			e.Field("token", func(e *jx.Encoder) { e.Str(in.Token) })
			e.Field("expiresAt", func(e *jx.Encoder) { e.Str(in.Expires.UTC().Format(timeFormat)) })
		})
	})
}

// SignOut signs the current member out of the terminal.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).SignOut(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
