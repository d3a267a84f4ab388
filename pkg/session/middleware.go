package session

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/sessionstore/pkg/logger"
)

// Middleware loads the session, runs next with it in the request context and
// saves it. When the store is a Transactor the whole request runs in one
// transaction. The session is saved right before the first byte of the
// response, so writes made after that are not persisted.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sw *responseWriter

		run := func(ctx context.Context, st Store) error {
			ctx = withStore(ctx, st)
			s, err := m.load(ctx, st, r)
			if err != nil {
				return err
			}
			sw = &responseWriter{
				ResponseWriter: w,
				save:           func() error { return m.Save(ctx, w, s) },
			}
			next.ServeHTTP(sw, r.WithContext(WithSession(ctx, s)))
			return sw.saveOnce()
		}

		var err error
		if tx, ok := m.store.(Transactor); ok {
			err = tx.RunInTx(r.Context(), run)
		} else {
			err = run(r.Context(), m.store)
		}
		if err == nil {
			return
		}

		m.logger.ErrorContext(r.Context(), "session middleware failed", logger.Error(err))
		if sw == nil || !sw.wroteHeader {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

// responseWriter saves the session before the response starts.
type responseWriter struct {
	http.ResponseWriter
	save func() error

	saved       bool
	err         error
	wroteHeader bool
}

func (w *responseWriter) saveOnce() error {
	if !w.saved {
		w.saved = true
		w.err = w.save()
	}
	return w.err
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	if err := w.saveOnce(); err != nil {
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return 0, w.err
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok && w.err == nil {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// RequireUser responds 401 unless the session in context has a user ID.
// It must be mounted inside Middleware.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
