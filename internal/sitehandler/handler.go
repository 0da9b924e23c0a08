package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/store"
)

// NotFoundError is the handler-level miss. Message is safe to show the
// visitor: it repeats the request path and nothing from the store.
type NotFoundError struct {
	Path    string
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Is lets callers test with store.ErrNotFound as well.
func (e *NotFoundError) Is(target error) bool { return target == store.ErrNotFound }

func notFound(p string) *NotFoundError {
	return &NotFoundError{Path: p, Message: fmt.Sprintf("page %q not found", p)}
}

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

// Handle returns the content for requestPath unmodified. A store miss comes
// back as *NotFoundError; any other store error is returned as is.
func (h *Handler) Handle(ctx context.Context, requestPath string) ([]byte, error) {
	if strings.IndexByte(requestPath, 0) >= 0 {
		return nil, notFound(requestPath)
	}
	b, err := h.opts.Store.Read(ctx, requestPath)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		// the store error stays in the debug log, its cause may name internal paths
		h.logger(ctx).Debug(ctx, "page not found", "path", requestPath, "reason", err.Error())
		return nil, notFound(requestPath)
	}
	return nil, err
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// only GET/HEAD, 405s are counted by metrics rather than logged
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	body, err := h.Handle(ctx, r.URL.Path)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			writeText(w, r, http.StatusNotFound, nf.Message)
			return
		}
		h.logger(ctx).Error(ctx, err, "store read failed", "path", r.URL.Path)
		writeText(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	hdr := w.Header()
	etag := etagFor(body)
	hdr.Set("ETag", etag)
	hdr.Set("Cache-Control", cacheControlFor(r.URL.Path, &h.opts))
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (h *Handler) logger(ctx context.Context) log.Logger {
	if l, ok := log.FromContextOK(ctx); ok {
		return l
	}
	return h.opts.Logger
}

// writeText writes an uncacheable plain-text error response.
func writeText(w http.ResponseWriter, r *http.Request, status int, msg string) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("Cache-Control", "no-store")
	hdr.Set("Content-Length", strconv.Itoa(len(msg)+1))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(msg + "\n"))
}
