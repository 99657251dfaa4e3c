// Package site serves the embedded browser page for browsing sessions.
package site

import (
	"context"
	"net/http"
)

// Register attaches the page at / and its assets under /static/.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("GET /static/", http.StripPrefix("/static", files))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticRoot(), "index.html")
	})
}
