package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

//go:embed web/*
var embedded embed.FS

// assets picks the directory override when it exists, else the embedded
// copy.
func assets(dir string) fs.FS {
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(embedded, "web")
	if err != nil {
		panic("panel: embedded assets missing: " + err.Error())
	}
	return sub
}

// Handler serves the status dashboard. A non-empty dir that exists is read
// on every request, so edits show up without a rebuild. Paths that do not
// name a file get index.html. Responses are marked no-cache.
func Handler(dir string) http.Handler {
	files := assets(dir)
	server := http.FileServer(http.FS(files))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name != "" {
			if _, err := fs.Stat(files, name); err != nil {
				r2 := r.Clone(r.Context())
				r2.URL.Path = "/"
				server.ServeHTTP(w, r2)
				return
			}
		}
		server.ServeHTTP(w, r)
	})
}
