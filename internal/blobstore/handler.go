package blobstore

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Handler serves store over the protocol HTTPStore speaks. Requests must
// be rooted at /{bucket}/; mount it with http.StripPrefix when needed.
// When token is set every request must carry it as a bearer token.
func Handler(bucket, token string, store ObjectStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+bucket+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		rest, ok := strings.CutPrefix(r.URL.Path, "/"+bucket+"/")
		if !ok {
			http.Error(w, "Unknown bucket", http.StatusNotFound)
			return
		}

		// a bare bucket path is the reachability probe
		if rest == "" {
			if r.Method == http.MethodHead || r.Method == http.MethodGet {
				w.WriteHeader(http.StatusOK)
				return
			}
			http.Error(w, "Object name required", http.StatusBadRequest)
			return
		}

		name, err := CleanName(rest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		switch r.Method {
		case http.MethodGet:
			rc, err := store.Get(ctx, name)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			defer rc.Close()
			w.Header().Set("Content-Type", "application/octet-stream")
			io.Copy(w, rc)

		case http.MethodHead:
			ok, err := store.Exists(ctx, name)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodPut:
			if err := store.Put(ctx, name, r.Body); err != nil {
				writeStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusCreated)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
