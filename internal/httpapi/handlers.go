package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"moyuren/internal/errcode"
)

// handleState serves the published state document verbatim (migrated to the
// current schema).
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		writeError(w, errcode.New(errcode.APINotFound, "no generation has completed yet"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleImageToday serves the most recently published artifact.
func (s *Server) handleImageToday(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	filename, _ := docString(doc, "filename")
	if filename == "" {
		writeError(w, errcode.New(errcode.APINotFound, "no image has been generated yet"))
		return
	}
	// The filename comes from our own state file but is still sanitised
	// before touching the filesystem.
	if strings.ContainsAny(filename, "/\\") {
		writeError(w, errcode.New(errcode.APINotFound, "invalid artifact name"))
		return
	}
	path := filepath.Join(s.staticDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, errcode.New(errcode.APINotFound, "artifact missing from static dir"))
		return
	}
	http.ServeFile(w, r, path)
}

// handleGenerate triggers a generation run for the requested template.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, errcode.New(errcode.AuthInvalidKey, "invalid or missing API key"))
		return
	}

	template := r.URL.Query().Get("template")
	filename, err := s.generator.Generate(r.Context(), template)
	if err != nil {
		if errcode.Is(err, errcode.GenerationBusy) {
			w.Header().Set("Retry-After", "10")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filename,
		"url":      "/static/" + filename,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// authorized checks the X-API-Key header in constant time. No configured key
// means the endpoint is open.
func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return true
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errcode.CodeOf(err)
	writeJSON(w, errcode.HTTPStatus(code), map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

func docString(doc map[string]any, key string) (string, bool) {
	if doc == nil {
		return "", false
	}
	v, ok := doc[key].(string)
	return v, ok
}
