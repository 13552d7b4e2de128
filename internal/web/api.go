package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"eventcal/internal/apperr"
	"eventcal/internal/auth"
	"eventcal/internal/model"
)

// visibleEvent loads an event the visitor may see. Hidden events of others
// answer like missing ones.
func (s *Server) visibleEvent(r *http.Request) (*model.Event, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !auth.CanSeeEvent(auth.FromContext(r.Context()), e) {
		return nil, apperr.New(apperr.NotFound, msgNotFound)
	}
	return e, nil
}

// GET /api/eventcal/v1/eventDisplay/{id}
func (s *Server) handleEventDisplay(w http.ResponseWriter, r *http.Request) {
	e, err := s.visibleEvent(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pretty, err := model.Pretty(e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pretty)
}

// GET /api/eventcal/v1/eventRaw/{id}
func (s *Server) handleEventRaw(w http.ResponseWriter, r *http.Request) {
	e, err := s.visibleEvent(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GET /api/eventcal/v1/categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Category{}
	}
	writeJSON(w, http.StatusOK, list)
}

type importRequest struct {
	URL string `json:"url"`
}

// POST /api/eventcal/v1/import
//
// Accepts url as form value or JSON body and answers with the normalized
// event fields. Only logged-in users may trigger a scrape.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !auth.FromContext(r.Context()).IsLoggedIn() {
		s.fail(w, r, apperr.New(apperr.Forbidden, msgForbidden))
		return
	}

	target := r.FormValue("url")
	if target == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req importRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err == nil {
			target = req.URL
		}
	}
	if strings.TrimSpace(target) == "" {
		s.fail(w, r, &model.FieldError{Field: "url", Message: "Bitte eine Adresse angeben."})
		return
	}

	imported, err := s.importer.Import(r.Context(), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imported)
}
