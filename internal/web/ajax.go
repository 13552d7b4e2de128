package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"eventcal/internal/apperr"
	"eventcal/internal/auth"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// Form actions. Each posted form carries a nonce issued for its action.
const (
	ActionEventCreate    = "event_create"
	ActionEventUpdate    = "event_update"
	ActionEventDelete    = "event_delete"
	ActionCategoryCreate = "category_create"
	ActionCategoryUpdate = "category_update"
	ActionCategoryDelete = "category_delete"

	// FieldNonce is the form field holding the one-time token.
	FieldNonce = "nonce"
)

type actionHandler func(w http.ResponseWriter, r *http.Request) error

func (s *Server) actions() map[string]actionHandler {
	return map[string]actionHandler{
		ActionEventCreate:    s.createEvent,
		ActionEventUpdate:    s.updateEvent,
		ActionEventDelete:    s.deleteEvent,
		ActionCategoryCreate: s.createCategory,
		ActionCategoryUpdate: s.updateCategory,
		ActionCategoryDelete: s.deleteCategory,
	}
}

type nonceResponse struct {
	Action string `json:"action"`
	Nonce  string `json:"nonce"`
}

// GET /ajax/nonce?action=event_create
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if _, ok := s.actions()[action]; !ok {
		s.fail(w, r, &model.FieldError{Field: "action", Message: "Unbekannte Aktion."})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, nonceResponse{Action: action, Nonce: s.nonces.Issue(action)})
}

// POST /ajax/{action}
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	h, ok := s.actions()[action]
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, apperr.Wrap(apperr.Validation, "Ungültige Formulardaten.", err))
		return
	}
	if err := s.nonces.Consume(action, r.PostFormValue(FieldNonce)); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := h(w, r); err != nil {
		s.fail(w, r, err)
	}
}

type savedResponse struct {
	ID      int64  `json:"id"`
	Public  bool   `json:"public"`
	Message string `json:"message"`
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.throttle.Check(ctx); err != nil {
		return err
	}

	e, err := model.EventFromForm(r.PostForm)
	if err != nil {
		return err
	}
	user := auth.FromContext(ctx)
	if !auth.CanPublish(user) {
		e.Public = false
	}
	e.CreatedBy = user.Name()
	if e.Calendar == "" {
		e.Calendar = s.cfg.Site.DefaultCalendar
	}

	if err := s.store.CreateEvent(ctx, e); err != nil {
		return err
	}
	appLog.Info("event created", "id", e.ID, "title", e.Title, "by", e.CreatedBy, "public", e.Public)

	msg := "Termin gespeichert."
	if !e.Public {
		msg = "Danke! Der Termin wird nach Prüfung veröffentlicht."
	}
	writeJSON(w, http.StatusCreated, savedResponse{ID: e.ID, Public: e.Public, Message: msg})
	return nil
}

// modifiableEvent loads the posted event and checks the visitor may change it.
func (s *Server) modifiableEvent(r *http.Request) (*model.Event, error) {
	id, err := formID(r, "id")
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !auth.CanModifyEvent(auth.FromContext(r.Context()), e) {
		return nil, apperr.New(apperr.Forbidden, msgForbidden)
	}
	return e, nil
}

func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) error {
	existing, err := s.modifiableEvent(r)
	if err != nil {
		return err
	}
	e, err := model.EventFromForm(r.PostForm)
	if err != nil {
		return err
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	e.CreatedBy = existing.CreatedBy
	e.ExternalID = existing.ExternalID
	if e.Calendar == "" {
		e.Calendar = existing.Calendar
	}

	if err := s.store.UpdateEvent(r.Context(), e); err != nil {
		return err
	}
	appLog.Info("event updated", "id", e.ID, "by", auth.FromContext(r.Context()).Name())
	writeJSON(w, http.StatusOK, savedResponse{ID: e.ID, Public: e.Public, Message: "Termin aktualisiert."})
	return nil
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) error {
	e, err := s.modifiableEvent(r)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvent(r.Context(), e.ID); err != nil {
		return err
	}
	appLog.Info("event deleted", "id", e.ID, "by", auth.FromContext(r.Context()).Name())
	writeJSON(w, http.StatusOK, savedResponse{ID: e.ID, Message: "Termin gelöscht."})
	return nil
}

func (s *Server) requireCategoryRights(r *http.Request) error {
	if !auth.CanManageCategories(auth.FromContext(r.Context())) {
		return apperr.New(apperr.Forbidden, msgForbidden)
	}
	return nil
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) error {
	if err := s.requireCategoryRights(r); err != nil {
		return err
	}
	c, err := model.CategoryFromForm(r.PostForm)
	if err != nil {
		return err
	}
	if err := s.store.CreateCategory(r.Context(), c); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, c)
	return nil
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) error {
	if err := s.requireCategoryRights(r); err != nil {
		return err
	}
	id, err := formID(r, "id")
	if err != nil {
		return err
	}
	if _, err := s.store.GetCategory(r.Context(), id); err != nil {
		return err
	}
	c, err := model.CategoryFromForm(r.PostForm)
	if err != nil {
		return err
	}
	c.ID = id
	if err := s.store.UpdateCategory(r.Context(), c); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, c)
	return nil
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) error {
	if err := s.requireCategoryRights(r); err != nil {
		return err
	}
	id, err := formID(r, "id")
	if err != nil {
		return err
	}
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
	return nil
}
