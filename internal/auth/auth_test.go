package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/config"
	"eventcal/internal/model"
)

func testUsers() []config.UserConfig {
	return []config.UserConfig{
		{Name: "admin", Password: "s3cret", Role: config.RoleAdmin},
		{Name: "anna", Password: "pw", Role: config.RoleEditor},
	}
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testUsers())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	u, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.False(t, u.IsLoggedIn())

	r.SetBasicAuth("anna", "pw")
	u, err = a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Name())
	assert.True(t, u.CanEditOwn())
	assert.False(t, u.CanAdminister())

	r.SetBasicAuth("anna", "falsch")
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator(testUsers())
	var seen User
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar", nil)
	req.SetBasicAuth("admin", "s3cret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, seen.CanAdminister())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/calendar", nil)
	req.SetBasicAuth("admin", "nope")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	seen = NewUser("stale", "")
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, seen.IsLoggedIn())
}

func TestEventRules(t *testing.T) {
	anon := User{}
	anna := NewUser("anna", config.RoleEditor)
	ben := NewUser("ben", config.RoleEditor)
	admin := NewUser("root", config.RoleAdmin)

	hidden := &model.Event{Title: "x", CreatedBy: "anna"}
	public := &model.Event{Title: "y", Public: true}
	orphan := &model.Event{Title: "z"}

	assert.True(t, CanModifyEvent(anna, hidden))
	assert.False(t, CanModifyEvent(ben, hidden))
	assert.True(t, CanModifyEvent(admin, hidden))
	assert.False(t, CanModifyEvent(anon, orphan), "anonymous never owns an event")

	assert.True(t, CanSeeEvent(anon, public))
	assert.False(t, CanSeeEvent(anon, hidden))
	assert.True(t, CanSeeEvent(anna, hidden))

	assert.False(t, CanPublish(anon))
	assert.True(t, CanPublish(ben))

	assert.True(t, CanManageCategories(admin))
	assert.False(t, CanManageCategories(anna))
}
