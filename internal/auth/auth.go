// Package auth identifies visitors by HTTP Basic credentials and answers the
// capability questions the handlers ask before touching events.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

var ErrBadCredentials = errors.New("invalid credentials")

// Capabilities is what the event and category rules depend on.
type Capabilities interface {
	IsLoggedIn() bool
	// CanAdminister is the "administer events" capability.
	CanAdminister() bool
	// CanEditOwn allows changing events the user created.
	CanEditOwn() bool
}

// Principal is a Capabilities holder with a name used for ownership.
type Principal interface {
	Capabilities
	Name() string
}

// User is a configured account. The zero value is the anonymous visitor.
type User struct {
	name string
	role string
}

func NewUser(name, role string) User { return User{name: name, role: role} }

func (u User) Name() string        { return u.name }
func (u User) IsLoggedIn() bool    { return u.name != "" }
func (u User) CanAdminister() bool { return u.IsLoggedIn() && u.role == config.RoleAdmin }
func (u User) CanEditOwn() bool    { return u.IsLoggedIn() }

// Authenticator checks Basic credentials against the configured users.
type Authenticator struct {
	users []config.UserConfig
}

func NewAuthenticator(users []config.UserConfig) *Authenticator {
	return &Authenticator{users: users}
}

// Authenticate returns the anonymous user when no credentials are sent and
// ErrBadCredentials when they do not match.
func (a *Authenticator) Authenticate(r *http.Request) (User, error) {
	name, pass, ok := r.BasicAuth()
	if !ok {
		return User{}, nil
	}

	var match *config.UserConfig
	for i := range a.users {
		u := &a.users[i]
		// compare every entry so the timing does not reveal which name exists
		nameOK := secureCompare(name, u.Name)
		passOK := secureCompare(pass, u.Password)
		if nameOK && passOK && match == nil {
			match = u
		}
	}
	if match == nil {
		return User{}, ErrBadCredentials
	}
	return User{name: match.Name, role: match.Role}, nil
}

// Middleware attaches the visitor to the request context. Wrong credentials
// are answered with 401; missing credentials continue anonymously.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if err != nil {
			appLog.Warn("rejected credentials", "remote", r.RemoteAddr, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="eventcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the visitor, anonymous if none was attached.
func FromContext(ctx context.Context) User {
	u, _ := ctx.Value(ctxKey{}).(User)
	return u
}

// CanPublish reports whether p may store events as public. Anonymous
// submissions wait for moderation.
func CanPublish(p Capabilities) bool {
	return p.IsLoggedIn()
}

// CanModifyEvent: administrators, or the user who created the event.
func CanModifyEvent(p Principal, e *model.Event) bool {
	if p.CanAdminister() {
		return true
	}
	return p.CanEditOwn() && e.CreatedBy != "" && e.CreatedBy == p.Name()
}

// CanSeeEvent: public events, plus hidden ones the visitor may modify.
func CanSeeEvent(p Principal, e *model.Event) bool {
	return e.Public || CanModifyEvent(p, e)
}

func CanManageCategories(p Capabilities) bool {
	return p.CanAdminister()
}
