package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"budgetbook/internal/auth"
	"budgetbook/internal/view"
)

const sessionCookie = "bb_session"

// sessionStore keeps one view controller per (user, browser session). Idle
// sessions expire after ttl.
type sessionStore struct {
	items *gocache.Cache
	ttl   time.Duration
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{items: gocache.New(ttl, ttl/2), ttl: ttl}
}

// controller returns the caller's controller, creating the session and its
// cookie on first use.
func (s *sessionStore) controller(w http.ResponseWriter, r *http.Request) *view.Controller {
	sid := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			sid = c.Value
		}
	}
	if sid == "" {
		sid = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	key := auth.UserFrom(r.Context()).ID + ":" + sid
	if v, ok := s.items.Get(key); ok {
		ctrl := v.(*view.Controller)
		s.items.Set(key, ctrl, gocache.DefaultExpiration)
		return ctrl
	}
	ctrl := view.NewController(nil)
	if err := s.items.Add(key, ctrl, gocache.DefaultExpiration); err != nil {
		// A concurrent request created it first.
		if v, ok := s.items.Get(key); ok {
			return v.(*view.Controller)
		}
	}
	return ctrl
}

func (s *sessionStore) count() int { return s.items.ItemCount() }
