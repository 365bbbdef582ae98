package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/apibillme/cache"
	"github.com/google/uuid"
)

const sessionCookie = "sid"

type userKey struct{}

// withUser marks ctx as belonging to a user whose password has been checked.
func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func verifiedUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}

// Sessions gives every client its own QueryEngine. Engines of idle or least
// recently used sessions are dropped along with their search state.
type Sessions struct {
	mu       sync.Mutex
	engines  cache.Cache
	searcher PhotoSearcher
	log      *log.Logger
}

func NewSessions(searcher PhotoSearcher, max int, ttl time.Duration) *Sessions {
	return &Sessions{
		engines:  cache.New(max, cache.WithTTL(ttl)),
		searcher: searcher,
		log:      log.New(os.Stderr, "(sessions) ", log.LstdFlags),
	}
}

func (s *Sessions) Engine(id string) *QueryEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.engines.Get(id); ok {
		return v.(*QueryEngine)
	}
	engine := NewQueryEngine(s.searcher)
	s.engines.Set(id, engine)
	sessionsCreated.Inc()
	return engine
}

// SessionID returns the session key for r: the authenticated user when the
// basic auth middleware has verified one, otherwise the sid cookie, which is
// issued on w when missing. An unverified Authorization header is ignored.
func SessionID(w http.ResponseWriter, r *http.Request) string {
	if user, ok := verifiedUser(r.Context()); ok {
		return "user:" + user
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return "sid:" + id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return "sid:" + id
}
