package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg      *Config
	store    *Store
	sessions *Sessions
	log      *log.Logger
}

type loadResponse struct {
	Appended   int        `json:"appended"`
	Photos     []Photo    `json:"photos"`
	EmptyState EmptyState `json:"emptyState"`
}

type errorResponse struct {
	Error      string      `json:"error"`
	EmptyState *EmptyState `json:"emptyState,omitempty"`
}

type favoriteResponse struct {
	Id       int64  `json:"id"`
	Favorite bool   `json:"favorite"`
	Message  string `json:"message,omitempty"`
}

func NewServer(cfg *Config, store *Store, sessions *Sessions) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		log:      log.New(os.Stderr, "(http) ", log.LstdFlags),
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.countRequests)
	if s.cfg.Auth.Required {
		r.Use(s.basicAuth)
	}

	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleClear).Methods(http.MethodDelete)
	r.HandleFunc("/search/more", s.handleMore).Methods(http.MethodPost)
	r.HandleFunc("/photos", s.handlePhotos).Methods(http.MethodGet)
	r.HandleFunc("/photos/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/favorites", s.handleFavorites).Methods(http.MethodGet)
	r.HandleFunc("/favorites/{id}", s.handleFavorite).Methods(http.MethodGet, http.MethodPut)
	r.HandleFunc("/favorites/{id}/toggle", s.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/trending", func(w http.ResponseWriter, r *http.Request) {
		trending := s.cfg.Trending
		if trending == nil {
			trending = []string{}
		}
		s.writeJSON(w, r, http.StatusOK, trending)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Not Found")
	})
	return r
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) *QueryEngine {
	return s.sessions.Engine(SessionID(w, r))
}

// fetchContext detaches the request context so a page that is already being
// fetched still lands in the session when the client goes away.
func fetchContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, hasQ := r.URL.Query()["q"]
	if !hasQ {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Query Search Parameter ?q= missing"})
		return
	}
	engine := s.engine(w, r)
	n, err := engine.LoadPhotos(fetchContext(r), strings.Join(q, " "))
	s.respondLoad(w, r, engine, n, err)
}

func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	engine := s.engine(w, r)
	n, err := engine.LoadMoreCurrentQuery(fetchContext(r))
	s.respondLoad(w, r, engine, n, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	engine := s.engine(w, r)
	engine.ClearPhotos()
	s.respondLoad(w, r, engine, 0, nil)
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	s.respondLoad(w, r, s.engine(w, r), 0, nil)
}

func (s *Server) respondLoad(w http.ResponseWriter, r *http.Request, engine *QueryEngine, n int, err error) {
	empty := engine.EmptyState().Value()
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrNoActiveQuery):
			status = http.StatusConflict
		case IsNetworkError(err), IsServerError(err):
			status = http.StatusServiceUnavailable
		}
		s.writeJSON(w, r, status, errorResponse{Error: err.Error(), EmptyState: &empty})
		return
	}
	s.writeJSON(w, r, http.StatusOK, loadResponse{
		Appended:   n,
		Photos:     engine.Photos().Value(),
		EmptyState: empty,
	})
}

// handleStream sends the photo list and empty state as server-sent events,
// starting with their current values.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	engine := s.engine(w, r)
	photos, cancelPhotos := engine.Photos().Subscribe()
	defer cancelPhotos()
	empty, cancelEmpty := engine.EmptyState().Subscribe()
	defer cancelEmpty()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-photos:
			if !ok {
				return
			}
			err = writeEvent(w, "photos", p)
		case e, ok := <-empty:
			if !ok {
				return
			}
			err = writeEvent(w, "emptyState", e)
		}
		if err != nil {
			s.log.Println("Stream closed:", err)
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.Favorites(r.Context())
	if err != nil {
		s.log.Println("Failed to list favorites:", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, ids)
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := ParsePhotoID(mux.Vars(r)["id"])
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if r.Method == http.MethodPut {
		var body struct {
			Favorite bool `json:"favorite"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
			return
		}
		if err := s.store.SetFavorite(r.Context(), id, body.Favorite); err != nil {
			s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
	}
	favorite, err := s.store.IsFavorite(r.Context(), id)
	if err != nil {
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, favoriteResponse{Id: id, Favorite: favorite})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := ParsePhotoID(mux.Vars(r)["id"])
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	favorite, message, err := ToggleFavorite(r.Context(), s.store, id)
	if err != nil {
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: message})
		return
	}
	s.writeJSON(w, r, http.StatusOK, favoriteResponse{Id: id, Favorite: favorite, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body := brotli.HTTPCompressor(w, r)
	defer body.Close()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(body)
	if s.cfg.Debug.PrettyJson {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.log.Println("Failed to write response:", err)
	}
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !s.store.TestUser(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="photos"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
