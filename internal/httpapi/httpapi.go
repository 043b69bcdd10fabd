// Package httpapi implements the Query Endpoints: POST /user_tags,
// POST /user_profiles/{cookie}, POST /aggregates.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/store"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

// Producer is the subset of eventbus.EventProducer the HTTP layer needs,
// kept as an interface so handler tests can run without a live broker.
type Producer interface {
	Produce(ctx context.Context, tag model.UserTag) error
}

// Server bundles the dependencies the handlers need: a producer for
// ingest, and the store for both read endpoints.
type Server struct {
	producer Producer
	store    store.Client
	log      *slog.Logger
}

// NewServer wires a Server and its gorilla/mux router, wrapped with
// request logging.
func NewServer(producer Producer, db store.Client, log *slog.Logger) http.Handler {
	s := &Server{producer: producer, store: db, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/user_tags", s.postUserTag).Methods(http.MethodPost)
	r.HandleFunc("/user_profiles/{cookie}", s.postUserProfile).Methods(http.MethodPost)
	r.HandleFunc("/aggregates", s.postAggregates).Methods(http.MethodPost)

	return handlers.CombinedLoggingHandler(slogWriter{log}, r)
}

func (s *Server) postUserTag(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	defer r.Body.Close()

	var tag model.UserTag
	if err := json.Unmarshal(body, &tag); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := tag.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.producer.Produce(r.Context(), tag); err != nil {
		s.log.Error("produce_err", slog.Any("err", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postUserProfile(w http.ResponseWriter, r *http.Request) {
	cookie := mux.Vars(r)["cookie"]

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	q, err := userprofiles.ParseQuery(cookie, r.Form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.store.GetUserProfile(r.Context(), q)
	if err != nil {
		s.log.Error("get_user_profile_err", slog.Any("err", err), slog.String("cookie", cookie))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) postAggregates(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	q, err := aggregates.ParseQuery(r.Form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.store.GetAggregates(r.Context(), q.Projection(), q)
	if err != nil {
		s.log.Error("get_aggregates_err", slog.Any("err", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// slogWriter adapts a *slog.Logger to the io.Writer gorilla/handlers'
// logging middleware expects, so request lines flow through the same
// structured logger as everything else.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.log.Info("http_request", slog.String("line", string(p)))
	return len(p), nil
}
