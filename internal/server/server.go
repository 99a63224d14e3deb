// Package server exposes the profile and invoice operations over HTTP.
//
// Routing uses gorilla/mux; responses are JSON envelopes. Domain errors
// map onto status codes in one place (writeError), so handlers stay
// thin: decode, call, encode.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/erp"
	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// Server wires the HTTP surface to the store and the sync engine.
type Server struct {
	store  *store.Store
	engine *engine.Engine
}

// New creates a Server.
func New(s *store.Store, e *engine.Engine) *Server {
	return &Server{store: s, engine: e}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/organizations/{org}/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/organizations/{org}/profiles", s.handleCreateProfile).Methods("POST")
	api.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleUpdateProfile).Methods("PUT")
	api.HandleFunc("/profiles/{id}", s.handleDeleteProfile).Methods("DELETE")
	api.HandleFunc("/profiles/{id}/preview", s.handlePreviewProfile).Methods("POST")

	api.HandleFunc("/invoices", s.handleCreateInvoice).Methods("POST")
	api.HandleFunc("/invoices/{id}", s.handleGetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/attempts", s.handleListAttempts).Methods("GET")
	api.HandleFunc("/invoices/{id}/status", s.handleTransition).Methods("POST")
	api.HandleFunc("/invoices/{id}/profile", s.handleAssignProfile).Methods("PUT")
	api.HandleFunc("/invoices/{id}/preview", s.handlePreviewInvoice).Methods("POST")
	api.HandleFunc("/invoices/{id}/sync", s.handleSync).Methods("POST")

	api.HandleFunc("/sweep", s.handleSweep).Methods("POST")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorEnvelope is the uniform error body.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Targets []string `json:"targets,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses:
//
//	validation          -> 400
//	not found           -> 404
//	conflict/transition -> 409
//	pipeline            -> 422
//	ERP rejection       -> 502
func writeError(w http.ResponseWriter, err error) {
	var ve *mapping.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{errorBody{Code: string(ve.Code), Message: ve.Message}})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{errorBody{Code: "NOT_FOUND", Message: err.Error()}})
		return
	}
	if errors.Is(err, store.ErrConflict) {
		writeJSON(w, http.StatusConflict, errorEnvelope{errorBody{Code: "CONFLICT", Message: err.Error()}})
		return
	}

	var te *engine.TransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusConflict, errorEnvelope{errorBody{Code: "INVALID_TRANSITION", Message: te.Error()}})
		return
	}

	var pe *engine.PipelineError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{errorBody{
			Code:    string(pe.Code),
			Message: pe.Message,
			Targets: pe.Targets,
		}})
		return
	}

	var re *erp.RejectionError
	if errors.As(err, &re) {
		writeJSON(w, http.StatusBadGateway, errorEnvelope{errorBody{Code: re.Code, Message: re.Message}})
		return
	}

	slog.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{errorBody{Code: "INTERNAL", Message: "internal error"}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{errorBody{Code: "BAD_JSON", Message: "invalid JSON body"}})
		return false
	}
	return true
}
