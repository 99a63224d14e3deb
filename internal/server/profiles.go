package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// profileRequest is the create/update body. The server owns ID, version
// and timestamps; the client supplies everything else.
type profileRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	VendorPattern string         `json:"vendor_pattern"`
	IsDefault     bool           `json:"is_default"`
	Rules         []mapping.Rule `json:"rules"`
}

type profileResponse struct {
	Profile  mapping.Profile `json:"profile"`
	Warnings []store.Warning `json:"warnings,omitempty"`
}

func orgID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["org"], 10, 64)
	return id, err == nil
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{errorBody{Code: "BAD_ORG", Message: "organization id must be an integer"}})
		return
	}

	profiles, err := s.store.ListProfiles(r.Context(), org)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{errorBody{Code: "BAD_ORG", Message: "organization id must be an integer"}})
		return
	}

	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	saved, warnings, err := s.store.SaveProfile(r.Context(), mapping.Profile{
		OrganizationID: org,
		Name:           req.Name,
		Description:    req.Description,
		VendorPattern:  req.VendorPattern,
		IsDefault:      req.IsDefault,
		Rules:          req.Rules,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profileResponse{Profile: saved, Warnings: warnings})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.VendorPattern = req.VendorPattern
	existing.IsDefault = req.IsDefault
	existing.Rules = req.Rules

	saved, warnings, err := s.store.SaveProfile(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Profile: saved, Warnings: warnings})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProfile(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewProfile runs the pipeline for an explicit profile against
// a caller-supplied field bag. Nothing is persisted. Unresolved required
// targets are reported in the response rather than as an error, so the
// review UI can render the full trace.
func (s *Server) handlePreviewProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var bag mapping.FieldBag
	if !decodeBody(w, r, &bag) {
		return
	}

	payload, execErr := engine.PreviewProfile(p, bag)
	writeJSON(w, http.StatusOK, map[string]any{
		"payload":             payload,
		"unresolved_required": payload.UnresolvedRequired(),
		"complete":            execErr == nil,
	})
}
