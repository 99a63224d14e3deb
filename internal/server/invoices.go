package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/mapping"
)

type createInvoiceRequest struct {
	OrganizationID int64            `json:"organization_id"`
	VendorName     string           `json:"vendor_name"`
	InvoiceNumber  string           `json:"invoice_number"`
	Fields         mapping.FieldBag `json:"fields"`
}

type invoiceResponse struct {
	Invoice mapping.Invoice `json:"invoice"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrganizationID == 0 || req.VendorName == "" {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{errorBody{
			Code: "MISSING_FIELDS", Message: "organization_id and vendor_name are required",
		}})
		return
	}

	inv, err := s.store.CreateInvoice(r.Context(), mapping.Invoice{
		OrganizationID: req.OrganizationID,
		VendorName:     req.VendorName,
		InvoiceNumber:  req.InvoiceNumber,
		Fields:         req.Fields,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceResponse{Invoice: inv})
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.store.GetInvoice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetInvoice(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	attempts, err := s.store.ListSyncAttempts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}

type transitionRequest struct {
	Status mapping.Status `json:"status"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	inv, err := s.engine.Transition(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

type assignProfileRequest struct {
	ProfileID string `json:"profile_id"`
}

// handleAssignProfile overrides the invoice's sticky profile reference
// ahead of the next sync attempt. An empty profile_id clears the
// assignment so the next attempt reselects.
func (s *Server) handleAssignProfile(w http.ResponseWriter, r *http.Request) {
	var req assignProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.store.AssignProfile(r.Context(), id, req.ProfileID); err != nil {
		writeError(w, err)
		return
	}

	inv, err := s.store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

// handlePreviewInvoice selects the invoice's profile and runs the
// pipeline without side effects.
func (s *Server) handlePreviewInvoice(w http.ResponseWriter, r *http.Request) {
	payload, profile, err := s.engine.Preview(r.Context(), mux.Vars(r)["id"])
	if err != nil && !engine.IsIncompleteMapping(err) {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":             profile,
		"payload":             payload,
		"unresolved_required": payload.UnresolvedRequired(),
		"complete":            err == nil,
	})
}

// handleSync runs one operator-triggered sync attempt.
//
// An attempt that leaves the invoice SYNC_FAILED is reported with the
// invoice state and a 502/422/409 per the error class; the attempt
// itself is already persisted either way.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	inv, err := s.engine.AttemptSync(r.Context(), mux.Vars(r)["id"], engine.TriggerOperator)
	if err != nil {
		var pe *engine.PipelineError
		if errors.As(err, &pe) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"invoice": inv,
				"error":   errorBody{Code: string(pe.Code), Message: pe.Message, Targets: pe.Targets},
			})
			return
		}
		if inv.Status == mapping.StatusSyncFailed {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"invoice": inv,
				"error": errorBody{
					Code:    inv.LastSyncErrorCode,
					Message: inv.LastSyncError,
				},
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RetrySweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempted": res.Attempted,
		"synced":    res.Synced,
		"failed":    res.Failed,
	})
}
