package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/oracle"
)

// AttestService defines what the development attestation endpoints need.
type AttestService interface {
	Attest(ctx context.Context, instanceID string, reqID domain.RequestID, outcome bool) (oracle.Attestation, error)
	AttestorKey() (domain.GroupPubKey, bool)
}

// AttestHandler exposes the development attestor. It is only mounted when
// devnet mode is enabled.
type AttestHandler struct {
	attest AttestService
	logger *slog.Logger
}

// NewAttestHandler creates an AttestHandler.
func NewAttestHandler(attest AttestService, logger *slog.Logger) *AttestHandler {
	return &AttestHandler{attest: attest, logger: logHandler(logger, "attest")}
}

type attestRequest struct {
	InstanceID string           `json:"instance_id"`
	Outcome    *bool            `json:"outcome"`
	RequestID  domain.RequestID `json:"request_id"`
}

// Attest signs an outcome for a bound question.
// POST /api/dev/attest
func (h *AttestHandler) Attest(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InstanceID == "" || req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "instance_id and outcome are required")
		return
	}

	if _, ok := h.attest.AttestorKey(); !ok {
		writeError(w, http.StatusNotFound, "attestor disabled")
		return
	}

	a, err := h.attest.Attest(r.Context(), req.InstanceID, req.RequestID, *req.Outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to attest", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GroupKey returns the attestor's group public key, to bind new questions to.
// GET /api/dev/attestor
func (h *AttestHandler) GroupKey(w http.ResponseWriter, r *http.Request) {
	key, ok := h.attest.AttestorKey()
	if !ok {
		writeError(w, http.StatusNotFound, "attestor disabled")
		return
	}
	writeJSON(w, http.StatusOK, key)
}
