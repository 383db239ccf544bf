// Package httpapi is the thin HTTP layer. Handlers decode, delegate to the
// domain services, and translate errors; no business logic lives here.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"veriprint/internal/template/models"
	"veriprint/internal/verification"
	dErrors "veriprint/pkg/domain-errors"
	"veriprint/pkg/platform/httputil"
	"veriprint/pkg/requestcontext"
)

// Verifier runs the verification flow.
type Verifier interface {
	Verify(ctx context.Context, ownerID string, capture models.Capture) (*verification.Outcome, error)
}

// Enroller runs the enrollment flow.
type Enroller interface {
	Enroll(ctx context.Context, ownerID string, slot models.FingerSlot, capture models.Capture, meta models.EnrollMetadata) (*models.Template, error)
}

// TemplateLifecycle covers revocation and owner-level cascades.
type TemplateLifecycle interface {
	Revoke(ctx context.Context, id uuid.UUID) error
	DisableOwner(ctx context.Context, ownerID string) (int, error)
	RevokeOwner(ctx context.Context, ownerID string) (int, error)
}

// Handler wires the verification endpoints to their services.
type Handler struct {
	verifier  Verifier
	enroller  Enroller
	templates TemplateLifecycle
	logger    *slog.Logger
}

// New constructs a Handler with its dependencies.
func New(verifier Verifier, enroller Enroller, templates TemplateLifecycle, logger *slog.Logger) *Handler {
	return &Handler{
		verifier:  verifier,
		enroller:  enroller,
		templates: templates,
		logger:    logger,
	}
}

// Register mounts all endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/verify", h.HandleVerify)
	r.Post("/v1/enroll", h.HandleEnroll)
	r.Delete("/v1/templates/{templateID}", h.HandleRevoke)
	r.Post("/v1/owners/{ownerID}/disable", h.HandleDisableOwner)
	r.Post("/v1/owners/{ownerID}/revoke", h.HandleRevokeOwner)
}

// HandleVerify handles POST /v1/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "owner_id is required"))
		return
	}

	capture := models.Capture{Data: req.Capture, Format: models.CaptureFormat(req.Format)}
	outcome, err := h.verifier.Verify(ctx, req.OwnerID, capture)
	if err != nil {
		h.logger.WarnContext(ctx, "verification request failed",
			"request_id", requestID,
			"owner_id", req.OwnerID,
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromOutcome(outcome))
}

// HandleEnroll handles POST /v1/enroll requests.
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[EnrollRequest](w, r, h.logger)
	if !ok {
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "owner_id is required"))
		return
	}
	slot := models.FingerSlot(req.FingerSlot)
	if !slot.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "finger_slot must be between 0 and 9"))
		return
	}

	capture := models.Capture{Data: req.Capture, Format: models.CaptureFormat(req.Format)}
	tpl, err := h.enroller.Enroll(ctx, req.OwnerID, slot, capture, req.metadata())
	if err != nil {
		h.logger.WarnContext(ctx, "enrollment request failed",
			"request_id", requestID,
			"owner_id", req.OwnerID,
			"finger_slot", req.FingerSlot,
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, EnrollResponse{
		TemplateID: tpl.ID.String(),
		FingerSlot: int(tpl.FingerSlot),
		Quality:    tpl.QualityScore,
	})
}

// HandleRevoke handles DELETE /v1/templates/{templateID} requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "template id must be a UUID"))
		return
	}

	if err := h.templates.Revoke(ctx, templateID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisableOwner handles POST /v1/owners/{ownerID}/disable requests.
func (h *Handler) HandleDisableOwner(w http.ResponseWriter, r *http.Request) {
	h.cascadeOwner(w, r, h.templates.DisableOwner)
}

// HandleRevokeOwner handles POST /v1/owners/{ownerID}/revoke requests.
func (h *Handler) HandleRevokeOwner(w http.ResponseWriter, r *http.Request) {
	h.cascadeOwner(w, r, h.templates.RevokeOwner)
}

func (h *Handler) cascadeOwner(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) (int, error)) {
	ctx := r.Context()

	ownerID := chi.URLParam(r, "ownerID")
	count, err := apply(ctx, ownerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerCascadeResponse{OwnerID: ownerID, Count: count})
}
