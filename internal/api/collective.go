package api

import (
	"net/http"

	"pcapi/internal/auth"
	"pcapi/internal/models"
	"pcapi/internal/utils"
)

type preBookRequest struct {
	StockID       int64 `json:"stock_id" validate:"required,gt=0"`
	InstitutionID int64 `json:"institution_id" validate:"required,gt=0"`
}

type collectiveCancelRequest struct {
	Reason models.CollectiveCancellationReason `json:"reason" validate:"omitempty,oneof=OFFERER EDUCATIONAL_INSTITUTION BACKOFFICE"`
}

// PreBookCollective books for the authenticated redactor, identified by email.
func (h *Handler) PreBookCollective(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	var req preBookRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	b, err := h.Collective.PreBook(r.Context(), req.StockID, req.InstitutionID, c.Email)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Collective booking pending", b))
}

func (h *Handler) ConfirmCollective(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	b, err := h.Collective.Confirm(r.Context(), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Collective booking confirmed", b))
}

// CancelCollective takes the reason from the caller's role. Support may pass
// another reason in the body.
func (h *Handler) CancelCollective(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	var reason models.CollectiveCancellationReason
	switch {
	case c.HasRole(auth.RoleAdmin):
		req := collectiveCancelRequest{}
		if r.ContentLength != 0 {
			if err := h.decode(r, &req); err != nil {
				WriteError(w, h.Logger, err)
				return
			}
		}
		reason = req.Reason
		if reason == "" {
			reason = models.CollectiveCancelledBySupport
		}
	case c.HasRole(auth.RoleEducational):
		reason = models.CollectiveCancelledByInstitution
	default:
		reason = models.CollectiveCancelledByOfferer
	}

	b, err := h.Collective.Cancel(r.Context(), id, reason)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Collective booking cancelled", b))
}
