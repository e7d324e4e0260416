package api

import (
	"net/http"

	"pcapi/internal/models"
	"pcapi/internal/subscription"
	"pcapi/internal/utils"
)

type fraudCheckRequest struct {
	Type         models.FraudCheckType   `json:"type" validate:"required"`
	ThirdPartyID string                  `json:"third_party_id"`
	Content      *models.IdentityContent `json:"content"`
}

type identityWebhookRequest struct {
	ThirdPartyID string                 `json:"third_party_id" validate:"required"`
	Result       models.IdentityContent `json:"result"`
}

func (h *Handler) RecordFraudCheck(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	var req fraudCheckRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	check, err := h.Subscription.RecordFraudCheck(r.Context(), c.UserID, req.Type, req.ThirdPartyID, req.Content)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Fraud check recorded", check))
}

// IdentityWebhook receives identity provider results.
func (h *Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	var req identityWebhookRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	check, err := h.Subscription.ProcessIdentityResult(r.Context(), req.ThirdPartyID, &req.Result)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Identity result processed", check))
}

func (h *Handler) NextStep(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	step, err := h.Subscription.NextStep(r.Context(), c.UserID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Next subscription step", map[string]interface{}{
		"next_step": step,
		"complete":  step == subscription.StepNone,
	}))
}
