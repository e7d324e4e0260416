package api

import (
	"fmt"
	"net/http"

	"pcapi/internal/auth"
	"pcapi/internal/booking"
	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/go-chi/chi/v5"
)

type bookRequest struct {
	StockID  int64 `json:"stock_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,oneof=1 2"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	var req bookRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	b, err := h.Bookings.Book(r.Context(), c.UserID, req.StockID, req.Quantity)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", b))
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	bookings, err := h.Bookings.ListForUser(r.Context(), c.UserID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d bookings", len(bookings)), bookings))
}

// canSee lets beneficiaries read their own bookings and pros or support
// read any booking.
func canSee(c auth.Claims, b *models.Booking) bool {
	return b.UserID == c.UserID || c.HasRole(auth.RolePro) || c.HasRole(auth.RoleAdmin)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
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

	b, err := h.Bookings.Get(r.Context(), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if !canSee(c, b) {
		WriteError(w, h.Logger, booking.ErrBookingNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking", b))
}

// CancelBooking cancels on behalf of the caller: support and pros may
// cancel any booking, beneficiaries only their own.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
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

	var b *models.Booking
	switch {
	case c.HasRole(auth.RoleAdmin):
		b, err = h.Bookings.Cancel(r.Context(), id, models.CancelledBySupport)
	case c.HasRole(auth.RolePro):
		b, err = h.Bookings.Cancel(r.Context(), id, models.CancelledByOfferer)
	default:
		b, err = h.Bookings.CancelByBeneficiary(r.Context(), c.UserID, id)
	}
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", b))
}

func (h *Handler) GetBookingByToken(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking", b))
}

func (h *Handler) UseBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.MarkUsed(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking used", b))
}

func (h *Handler) UnuseBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.MarkUnused(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking unused", b))
}

// UseBookingAfterCancellation is the support action for a cancelled booking
// the beneficiary attended anyway.
func (h *Handler) UseBookingAfterCancellation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	b, err := h.Bookings.MarkUsedAfterCancellation(r.Context(), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking used after cancellation", b))
}

func (h *Handler) BookingQRCode(w http.ResponseWriter, r *http.Request) {
	c, err := claims(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	b, err := h.Bookings.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if !canSee(c, b) {
		WriteError(w, h.Logger, booking.ErrBookingNotFound)
		return
	}

	png, err := h.QR.PNG(b.Token)
	if err != nil {
		WriteError(w, h.Logger, fmt.Errorf("failed to render QR code: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
