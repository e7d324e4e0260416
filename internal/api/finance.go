package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pcapi/internal/utils"

	"github.com/go-chi/chi/v5"
)

type cashflowsRequest struct {
	Cutoff time.Time `json:"cutoff" validate:"required"`
}

func (h *Handler) OffererRevenue(w http.ResponseWriter, r *http.Request) {
	offererID, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	year := h.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		year, err = strconv.Atoi(y)
		if err != nil || year < 2000 {
			WriteError(w, h.Logger, &requestError{msg: "invalid year"})
			return
		}
	}

	revenue, err := h.Finance.GetOffererRevenue(r.Context(), offererID, year)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Offerer revenue", revenue))
}

// PricingPointRevenue answers the year-to-date revenue that drives the
// reimbursement rate of a pricing point.
func (h *Handler) PricingPointRevenue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	revenue, err := h.Finance.PricingPointRevenue(r.Context(), id, h.Now())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pricing point revenue", map[string]interface{}{
		"pricing_point_id": id,
		"revenue":          revenue,
	}))
}

func (h *Handler) GenerateCashflows(w http.ResponseWriter, r *http.Request) {
	var req cashflowsRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	batch, cashflows, err := h.Finance.GenerateCashflows(r.Context(), req.Cutoff)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	h.Logger.LogFinance("CASHFLOWS", fmt.Sprintf("batch %s generated from API with %d cashflows", batch.Label, len(cashflows)))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Cashflow batch generated", map[string]interface{}{
		"batch":     batch,
		"cashflows": cashflows,
	}))
}

func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	batchID, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	invoices, err := h.Finance.GenerateInvoices(r.Context(), batchID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Invoices generated", invoices))
}

func (h *Handler) AcceptBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := idParam(r, "id")
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	n, err := h.Finance.AcceptBatch(r.Context(), batchID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	h.Logger.LogFinance("ACCEPT", fmt.Sprintf("batch %d: %d cashflows accepted", batchID, n))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d cashflows accepted", n), nil))
}

func (h *Handler) InvoiceCSV(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	var buf bytes.Buffer
	if err := h.Finance.ExportInvoiceCSV(r.Context(), ref, &buf); err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) InvoicePDF(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	var buf bytes.Buffer
	if err := h.Finance.ExportInvoicePDF(r.Context(), ref, &buf); err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
