package api

import (
	"fmt"
	"net/http"
	"time"

	"pcapi/internal/auth"
	"pcapi/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions holds what the router needs besides the handler.
type RouterOptions struct {
	Verifier      auth.Verifier
	WebhookSecret string
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))

	r.Get("/health", h.Health)

	r.With(auth.WebhookToken(opts.WebhookSecret, h.Logger)).Post("/webhooks/identity", h.IdentityWebhook)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, h.Logger))

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListMyBookings)
			r.Post("/", h.Book)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Get("/token/{token}/qrcode", h.BookingQRCode)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RolePro))
				r.Get("/token/{token}", h.GetBookingByToken)
				r.Patch("/token/{token}/use", h.UseBooking)
				r.Patch("/token/{token}/unuse", h.UnuseBooking)
			})
			r.With(auth.RequireRole(auth.RoleAdmin)).Patch("/{id}/use-after-cancellation", h.UseBookingAfterCancellation)
		})

		r.Route("/collective/bookings", func(r chi.Router) {
			r.With(auth.RequireRole(auth.RoleEducational, auth.RoleAdmin)).Post("/", h.PreBookCollective)
			r.With(auth.RequireRole(auth.RoleEducational, auth.RoleAdmin)).Post("/{id}/confirm", h.ConfirmCollective)
			r.With(auth.RequireRole(auth.RoleEducational, auth.RolePro, auth.RoleAdmin)).Post("/{id}/cancel", h.CancelCollective)
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Post("/fraud-checks", h.RecordFraudCheck)
			r.Get("/next-step", h.NextStep)
		})

		r.Route("/finance", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/offerers/{id}/revenue", h.OffererRevenue)
			r.Get("/pricing-points/{id}/revenue", h.PricingPointRevenue)
			r.Post("/cashflows", h.GenerateCashflows)
			r.Post("/batches/{id}/invoices", h.GenerateInvoices)
			r.Post("/batches/{id}/accept", h.AcceptBatch)
			r.Get("/invoices/{ref}/csv", h.InvoiceCSV)
			r.Get("/invoices/{ref}/pdf", h.InvoicePDF)
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
