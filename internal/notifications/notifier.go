package notifications

import (
	"context"
	"fmt"
	"time"

	"pcapi/internal/config"
	"pcapi/internal/models"
)

// Notifier turns domain records into templated messages.
type Notifier struct {
	Mailer    Mailer
	Templates config.MailTemplates
}

func NewNotifier(mailer Mailer, templates config.MailTemplates) *Notifier {
	return &Notifier{Mailer: mailer, Templates: templates}
}

func formatEuros(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d €", sign, cents/100, cents%100)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

func (n *Notifier) BookingConfirmed(ctx context.Context, user *models.User, booking *models.Booking, offer *models.Offer) error {
	data := map[string]interface{}{
		"first_name":  user.FirstName,
		"offer_name":  offer.Name,
		"token":       booking.Token,
		"quantity":    booking.Quantity,
		"total":       formatEuros(booking.TotalAmount()),
		"is_event":    offer.IsEvent(),
		"is_digital":  offer.IsDigital(),
		"expiration":  formatDate(booking.ExpirationDate),
		"cancel_till": formatDate(booking.CancellationLimitDate),
	}
	if offer.Venue != nil {
		data["venue_name"] = offer.Venue.Name
	}
	return n.Mailer.Send(ctx, Message{
		To:         user.Email,
		ToName:     user.FirstName,
		Subject:    fmt.Sprintf("Ta réservation pour %s est confirmée", offer.Name),
		TemplateID: n.Templates.BookingConfirmation,
		Data:       data,
		Tags:       []string{"booking_confirmation"},
	})
}

func (n *Notifier) BookingCancelled(ctx context.Context, user *models.User, booking *models.Booking, offer *models.Offer) error {
	return n.Mailer.Send(ctx, Message{
		To:         user.Email,
		ToName:     user.FirstName,
		Subject:    fmt.Sprintf("Ta réservation pour %s a été annulée", offer.Name),
		TemplateID: n.Templates.BookingCancellation,
		Data: map[string]interface{}{
			"first_name": user.FirstName,
			"offer_name": offer.Name,
			"token":      booking.Token,
			"reason":     string(booking.CancellationReason),
			"refund":     formatEuros(booking.TotalAmount()),
		},
		Tags: []string{"booking_cancellation"},
	})
}

func (n *Notifier) CollectiveBookingConfirmed(ctx context.Context, venue *models.Venue, booking *models.CollectiveBooking, offer *models.CollectiveOffer, price int64) error {
	if venue.BookingEmail == "" {
		return nil
	}
	return n.Mailer.Send(ctx, Message{
		To:         venue.BookingEmail,
		ToName:     venue.Name,
		Subject:    fmt.Sprintf("Réservation confirmée par l'établissement pour %s", offer.Name),
		TemplateID: n.Templates.CollectiveConfirmation,
		Data: map[string]interface{}{
			"offer_name":     offer.Name,
			"venue_name":     venue.Name,
			"redactor_email": booking.RedactorEmail,
			"price":          formatEuros(price),
			"year":           booking.EducationalYearID,
		},
		Tags: []string{"collective_booking_confirmation"},
	})
}

func (n *Notifier) AccountActivated(ctx context.Context, user *models.User, deposit *models.Deposit) error {
	return n.Mailer.Send(ctx, Message{
		To:         user.Email,
		ToName:     user.FirstName,
		Subject:    "Ton pass Culture est activé",
		TemplateID: n.Templates.AccountActivation,
		Data: map[string]interface{}{
			"first_name": user.FirstName,
			"amount":     formatEuros(deposit.Amount),
			"expiration": formatDate(deposit.ExpirationDate),
		},
		Tags: []string{"account_activation"},
	})
}
