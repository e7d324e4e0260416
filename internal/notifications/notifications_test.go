package notifications

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"pcapi/internal/config"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/mailersend/mailersend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []*mailersend.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, message)
	header := http.Header{}
	header.Set("X-Message-Id", "msg-1")
	return &mailersend.Response{Response: &http.Response{Header: header}}, nil
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestMailerSendBuildsMessage(t *testing.T) {
	sender := &fakeSender{}
	m := &MailerSend{sender: sender, FromEmail: "support@passculture.app", FromName: "pass Culture", Timeout: time.Second, Logger: logger.Nop()}

	err := m.Send(context.Background(), Message{
		To:         "jeune@example.com",
		Subject:    "Hello",
		TemplateID: "tmpl-1",
		Data:       map[string]interface{}{"token": "ABC234"},
		Tags:       []string{"booking_confirmation"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "support@passculture.app", msg.From.Email)
	assert.Equal(t, "jeune@example.com", msg.Recipients[0].Email)
	assert.Equal(t, "tmpl-1", msg.TemplateID)
	assert.Equal(t, "ABC234", msg.Personalization[0].Data["token"])
}

func TestMailerSendWrapsError(t *testing.T) {
	m := &MailerSend{sender: &fakeSender{err: errors.New("422")}, Timeout: time.Second, Logger: logger.Nop()}

	err := m.Send(context.Background(), Message{To: "a@b.c", Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send email")
}

func TestNewMailerWithoutKeyLogsOnly(t *testing.T) {
	m := NewMailer("", "pass Culture", "support@passculture.app", logger.Nop())
	_, ok := m.(LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), Message{To: "a@b.c"}))
}

func TestNotifierBookingConfirmed(t *testing.T) {
	mailer := new(MockMailer)
	n := NewNotifier(mailer, config.MailTemplates{BookingConfirmation: "confirm-tmpl"})

	user := &models.User{Email: "jeune@example.com", FirstName: "Camille"}
	booking := &models.Booking{Token: "XYZ789", Quantity: 2, Amount: 1250}
	offer := &models.Offer{Name: "Concert", SubcategoryID: "CONCERT", Venue: &models.Venue{Name: "Olympia"}}

	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.To == "jeune@example.com" &&
			msg.TemplateID == "confirm-tmpl" &&
			msg.Data["total"] == "25,00 €" &&
			msg.Data["venue_name"] == "Olympia" &&
			msg.Data["is_event"] == true
	})).Return(nil)

	require.NoError(t, n.BookingConfirmed(context.Background(), user, booking, offer))
	mailer.AssertExpectations(t)
}

func TestNotifierCollectiveWithoutBookingEmail(t *testing.T) {
	mailer := new(MockMailer)
	n := NewNotifier(mailer, config.MailTemplates{})

	err := n.CollectiveBookingConfirmed(context.Background(), &models.Venue{Name: "Musée"},
		&models.CollectiveBooking{}, &models.CollectiveOffer{Name: "Visite"}, 10000)
	require.NoError(t, err)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFormatEuros(t *testing.T) {
	assert.Equal(t, "0,05 €", formatEuros(5))
	assert.Equal(t, "300,00 €", formatEuros(30000))
	assert.Equal(t, "-12,34 €", formatEuros(-1234))
}
