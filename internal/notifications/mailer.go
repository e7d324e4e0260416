package notifications

import (
	"context"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/mailersend/mailersend-go"
)

// Message is a templated transactional email.
type Message struct {
	To         string
	ToName     string
	Subject    string
	TemplateID string
	Data       map[string]interface{}
	Tags       []string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type emailSender interface {
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

// MailerSend sends through the MailerSend API.
type MailerSend struct {
	client    *mailersend.Mailersend
	sender    emailSender
	FromEmail string
	FromName  string
	Timeout   time.Duration
	Logger    *logger.Logger
}

func NewMailerSend(apiKey, fromName, fromEmail string, log *logger.Logger) *MailerSend {
	client := mailersend.NewMailersend(apiKey)
	return &MailerSend{
		client:    client,
		sender:    client.Email,
		FromEmail: fromEmail,
		FromName:  fromName,
		Timeout:   5 * time.Second,
		Logger:    log,
	}
}

func (m *MailerSend) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	message := m.newMessage()
	message.SetFrom(mailersend.From{Name: m.FromName, Email: m.FromEmail})
	message.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	message.SetSubject(msg.Subject)
	if msg.TemplateID != "" {
		message.SetTemplateID(msg.TemplateID)
	}
	if len(msg.Data) > 0 {
		message.SetPersonalization([]mailersend.Personalization{{Email: msg.To, Data: msg.Data}})
	}
	if len(msg.Tags) > 0 {
		message.SetTags(msg.Tags)
	}

	res, err := m.sender.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	messageID := ""
	if res != nil && res.Header != nil {
		messageID = res.Header.Get("X-Message-Id")
	}
	m.Logger.Info("MAIL", fmt.Sprintf("Email %q sent to %s (message id %s)", msg.Subject, msg.To, messageID))
	return nil
}

func (m *MailerSend) newMessage() *mailersend.Message {
	if m.client != nil {
		return m.client.Email.NewMessage()
	}
	return &mailersend.Message{}
}

// LogMailer only logs; used when no API key is configured.
type LogMailer struct {
	Logger *logger.Logger
}

func (l LogMailer) Send(ctx context.Context, msg Message) error {
	l.Logger.Info("MAIL", fmt.Sprintf("[dry-run] %q to %s template=%s", msg.Subject, msg.To, msg.TemplateID))
	return nil
}

// NewMailer picks MailerSend when an API key is set.
func NewMailer(apiKey, fromName, fromEmail string, log *logger.Logger) Mailer {
	if apiKey == "" {
		log.Warn("MAIL", "MAILERSEND_API_KEY not set, emails are only logged")
		return LogMailer{Logger: log}
	}
	return NewMailerSend(apiKey, fromName, fromEmail, log)
}
