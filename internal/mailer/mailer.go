// Package mailer composes and delivers registration confirmation emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"eventgate/internal/metrics"
	"eventgate/internal/qrpass"
	"eventgate/internal/registration"
)

//go:embed templates/confirmation.html
var templateFS embed.FS

var confirmationTmpl = template.Must(template.ParseFS(templateFS, "templates/confirmation.html"))

// Subject of every confirmation email.
const Subject = "Event Registration Confirmed - ISTE"

// Image is an inline image referenced from the HTML body as cid:<Name>.
type Image struct {
	Name string
	Data []byte
}

// Email is a composed message ready for a Sender.
type Email struct {
	To      string
	Subject string
	HTML    string
	Inline  []Image
}

// Sender delivers composed emails.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

// NewSMTPSender creates a sender for host:port using PLAIN auth when username is set.
func NewSMTPSender(host string, port int, username, password, from, fromName string) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(host, port, username, password),
		from:     from,
		fromName: fromName,
	}
}

// Send dials the relay and transmits e.
func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", e.To)
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/html", e.HTML)
	for _, img := range e.Inline {
		data := img.Data
		m.Embed(img.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogSender records emails in the log instead of sending them. Used when no relay is configured.
type LogSender struct {
	Log zerolog.Logger
}

// Send logs e.
func (s LogSender) Send(_ context.Context, e Email) error {
	s.Log.Info().Str("to", e.To).Str("subject", e.Subject).Int("inline_images", len(e.Inline)).Msg("email not sent: no smtp relay configured")
	return nil
}

// Confirmer builds the QR pass for a registration and mails it to the registrant.
type Confirmer struct {
	sender    Sender
	eventName string
	now       func() time.Time
	log       zerolog.Logger
}

// NewConfirmer creates a Confirmer.
func NewConfirmer(sender Sender, eventName string, log zerolog.Logger) *Confirmer {
	return &Confirmer{
		sender:    sender,
		eventName: eventName,
		now:       time.Now,
		log:       log.With().Str("component", "mailer").Logger(),
	}
}

type confirmationView struct {
	ID        int64
	FullName  string
	Year      string
	Branch    string
	EventName string
	QRName    string
}

// Compose renders the confirmation email for reg.
func (c *Confirmer) Compose(reg registration.Registration) (Email, error) {
	png, err := qrpass.New(reg.ID, reg.FullName(), reg.Email, c.now()).PNG()
	if err != nil {
		return Email{}, err
	}
	qrName := fmt.Sprintf("qrcode-%d.png", reg.ID)

	var body bytes.Buffer
	err = confirmationTmpl.Execute(&body, confirmationView{
		ID:        reg.ID,
		FullName:  reg.FullName(),
		Year:      reg.Year,
		Branch:    reg.Branch,
		EventName: c.eventName,
		QRName:    qrName,
	})
	if err != nil {
		return Email{}, fmt.Errorf("render confirmation: %w", err)
	}

	return Email{
		To:      reg.Email,
		Subject: Subject,
		HTML:    body.String(),
		Inline:  []Image{{Name: qrName, Data: png}},
	}, nil
}

// SendConfirmation composes and sends the confirmation for reg.
func (c *Confirmer) SendConfirmation(ctx context.Context, reg registration.Registration) error {
	e, err := c.Compose(reg)
	if err != nil {
		metrics.Mails.WithLabelValues("error").Inc()
		return err
	}
	if err := c.sender.Send(ctx, e); err != nil {
		metrics.Mails.WithLabelValues("error").Inc()
		return err
	}
	metrics.Mails.WithLabelValues("sent").Inc()
	c.log.Info().Int64("registration_id", reg.ID).Msg("confirmation sent")
	return nil
}
