package receipt

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"ln-donations/internal/config"
)

// SettingsFunc returns the SMTP settings. It is called for every receipt.
type SettingsFunc func() (config.MailSettings, error)

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends receipts over SMTP.
type Mailer struct {
	log       *logrus.Entry
	settings  SettingsFunc
	newSender func(config.MailSettings) (sender, error)
}

func NewMailer(settings SettingsFunc, log *logrus.Entry) *Mailer {
	return &Mailer{
		log:       log,
		settings:  settings,
		newSender: newSMTPClient,
	}
}

func newSMTPClient(settings config.MailSettings) (sender, error) {
	opts := []mail.Option{
		mail.WithPort(settings.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(settings.User),
		mail.WithPassword(settings.Password),
	}
	if settings.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(settings.Host, opts...)
}

// Send implements Dispatcher.Send.
func (m *Mailer) Send(ctx context.Context, r Receipt) error {
	log := m.log.WithFields(logrus.Fields{
		"method":     "Send",
		"invoice_id": r.InvoiceID,
	})

	settings, err := m.settings()
	if err != nil {
		return err
	}

	composed, err := Compose(r)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(settings.From); err != nil {
		return errors.Wrap(err, "invalid sender address")
	}
	if err := msg.To(composed.To); err != nil {
		return errors.Wrap(err, "invalid recipient address")
	}
	msg.Subject(composed.Subject)
	msg.SetBodyString(mail.TypeTextPlain, composed.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, composed.HTML)

	client, err := m.newSender(settings)
	if err != nil {
		return &DispatchError{InvoiceID: r.InvoiceID, Err: err}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		log.WithError(err).Warn("failure sending receipt")
		return &DispatchError{InvoiceID: r.InvoiceID, Err: err}
	}

	log.Debug("receipt sent")
	return nil
}
