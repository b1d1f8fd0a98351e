package receipt

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ln-donations/internal/models"
)

// Receipt is everything a donation receipt shows. Callers only build one for
// named donations with an email address.
type Receipt struct {
	DonorName     string
	DonorEmail    string
	Amount        decimal.Decimal
	Tier          models.Tier
	InvoiceID     string
	Date          time.Time
	TransactionID string
}

// Message is a composed receipt ready for a transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Dispatcher delivers receipts.
type Dispatcher interface {
	Send(ctx context.Context, r Receipt) error
}

// DispatchError is returned when the transport fails to deliver a receipt.
type DispatchError struct {
	InvoiceID string
	Err       error
}

func (e *DispatchError) Error() string {
	return "failed to send receipt for invoice " + e.InvoiceID + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

var impact = map[models.Tier]string{
	models.TierSupporter: "Your gift keeps our free introductory Bitcoin classes running every month.",
	models.TierFriend:    "Your gift covers printed learning material for a full workshop.",
	models.TierAdvocate:  "Your gift helps a local merchant start accepting Lightning payments.",
	models.TierChampion:  "Your gift funds a community meetup, venue and hardware included.",
	models.TierEducation: "Your gift sponsors a seat in our Bitcoin development course.",
	models.TierBusiness:  "Your gift supports onboarding a small business onto Lightning end to end.",
}

// ImpactMessage describes what a donation pays for. Tiers without a fixed
// message get a generic one mentioning the amount.
func ImpactMessage(tier models.Tier, amount decimal.Decimal) string {
	if msg, ok := impact[tier]; ok {
		return msg
	}
	return "Your gift of $" + amount.StringFixed(2) + " goes where our programs need it most."
}

type view struct {
	Name          string
	Amount        string
	Tier          string
	Date          string
	InvoiceID     string
	TransactionID string
	Impact        string
}

const subject = "Thank you for your donation"

var (
	textTemplate = template.Must(template.New("text").Parse(`Hi {{.Name}},

Thank you for supporting Bitcoin education and adoption in our community.

Amount:   ${{.Amount}}
Tier:     {{.Tier}}
Date:     {{.Date}}
Invoice:  {{.InvoiceID}}
{{- if .TransactionID}}
Transaction: {{.TransactionID}}
{{- end}}

{{.Impact}}

Keep this email as your donation receipt.
`))

	htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Thank you, {{.Name}}!</h2>
  <p>Thank you for supporting Bitcoin education and adoption in our community.</p>
  <table cellpadding="4">
    <tr><td><strong>Amount</strong></td><td>${{.Amount}}</td></tr>
    <tr><td><strong>Tier</strong></td><td>{{.Tier}}</td></tr>
    <tr><td><strong>Date</strong></td><td>{{.Date}}</td></tr>
    <tr><td><strong>Invoice</strong></td><td>{{.InvoiceID}}</td></tr>
    {{- if .TransactionID}}
    <tr><td><strong>Transaction</strong></td><td>{{.TransactionID}}</td></tr>
    {{- end}}
  </table>
  <p>{{.Impact}}</p>
  <p style="font-size: 12px; color: #666;">Keep this email as your donation receipt.</p>
</body>
</html>
`))
)

// Compose renders the subject and both bodies of a receipt.
func Compose(r Receipt) (*Message, error) {
	tierTitle := string(r.Tier)
	if info, ok := r.Tier.Info(); ok {
		tierTitle = info.Title
	}

	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}

	v := view{
		Name:          r.DonorName,
		Amount:        r.Amount.StringFixed(2),
		Tier:          tierTitle,
		Date:          date.UTC().Format("January 2, 2006"),
		InvoiceID:     r.InvoiceID,
		TransactionID: r.TransactionID,
		Impact:        ImpactMessage(r.Tier, r.Amount),
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, v); err != nil {
		return nil, errors.Wrap(err, "failed to render text receipt")
	}
	if err := htmlTemplate.Execute(&html, v); err != nil {
		return nil, errors.Wrap(err, "failed to render html receipt")
	}

	return &Message{
		To:      r.DonorEmail,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
