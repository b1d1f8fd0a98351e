package checkout

import (
	"strings"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const lightningScheme = "lightning:"

// BOLT11 human readable prefixes for mainnet, testnet, signet and regtest.
var lightningPrefixes = []string{"lnbc", "lntb", "lntbs", "lnbcrt"}

// DeepLink opens a payment request in a wallet app.
type DeepLink struct {
	Wallet string
	URL    string
}

var walletSchemes = []DeepLink{
	{Wallet: "Default wallet", URL: lightningScheme},
	{Wallet: "Wallet of Satoshi", URL: "walletofsatoshi:" + lightningScheme},
	{Wallet: "Zeus", URL: "zeusln:" + lightningScheme},
	{Wallet: "BlueWallet", URL: "bluewallet:" + lightningScheme},
}

// PaymentTarget is what the donor pays: either a Lightning payment request
// or, when none could be resolved, the processor's checkout page.
type PaymentTarget struct {
	Payload     string
	QRPayload   string
	IsLightning bool
	DeepLinks   []DeepLink
	QR          []byte
}

// IsLightningRequest reports whether s is a BOLT11 payment request, with or
// without the lightning: scheme.
func IsLightningRequest(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, lightningScheme)
	for _, prefix := range lightningPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// NewPaymentTarget classifies destination and renders its QR code as PNG.
func NewPaymentTarget(destination string, qrSize int) (*PaymentTarget, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("no payment destination")
	}

	target := &PaymentTarget{
		Payload:   destination,
		QRPayload: destination,
	}

	if IsLightningRequest(destination) {
		request := destination
		if strings.HasPrefix(strings.ToLower(request), lightningScheme) {
			request = request[len(lightningScheme):]
		}
		target.Payload = request
		target.QRPayload = lightningScheme + request
		target.IsLightning = true
		for _, w := range walletSchemes {
			target.DeepLinks = append(target.DeepLinks, DeepLink{Wallet: w.Wallet, URL: w.URL + request})
		}
	}

	png, err := qrcode.Encode(target.QRPayload, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render payment qr code")
	}
	target.QR = png
	return target, nil
}

// Terminal renders the QR payload for display in a terminal.
func (t *PaymentTarget) Terminal() (string, error) {
	q, err := qrcode.New(t.QRPayload, qrcode.Low)
	if err != nil {
		return "", errors.Wrap(err, "failed to render payment qr code")
	}
	return q.ToSmallString(false), nil
}
