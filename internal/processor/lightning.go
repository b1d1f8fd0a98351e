package processor

import "strings"

// DefaultLightningIDs are the discriminators processor versions have used for
// the Lightning channel.
var DefaultLightningIDs = []string{
	"BTC-LightningNetwork",
	"BTC-LN",
	"BTC_LightningLike",
	"BTC-LightningLike",
}

// Classifier picks the Lightning channel out of a payment method list. The
// processor has no single field for this, so every plausible field and
// combination is matched against a configurable list of identifiers.
type Classifier struct {
	ids map[string]struct{}
}

// NewClassifier matches the given identifiers case-insensitively. With no
// identifiers it uses DefaultLightningIDs.
func NewClassifier(ids ...string) *Classifier {
	if len(ids) == 0 {
		ids = DefaultLightningIDs
	}
	c := &Classifier{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	return c
}

// IsLightning reports whether m is a Lightning channel.
func (c *Classifier) IsLightning(m PaymentMethod) bool {
	candidates := []string{m.PaymentMethodID, m.PaymentMethod}
	if m.CryptoCode != "" && m.PaymentMethod != "" {
		candidates = append(candidates,
			m.CryptoCode+"-"+m.PaymentMethod,
			m.CryptoCode+"_"+m.PaymentMethod,
		)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, ok := c.ids[strings.ToLower(candidate)]; ok {
			return true
		}
	}
	return false
}

// Destination returns the first Lightning destination in methods.
func (c *Classifier) Destination(methods []PaymentMethod) (string, bool) {
	for _, m := range methods {
		dest := strings.TrimSpace(m.Destination)
		if dest != "" && c.IsLightning(m) {
			return dest, true
		}
	}
	return "", false
}
