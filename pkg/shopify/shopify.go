// Package shopify implements Shopify webhook signature verification and
// topic normalization for incoming commerce events.
package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature header")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoSecret         = errors.New("webhook secret is not configured")
)

// VerifySignature checks a Shopify HMAC-SHA256 signature against the raw
// request body. Shopify sends the digest base64-encoded.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrNoSecret
	}
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Verifier adapts VerifySignature to the webhooks middleware contract.
type Verifier struct {
	Secret string
}

func (v *Verifier) Verify(_ context.Context, r *http.Request, body []byte) error {
	return VerifySignature(v.Secret, body, r.Header.Get(HeaderHmac))
}

// NormalizeTopic converts a Shopify topic like "orders/create" into the
// canonical event type "orders_create".
func NormalizeTopic(topic string) string {
	return strings.ReplaceAll(strings.TrimSpace(topic), "/", "_")
}

// CommerceEventType maps a Shopify topic onto the commerce event taxonomy
// used by the event log. Topics outside the taxonomy fall back to the
// normalized topic itself.
func CommerceEventType(topic string) string {
	switch topic {
	case "orders/create", "orders/paid":
		return "purchase_completed"
	case "checkouts/create":
		return "checkout_started"
	case "products/update", "products/create":
		return "product_view"
	case "customers/create", "customers/update":
		return "customer_updated"
	default:
		return NormalizeTopic(topic)
	}
}

// IsUninstall reports whether the topic signals app removal from a shop.
func IsUninstall(topic string) bool {
	return topic == "app/uninstalled"
}
