package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignConfirmation produces the hex HMAC-SHA256 signature the storefront sends
// back after a client-side capture, computed over "orderID|paymentID".
func SignConfirmation(secret, gatewayOrderID, gatewayPaymentID string) string {
	return signHex(secret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// VerifyConfirmation checks a client confirmation signature in constant time.
func VerifyConfirmation(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	expected := SignConfirmation(secret, gatewayOrderID, gatewayPaymentID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// SignWebhook produces the hex HMAC-SHA256 signature for a webhook body.
func SignWebhook(secret string, body []byte) string {
	return signHex(secret, body)
}

// VerifyWebhook checks the gateway webhook signature: hex HMAC-SHA256 over the
// raw request body with the webhook signing secret.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	expected := signHex(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func signHex(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
