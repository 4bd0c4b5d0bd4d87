package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature checks X-Twilio-Signature against the auth token.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignTwilioRequest returns the signature Twilio would send for the given
// URL and form. Used by tests and local tooling.
func SignTwilioRequest(authToken, webhookURL string, form url.Values) string {
	return computeSignature(buildSignaturePayload(webhookURL, form), authToken)
}

// URL followed by each key/value pair in key order.
func buildSignaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundSMS is an inbound text delivered by the Twilio messaging webhook.
type InboundSMS struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
	NumMedia   string
}

// ParseTwilioSMS parses the messaging webhook form.
func ParseTwilioSMS(r *http.Request) (InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return InboundSMS{}, fmt.Errorf("messaging: parse sms form: %w", err)
	}
	return InboundSMS{
		MessageSid: strings.TrimSpace(r.FormValue("MessageSid")),
		AccountSid: strings.TrimSpace(r.FormValue("AccountSid")),
		From:       strings.TrimSpace(r.FormValue("From")),
		To:         strings.TrimSpace(r.FormValue("To")),
		Body:       strings.TrimSpace(r.FormValue("Body")),
		NumMedia:   r.FormValue("NumMedia"),
	}, nil
}

// WebhookURL reconstructs the public URL the provider signed. When a public
// base URL is configured it wins over forwarded headers.
func WebhookURL(r *http.Request, publicBaseURL string) string {
	if r.URL == nil {
		return ""
	}
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
