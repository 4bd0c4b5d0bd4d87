// Command webhook-edge is an API Gateway Lambda that forwards Twilio
// webhooks to the dispatch API. When the API is unreachable, inbound calls
// are still answered with voicemail.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/frontdesk-dispatch/internal/http/handlers"
	"github.com/wolfman30/frontdesk-dispatch/internal/missedcall"
	"github.com/wolfman30/frontdesk-dispatch/internal/telephony"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

type config struct {
	upstreamBaseURL  string
	upstreamTimeout  time.Duration
	voicemailSeconds int
}

func loadConfig() (config, error) {
	baseURL := strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL"))
	if baseURL == "" {
		return config{}, errors.New("UPSTREAM_BASE_URL is required")
	}

	cfg := config{
		upstreamBaseURL:  strings.TrimRight(baseURL, "/"),
		upstreamTimeout:  5 * time.Second,
		voicemailSeconds: 120,
	}
	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}
		cfg.upstreamTimeout = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("VOICEMAIL_MAX_SECONDS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return config{}, fmt.Errorf("invalid VOICEMAIL_MAX_SECONDS %q", raw)
		}
		cfg.voicemailSeconds = n
	}
	return cfg, nil
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	edge := &edge{cfg: cfg, client: &http.Client{Timeout: cfg.upstreamTimeout}, logger: logger}
	lambda.Start(edge.handle)
}

type edge struct {
	cfg    config
	client *http.Client
	logger *logging.Logger
}

var forwardedPaths = map[string]bool{
	handlers.PathVoice:         true,
	handlers.PathDialStatus:    true,
	handlers.PathRecording:     true,
	handlers.PathTranscription: true,
	handlers.PathSMS:           true,
}

func (e *edge) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}
	if !forwardedPaths[path] {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	resp, err := e.forward(ctx, path, body, evt)
	if err != nil {
		e.logger.Error("upstream unavailable", "path", path, "error", err)
		return e.degraded(path, body), nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.logger.Warn("upstream error", "path", path, "status", resp.StatusCode)
		return e.degraded(path, body), nil
	}
	return resp, nil
}

func (e *edge) forward(ctx context.Context, path string, body []byte, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	upstreamURL := e.cfg.upstreamBaseURL + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		upstreamURL += "?" + qs
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.upstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	if ct := headerValue(evt.Headers, "content-type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	copyHeader(req.Header, evt.Headers, "x-twilio-signature")

	host := strings.TrimSpace(evt.RequestContext.DomainName)
	if host == "" {
		host = strings.TrimSpace(headerValue(evt.Headers, "host"))
	}
	proto := strings.TrimSpace(headerValue(evt.Headers, "x-forwarded-proto"))
	if proto == "" {
		proto = "https"
	}
	if host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	req.Header.Set("X-Forwarded-Proto", proto)

	resp, err := e.client.Do(req)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("read upstream body: %w", err)
	}
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Headers:    map[string]string{},
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out, nil
}

// degraded answers a webhook without the API. New calls and unanswered dials
// go to voicemail, whose callbacks still point at the API.
func (e *edge) degraded(path string, body []byte) events.APIGatewayV2HTTPResponse {
	twiml := telephony.RenderEmpty()
	if path == handlers.PathDialStatus {
		form, _ := url.ParseQuery(string(body))
		if !missedcall.ShouldGreet(form.Get("DialCallStatus")) {
			path = ""
			twiml = telephony.RenderHangup()
		}
	}
	switch path {
	case handlers.PathVoice, handlers.PathDialStatus:
		callbacks := handlers.WebhookCallbacks(e.cfg.upstreamBaseURL)
		rendered, err := telephony.RenderVoicemail(callbacks.RecordingURL, callbacks.TranscriptionURL, telephony.VoicemailOptions{MaxLengthSeconds: e.cfg.voicemailSeconds})
		if err != nil {
			e.logger.Error("render fallback voicemail", "error", err)
			twiml = telephony.RenderHangup()
		} else {
			twiml = rendered
		}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Body:       twiml,
		Headers:    map[string]string{"content-type": "text/xml"},
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func copyHeader(dst http.Header, src map[string]string, header string) {
	if value := strings.TrimSpace(headerValue(src, header)); value != "" {
		dst.Set(header, value)
	}
}
