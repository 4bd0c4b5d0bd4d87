package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

type stubInbound struct {
	got []messaging.InboundSMS
	err error
}

func (s *stubInbound) HandleInboundSMS(ctx context.Context, in messaging.InboundSMS) (conversation.InboundResult, error) {
	s.got = append(s.got, in)
	return conversation.InboundResult{ConversationID: "conv-1", Sent: true}, s.err
}

func TestSMSInbound_AcknowledgesWithEmptyTwiML(t *testing.T) {
	svc := &stubInbound{}
	h := NewSMSHandler(svc, Inline, nil, logging.Discard())

	rr := httptest.NewRecorder()
	h.Inbound(rr, postForm(PathSMS, url.Values{
		"MessageSid": {"SM1"},
		"From":       {"+17195551234"},
		"To":         {"+17205550100"},
		"Body":       {"  Are you open Saturday?  "},
	}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Response></Response>")
	require.Len(t, svc.got, 1)
	assert.Equal(t, "Are you open Saturday?", svc.got[0].Body)
	assert.Equal(t, "SM1", svc.got[0].MessageSid)
}

func TestSMSInbound_ServiceErrorStillReturns200(t *testing.T) {
	svc := &stubInbound{err: errors.New("db down")}
	h := NewSMSHandler(svc, Inline, nil, logging.Discard())

	rr := httptest.NewRecorder()
	h.Inbound(rr, postForm(PathSMS, url.Values{"MessageSid": {"SM2"}, "From": {"+17195551234"}, "Body": {"hi"}}))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, svc.got, 1)
}

func TestSMSInbound_MissingSenderIgnored(t *testing.T) {
	svc := &stubInbound{}
	h := NewSMSHandler(svc, Inline, nil, logging.Discard())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, PathSMS, strings.NewReader("Body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Inbound(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, svc.got)
}
