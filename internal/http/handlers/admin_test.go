package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	"github.com/wolfman30/frontdesk-dispatch/internal/events"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/settings"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

type okSender struct{ sent []messaging.OutboundSMS }

func (s *okSender) SendSMS(ctx context.Context, msg messaging.OutboundSMS) (messaging.SendResult, error) {
	s.sent = append(s.sent, msg)
	return messaging.SendResult{Provider: "test", ProviderMessageID: "SM-op", Status: "queued"}, nil
}

type adminFixture struct {
	router chi.Router
	store  *conversation.MemoryStore
	sender *okSender
	log    *deliverylog.MemoryStore
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{
		store:  conversation.NewMemoryStore(),
		sender: &okSender{},
		log:    deliverylog.NewMemoryStore(),
	}
	svc := conversation.NewService(conversation.ServiceDeps{
		Store:      f.store,
		Sender:     f.sender,
		Deliveries: f.log,
		Tracker:    events.NewMemoryTracker(),
		Logger:     logging.Discard(),
	}, conversation.ServiceConfig{FromNumber: "+17205550100"})

	convs := NewAdminConversationsHandler(svc, f.log, logging.Discard())
	phone := NewAdminSettingsHandler(settings.NewMemoryStore(), logging.Discard())

	r := chi.NewRouter()
	r.Get("/admin/conversations", convs.List)
	r.Get("/admin/conversations/{id}", convs.Get)
	r.Post("/admin/conversations/{id}/reply", convs.Reply)
	r.Put("/admin/conversations/{id}/status", convs.SetStatus)
	r.Get("/admin/deliveries", convs.Deliveries)
	r.Get("/admin/settings/phone", phone.Get)
	r.Put("/admin/settings/phone", phone.Put)
	f.router = r
	return f
}

func (f *adminFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *adminFixture) seed(t *testing.T, phone string) conversation.Conversation {
	t.Helper()
	conv, _, err := f.store.FindOrCreateActive(context.Background(), conversation.FindOrCreateParams{Phone: phone, Channel: conversation.ChannelMissedCall})
	require.NoError(t, err)
	return conv
}

func TestAdminConversations_ListAndFilter(t *testing.T) {
	f := newAdminFixture(t)
	first := f.seed(t, "+17195551234")
	f.seed(t, "+17195550000")
	_, err := f.store.SetStatus(context.Background(), first.ID, conversation.StatusCompleted)
	require.NoError(t, err)

	rr := f.do(http.MethodGet, "/admin/conversations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var all conversationListResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&all))
	assert.Len(t, all.Conversations, 2)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, defaultPageSize, all.PageSize)

	rr = f.do(http.MethodGet, "/admin/conversations?status=COMPLETED", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var completed conversationListResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&completed))
	require.Len(t, completed.Conversations, 1)
	assert.Equal(t, first.ID, completed.Conversations[0].ID)

	rr = f.do(http.MethodGet, "/admin/conversations?page=2&page_size=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var paged conversationListResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&paged))
	assert.Len(t, paged.Conversations, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/conversations?status=archived", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/conversations?page=0", "").Code)
}

func TestAdminConversations_GetReplyAndStatus(t *testing.T) {
	f := newAdminFixture(t)
	conv := f.seed(t, "+17195551234")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/admin/conversations/missing", "").Code)

	rr := f.do(http.MethodPost, "/admin/conversations/"+conv.ID+"/reply", `{"body":"Hi, this is the front desk."}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+17195551234", f.sender.sent[0].To)

	rr = f.do(http.MethodGet, "/admin/conversations/"+conv.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got conversation.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, conversation.SentByHuman, got.Messages[0].SentBy)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/conversations/"+conv.ID+"/reply", `{"body":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/conversations/"+conv.ID+"/reply", `not json`).Code)

	rr = f.do(http.MethodPut, "/admin/conversations/"+conv.ID+"/status", `{"status":"escalated"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/admin/conversations/"+conv.ID+"/status", `{"status":"done"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, "/admin/conversations/missing/status", `{"status":"completed"}`).Code)
}

func TestAdminConversations_ReopenConflict(t *testing.T) {
	f := newAdminFixture(t)
	old := f.seed(t, "+17195551234")
	_, err := f.store.SetStatus(context.Background(), old.ID, conversation.StatusCompleted)
	require.NoError(t, err)
	f.seed(t, "+17195551234")

	rr := f.do(http.MethodPut, "/admin/conversations/"+old.ID+"/status", `{"status":"active"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAdminDeliveries(t *testing.T) {
	f := newAdminFixture(t)
	conv := f.seed(t, "+17195551234")
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/admin/conversations/"+conv.ID+"/reply", `{"body":"hello"}`).Code)

	rr := f.do(http.MethodGet, "/admin/deliveries?conversation_id="+conv.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Entries []deliverylog.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, deliverylog.TypeHumanReply, resp.Entries[0].Type)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/deliveries?limit=-1", "").Code)
}

func TestAdminSettings_GetAndPut(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(http.MethodGet, "/admin/settings/phone", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var current settings.PhoneSettings
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&current))
	assert.Equal(t, 0, current.Version)
	assert.Equal(t, settings.DefaultStartHour, current.BusinessStartHour)

	rr = f.do(http.MethodPut, "/admin/settings/phone", `{
		"business_start_hour": 8,
		"business_end_hour": 18,
		"active_weekdays": ["monday", "saturday"],
		"dial_targets": ["+17205550199"],
		"dial_timeout_seconds": 25,
		"timezone": "America/New_York"
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var saved settings.PhoneSettings
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&saved))
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, []string{"Monday", "Saturday"}, saved.ActiveWeekdays)

	rr = f.do(http.MethodPut, "/admin/settings/phone", `{"business_start_hour": 18, "business_end_hour": 8, "active_weekdays": ["Monday"], "dial_timeout_seconds": 20}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodGet, "/admin/settings/phone", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&current))
	assert.Equal(t, 1, current.Version)
}
