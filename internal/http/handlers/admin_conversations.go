package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	httpmiddleware "github.com/wolfman30/frontdesk-dispatch/internal/http/middleware"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// ConversationAdmin is the operator-facing conversation API.
type ConversationAdmin interface {
	List(ctx context.Context, filter conversation.ListFilter) ([]conversation.Conversation, error)
	GetWithMessages(ctx context.Context, conversationID string) (conversation.Conversation, error)
	SendOperatorReply(ctx context.Context, conversationID, text, operator string) (conversation.Message, error)
	SetStatus(ctx context.Context, conversationID string, status conversation.Status) (conversation.Conversation, error)
}

type AdminConversationsHandler struct {
	service    ConversationAdmin
	deliveries deliverylog.Reader
	logger     *logging.Logger
}

func NewAdminConversationsHandler(service ConversationAdmin, deliveries deliverylog.Reader, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{service: service, deliveries: deliveries, logger: logger}
}

type conversationListResponse struct {
	Conversations []conversation.Conversation `json:"conversations"`
	Page          int                         `json:"page"`
	PageSize      int                         `json:"page_size"`
}

// List handles GET /admin/conversations?status=&phone=&page=&page_size=.
func (h *AdminConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, ok := parsePaging(q.Get("page"), q.Get("page_size"))
	if !ok {
		jsonError(w, "page and page_size must be positive integers", http.StatusBadRequest)
		return
	}
	filter := conversation.ListFilter{
		Phone:  strings.TrimSpace(q.Get("phone")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if raw := q.Get("status"); raw != "" {
		status, err := conversation.ParseStatus(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = status
	}

	convs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversationListResponse{Conversations: convs, Page: page, PageSize: pageSize})
}

// Get handles GET /admin/conversations/{id}.
func (h *AdminConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.GetWithMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type replyRequest struct {
	Body string `json:"body"`
}

// Reply handles POST /admin/conversations/{id}/reply.
func (h *AdminConversationsHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	operator, _ := httpmiddleware.OperatorFromContext(r.Context())
	msg, err := h.service.SendOperatorReply(r.Context(), chi.URLParam(r, "id"), req.Body, operator)
	if err != nil {
		h.fail(w, "operator reply", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PUT /admin/conversations/{id}/status.
func (h *AdminConversationsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	conv, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), conversation.Status(req.Status))
	if err != nil {
		h.fail(w, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Deliveries handles GET /admin/deliveries?conversation_id=&call_sid=&recipient=&type=&limit=.
func (h *AdminConversationsHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		jsonError(w, "delivery log unavailable", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	filter := deliverylog.Filter{
		Recipient:      strings.TrimSpace(q.Get("recipient")),
		ConversationID: q.Get("conversation_id"),
		CallSid:        q.Get("call_sid"),
		Type:           deliverylog.Type(q.Get("type")),
		Limit:          defaultPageSize,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxPageSize)
	}
	entries, err := h.deliveries.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list deliveries", err)
		return
	}
	if entries == nil {
		entries = []deliverylog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminConversationsHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		jsonError(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, conversation.ErrInvalidStatus), errors.Is(err, conversation.ErrInvalidMessage):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, conversation.ErrActiveConflict):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("admin request failed", "op", op, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func parsePaging(rawPage, rawSize string) (page, size int, ok bool) {
	page, size = 1, defaultPageSize
	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}
	if rawSize != "" {
		n, err := strconv.Atoi(rawSize)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		size = min(n, maxPageSize)
	}
	return page, size, true
}
