package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
	"github.com/harulua/coreheart/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st  *db.Store
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st *db.Store, cfg *config.Config) *Handlers {
	return &Handlers{st: st, cfg: cfg}
}

// Request types for each tool

// BreathSubmitRequest represents the arguments for breath_submit.
type BreathSubmitRequest struct {
	Text          string          `json:"text"`
	ID            string          `json:"id,omitempty"`
	MessageID     string          `json:"message_id,omitempty"`
	RoomID        string          `json:"room_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	InhaleID      string          `json:"inhale_id,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	CreatedAt     heart.Timestamp `json:"created_at,omitempty"`
	CentralTopics []string        `json:"central_topics,omitempty"`
	PersonaHints  []string        `json:"persona_hints,omitempty"`
}

// BreathRecentRequest represents the arguments for breath_recent.
type BreathRecentRequest struct {
	Limit int `json:"limit,omitempty"`
}

// BreathIDRequest addresses one breath item by id or message id.
type BreathIDRequest struct {
	ID string `json:"id"`
}

// BreathConsumeRequest represents the arguments for breath_consume.
type BreathConsumeRequest struct {
	ID      string   `json:"id"`
	To      string   `json:"to,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	UserID  string   `json:"user_id,omitempty"`
	Persona string   `json:"persona,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// PurifyMoveRequest represents the arguments for purify_move.
type PurifyMoveRequest struct {
	Text       string          `json:"text"`
	Reason     string          `json:"reason,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	ReceivedAt heart.Timestamp `json:"received_at,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
}

// PurifyIDRequest addresses one purify item.
type PurifyIDRequest struct {
	ID string `json:"id"`
}

// MeetingCreateRequest represents the arguments for meeting_create.
type MeetingCreateRequest struct {
	SourceText string          `json:"source_text"`
	MeetingID  string          `json:"meeting_id,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	CreatedAt  heart.Timestamp `json:"created_at,omitempty"`
	ReceivedAt heart.Timestamp `json:"received_at,omitempty"`
}

// MeetingGetRequest represents the arguments for meeting_get.
type MeetingGetRequest struct {
	MeetingID string `json:"meeting_id"`
}

// MeetingReviseRequest represents the arguments for meeting_revise.
type MeetingReviseRequest struct {
	MeetingID    string          `json:"meeting_id"`
	Lines        []string        `json:"lines"`
	SpecSnapshot json.RawMessage `json:"spec_snapshot,omitempty"`
}

// CentralPromoteRequest represents the arguments for central_promote.
type CentralPromoteRequest struct {
	MeetingID string `json:"meeting_id"`
	Text      string `json:"text"`
	Summary   string `json:"summary,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// CentralWriteRequest represents the arguments for central_write.
type CentralWriteRequest struct {
	ID      string         `json:"id,omitempty"`
	Text    string         `json:"text,omitempty"`
	Body    string         `json:"body,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Title   string         `json:"title,omitempty"`
	Topic   string         `json:"topic,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// HacoinPostRequest represents the arguments for hacoin_post.
type HacoinPostRequest struct {
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	InhaleID  string  `json:"inhale_id,omitempty"`
	Summary   string  `json:"summary,omitempty"`
}

// HacoinLedgerRequest represents the arguments for hacoin_ledger.
type HacoinLedgerRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Handler implementations

// HandleBreathSubmit handles the breath_submit tool call.
func (h *Handlers) HandleBreathSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BreathSubmitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SubmitBreath(ctx, h.st, h.cfg, ops.SubmitBreathInput{
		ID:            input.ID,
		MessageID:     input.MessageID,
		Text:          input.Text,
		RoomID:        input.RoomID,
		UserID:        input.UserID,
		Kind:          input.Kind,
		InhaleID:      input.InhaleID,
		Summary:       input.Summary,
		CreatedAt:     int64(input.CreatedAt),
		CentralTopics: input.CentralTopics,
		PersonaHints:  input.PersonaHints,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBreathRecent handles the breath_recent tool call.
func (h *Handlers) HandleBreathRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BreathRecentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RecentBreaths(ctx, h.st, h.cfg, ops.RecentBreathsInput{Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBreathGet handles the breath_get tool call.
func (h *Handlers) HandleBreathGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BreathIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetBreath(ctx, h.st, ops.GetBreathInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBreathDelete handles the breath_delete tool call.
func (h *Handlers) HandleBreathDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BreathIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteBreath(ctx, h.st, ops.DeleteBreathInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBreathConsume handles the breath_consume tool call.
func (h *Handlers) HandleBreathConsume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BreathConsumeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ConsumeBreath(ctx, h.st, ops.ConsumeBreathInput{
		ID:      input.ID,
		To:      input.To,
		Reason:  input.Reason,
		UserID:  input.UserID,
		Persona: input.Persona,
		Tags:    input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurifyMove handles the purify_move tool call.
func (h *Handlers) HandlePurifyMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurifyMoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.MoveToPurify(ctx, h.st, ops.MoveToPurifyInput{
		Text:       input.Text,
		Reason:     input.Reason,
		MessageID:  input.MessageID,
		RoomID:     input.RoomID,
		ReceivedAt: int64(input.ReceivedAt),
		Tags:       input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurifyRestore handles the purify_restore tool call.
func (h *Handlers) HandlePurifyRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurifyIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RestoreFromPurify(ctx, h.st, h.cfg, ops.PurifyIDInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurifySend handles the purify_send tool call.
func (h *Handlers) HandlePurifySend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurifyIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SendToMeeting(ctx, h.st, ops.PurifyIDInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurifyDelete handles the purify_delete tool call.
func (h *Handlers) HandlePurifyDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurifyIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeletePurified(ctx, h.st, ops.PurifyIDInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurifyList handles the purify_list tool call.
func (h *Handlers) HandlePurifyList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListPurify(ctx, h.st)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMeetingCreate handles the meeting_create tool call.
func (h *Handlers) HandleMeetingCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MeetingCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CreateMeeting(ctx, h.st, ops.CreateMeetingInput{
		SourceText: input.SourceText,
		MeetingID:  input.MeetingID,
		MessageID:  input.MessageID,
		RoomID:     input.RoomID,
		CreatedAt:  int64(input.CreatedAt),
		ReceivedAt: int64(input.ReceivedAt),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMeetingGet handles the meeting_get tool call.
func (h *Handlers) HandleMeetingGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MeetingGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetMeeting(ctx, h.st, ops.GetMeetingInput{MeetingID: input.MeetingID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMeetingRevise handles the meeting_revise tool call.
func (h *Handlers) HandleMeetingRevise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MeetingReviseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReviseMeeting(ctx, h.st, ops.ReviseMeetingInput{
		MeetingID:    input.MeetingID,
		Lines:        input.Lines,
		SpecSnapshot: input.SpecSnapshot,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCentralPromote handles the central_promote tool call.
func (h *Handlers) HandleCentralPromote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CentralPromoteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Promote(ctx, h.st, h.cfg, ops.PromoteInput{
		MeetingID: input.MeetingID,
		Text:      input.Text,
		Summary:   input.Summary,
		Topic:     input.Topic,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCentralWrite handles the central_write tool call.
func (h *Handlers) HandleCentralWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CentralWriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.WriteDefinition(ctx, h.st, h.cfg, ops.WriteDefinitionInput{
		ID:      input.ID,
		Text:    input.Text,
		Body:    input.Body,
		Summary: input.Summary,
		Title:   input.Title,
		Topic:   input.Topic,
		Meta:    input.Meta,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCentralList handles the central_list tool call.
func (h *Handlers) HandleCentralList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListDefinitions(ctx, h.st)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHacoinPost handles the hacoin_post tool call.
func (h *Handlers) HandleHacoinPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HacoinPostRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.PostEvent(ctx, h.st, h.cfg, ops.PostEventInput{
		Delta:     input.Delta,
		Reason:    input.Reason,
		UserID:    input.UserID,
		MessageID: input.MessageID,
		InhaleID:  input.InhaleID,
		Summary:   input.Summary,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHacoinLedger handles the hacoin_ledger tool call.
func (h *Handlers) HandleHacoinLedger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HacoinLedgerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetLedger(ctx, h.st, h.cfg, ops.GetLedgerInput{Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Wrapped CoreErrors keep their code; the outer message carries the wrapping context.
// INTERNAL errors never expose details.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if cErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": cErr.Message,
			"status":  cErr.Status,
		}
		if err != error(cErr) {
			errorObj["message"] = err.Error()
		}
		if cErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
