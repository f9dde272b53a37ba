package web

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
	"github.com/harulua/coreheart/internal/ops"
)

// decodeBody reads a JSON object of at most maxBodyBytes into dst.
// An empty body leaves dst at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewInvalidRequest("request body too large")
		}
		return errors.NewInvalidRequest("invalid json: " + err.Error())
	}
	return nil
}

// queryInt parses an integer query parameter; missing or malformed values yield 0.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return v
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"ts":      time.Now().UnixMilli(),
		"version": h.version,
		"backend": h.cfg.Backend,
	})
}

// Breath

type breathRequest struct {
	ID                   string          `json:"id"`
	MessageID            string          `json:"messageId"`
	Text                 string          `json:"text"`
	RoomID               string          `json:"roomId"`
	UserID               string          `json:"userId"`
	Kind                 string          `json:"kind"`
	InhaleID             string          `json:"inhaleId"`
	Summary              string          `json:"summary"`
	CreatedAt            heart.Timestamp `json:"createdAt"`
	Score                *float64        `json:"score"`
	EmotionKey           string          `json:"emotionKey"`
	EmotionTendency      json.RawMessage `json:"emotionTendency"`
	WillKey              string          `json:"willKey"`
	CentralTopics        []string        `json:"centralTopics"`
	CentralDefinitionIDs []string        `json:"centralDefinitionIds"`
	PersonaHints         []string        `json:"personaHints"`
	SelectedPersonaID    string          `json:"selectedPersonaId"`
	Inhale               json.RawMessage `json:"inhale"`
}

// HandleBreathLog handles GET /api/breath-log.json.
func (h *Handlers) HandleBreathLog(w http.ResponseWriter, r *http.Request) {
	log, err := ops.BreathLog(r.Context(), h.st)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, log)
}

// HandleSubmitBreath handles POST /api/breath and POST /api/breath/log.
func (h *Handlers) HandleSubmitBreath(w http.ResponseWriter, r *http.Request) {
	var req breathRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.SubmitBreath(r.Context(), h.st, h.cfg, ops.SubmitBreathInput{
		ID:                   req.ID,
		MessageID:            req.MessageID,
		Text:                 req.Text,
		RoomID:               req.RoomID,
		UserID:               req.UserID,
		Kind:                 req.Kind,
		InhaleID:             req.InhaleID,
		Summary:              req.Summary,
		CreatedAt:            int64(req.CreatedAt),
		Score:                req.Score,
		EmotionKey:           req.EmotionKey,
		EmotionTendency:      req.EmotionTendency,
		WillKey:              req.WillKey,
		CentralTopics:        req.CentralTopics,
		CentralDefinitionIDs: req.CentralDefinitionIDs,
		PersonaHints:         req.PersonaHints,
		SelectedPersonaID:    req.SelectedPersonaID,
		Inhale:               req.Inhale,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleConsumeBreath handles POST /api/breath/consume.
func (h *Handlers) HandleConsumeBreath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string   `json:"id"`
		To      string   `json:"to"`
		Reason  string   `json:"reason"`
		UserID  string   `json:"userId"`
		Persona string   `json:"persona"`
		Tags    []string `json:"tags"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.ConsumeBreath(r.Context(), h.st, ops.ConsumeBreathInput{
		ID:      req.ID,
		To:      req.To,
		Reason:  req.Reason,
		UserID:  req.UserID,
		Persona: req.Persona,
		Tags:    req.Tags,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleRecentBreaths handles GET /api/breath/recent.
func (h *Handlers) HandleRecentBreaths(w http.ResponseWriter, r *http.Request) {
	h.recent(w, r, ops.DefaultBreathRecentLimit)
}

// HandleRecentInhales handles GET /api/inhale/recent.
func (h *Handlers) HandleRecentInhales(w http.ResponseWriter, r *http.Request) {
	h.recent(w, r, ops.DefaultInhaleRecentLimit)
}

func (h *Handlers) recent(w http.ResponseWriter, r *http.Request, def int) {
	out, err := ops.RecentBreaths(r.Context(), h.st, h.cfg, ops.RecentBreathsInput{
		Limit:        queryInt(r, "limit"),
		DefaultLimit: def,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleGetBreath handles GET /api/inhale/{id}.
func (h *Handlers) HandleGetBreath(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetBreath(r.Context(), h.st, ops.GetBreathInput{ID: chi.URLParam(r, "id")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleDeleteBreath handles DELETE /api/inhale/{id}.
func (h *Handlers) HandleDeleteBreath(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteBreath(r.Context(), h.st, ops.DeleteBreathInput{ID: chi.URLParam(r, "id")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// Purify bin

type purifyIDRequest struct {
	ID string `json:"id"`
}

// HandleListPurify handles GET /api/purify-bin. The bin document is returned as stored.
func (h *Handlers) HandleListPurify(w http.ResponseWriter, r *http.Request) {
	bin, err := ops.ListPurify(r.Context(), h.st)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, bin)
}

// HandleMoveToPurify handles POST /api/purify-bin/move.
func (h *Handlers) HandleMoveToPurify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text       string          `json:"text"`
		Reason     string          `json:"reason"`
		MessageID  string          `json:"messageId"`
		RoomID     string          `json:"roomId"`
		ReceivedAt heart.Timestamp `json:"receivedAt"`
		Tags       []string        `json:"tags"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.MoveToPurify(r.Context(), h.st, ops.MoveToPurifyInput{
		Text:       req.Text,
		Reason:     req.Reason,
		MessageID:  req.MessageID,
		RoomID:     req.RoomID,
		ReceivedAt: int64(req.ReceivedAt),
		Tags:       req.Tags,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleRestoreFromPurify handles POST /api/purify-bin/restore.
func (h *Handlers) HandleRestoreFromPurify(w http.ResponseWriter, r *http.Request) {
	var req purifyIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}
	out, err := ops.RestoreFromPurify(r.Context(), h.st, h.cfg, ops.PurifyIDInput{ID: req.ID})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleSendToMeeting handles POST /api/purify-bin/send-to-meeting.
func (h *Handlers) HandleSendToMeeting(w http.ResponseWriter, r *http.Request) {
	var req purifyIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}
	out, err := ops.SendToMeeting(r.Context(), h.st, ops.PurifyIDInput{ID: req.ID})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleDeletePurified handles POST /api/purify-bin/delete.
func (h *Handlers) HandleDeletePurified(w http.ResponseWriter, r *http.Request) {
	var req purifyIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}
	out, err := ops.DeletePurified(r.Context(), h.st, ops.PurifyIDInput{ID: req.ID})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// Meetings

type meetingSourceRequest struct {
	Text       string          `json:"text"`
	MessageID  string          `json:"messageId"`
	RoomID     string          `json:"roomId"`
	CreatedAt  heart.Timestamp `json:"createdAt"`
	ReceivedAt heart.Timestamp `json:"receivedAt"`
}

// HandleCreateMeeting handles POST /api/meetings. Source fields may be sent flat
// or nested under "source"; nested values win.
func (h *Handlers) HandleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		meetingSourceRequest
		MeetingID string                `json:"meetingId"`
		Source    *meetingSourceRequest `json:"source"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	src := req.meetingSourceRequest
	if req.Source != nil {
		src.Text = firstNonBlank(req.Source.Text, src.Text)
		src.MessageID = firstNonBlank(req.Source.MessageID, src.MessageID)
		src.RoomID = firstNonBlank(req.Source.RoomID, src.RoomID)
		if req.Source.CreatedAt != 0 {
			src.CreatedAt = req.Source.CreatedAt
		}
		if req.Source.ReceivedAt != 0 {
			src.ReceivedAt = req.Source.ReceivedAt
		}
	}

	out, err := ops.CreateMeeting(r.Context(), h.st, ops.CreateMeetingInput{
		SourceText: src.Text,
		MeetingID:  req.MeetingID,
		MessageID:  src.MessageID,
		RoomID:     src.RoomID,
		CreatedAt:  int64(src.CreatedAt),
		ReceivedAt: int64(src.ReceivedAt),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleGetMeeting handles GET /api/meetings/{id}.
func (h *Handlers) HandleGetMeeting(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetMeeting(r.Context(), h.st, ops.GetMeetingInput{MeetingID: chi.URLParam(r, "id")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandleReviseMeeting handles POST /api/meetings/{id}/after-language.
func (h *Handlers) HandleReviseMeeting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lines        []string        `json:"lines"`
		SpecSnapshot json.RawMessage `json:"specSnapshot"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.ReviseMeeting(r.Context(), h.st, ops.ReviseMeetingInput{
		MeetingID:    chi.URLParam(r, "id"),
		Lines:        req.Lines,
		SpecSnapshot: req.SpecSnapshot,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// Central memory

// HandleListDefinitions handles GET /api/central/definitions.
func (h *Handlers) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	mem, err := ops.ListDefinitions(r.Context(), h.st)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, mem)
}

// HandleWriteDefinition handles POST /api/central/definitions.
func (h *Handlers) HandleWriteDefinition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string         `json:"id"`
		Text       string         `json:"text"`
		Body       string         `json:"body"`
		Summary    string         `json:"summary"`
		Title      string         `json:"title"`
		Topic      string         `json:"topic"`
		PromotedAt string         `json:"promotedAt"`
		Meta       map[string]any `json:"meta"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.WriteDefinition(r.Context(), h.st, h.cfg, ops.WriteDefinitionInput{
		ID:         req.ID,
		Text:       req.Text,
		Body:       req.Body,
		Summary:    req.Summary,
		Title:      req.Title,
		Topic:      req.Topic,
		PromotedAt: req.PromotedAt,
		Meta:       req.Meta,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// HandlePromote handles POST /api/central/promote.
func (h *Handlers) HandlePromote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeetingID string `json:"meetingId"`
		Text      string `json:"text"`
		Summary   string `json:"summary"`
		Topic     string `json:"topic"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.Promote(r.Context(), h.st, h.cfg, ops.PromoteInput{
		MeetingID: req.MeetingID,
		Text:      req.Text,
		Summary:   req.Summary,
		Topic:     req.Topic,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// Ha-coin

// HandleLedger handles GET /api/hacoin/ledger. The ledger is returned without the ok envelope.
func (h *Handlers) HandleLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := ops.GetLedger(r.Context(), h.st, h.cfg, ops.GetLedgerInput{Limit: queryInt(r, "limit")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, ledger)
}

// HandlePostEvent handles POST /api/hacoin/event.
func (h *Handlers) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta     float64 `json:"delta"`
		Reason    string  `json:"reason"`
		UserID    string  `json:"userId"`
		MessageID string  `json:"messageId"`
		InhaleID  string  `json:"inhaleId"`
		Summary   string  `json:"summary"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		renderAPIError(w, r, err)
		return
	}

	out, err := ops.PostEvent(r.Context(), h.st, h.cfg, ops.PostEventInput{
		Delta:     req.Delta,
		Reason:    req.Reason,
		UserID:    req.UserID,
		MessageID: req.MessageID,
		InhaleID:  req.InhaleID,
		Summary:   req.Summary,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderOK(w, r, out)
}

// Pages

// HandleCentralPage handles GET /central, rendering every definition as Markdown.
func (h *Handlers) HandleCentralPage(w http.ResponseWriter, r *http.Request) {
	mem, err := ops.ListDefinitions(r.Context(), h.st)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	items := make([]DefinitionView, len(mem.Items))
	for i, def := range mem.Items {
		items[i] = DefinitionView{CentralDefinition: def, RenderedHTML: renderMarkdown(def.Text)}
	}

	h.renderer.renderPage(w, "central", CentralPageData{
		PageData: PageData{
			Title:   "중앙기억",
			Version: h.version,
			Nav:     "central",
		},
		Items: items,
		Count: len(items),
	})
}

// HandleMeetingPage handles GET /meetings/{id}.
func (h *Handlers) HandleMeetingPage(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetMeeting(r.Context(), h.st, ops.GetMeetingInput{MeetingID: chi.URLParam(r, "id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	m := out.Meeting
	h.renderer.renderPage(w, "meeting", MeetingPageData{
		PageData: PageData{
			Title:   "회의 " + m.MeetingID,
			Version: h.version,
			Nav:     "meeting",
		},
		Meeting:    m,
		SourceHTML: renderMarkdown(m.Source.Text),
		Current:    m.AfterLanguage.Current(),
	})
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
