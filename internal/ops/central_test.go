package ops

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

func TestPromote_Validation(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input PromoteInput
	}{
		{"missing meeting", PromoteInput{Text: "문장"}},
		{"meeting sanitizes empty", PromoteInput{MeetingID: "///", Text: "문장"}},
		{"missing text", PromoteInput{MeetingID: "meet-1", Text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Promote(ctx, st, cfg, tt.input)
			assertCode(t, err, errors.ErrInvalidRequest)
		})
	}

	mem, _ := ListDefinitions(ctx, st)
	if len(mem.Items) != 0 {
		t.Errorf("failed promotes must not write, got %d items", len(mem.Items))
	}
}

func TestPromote_StoresOneDefinition(t *testing.T) {
	st, cfg := testStore(t)
	fixClock(t, 1700000000000)
	ctx := context.Background()

	out, err := Promote(ctx, st, cfg, PromoteInput{MeetingID: "meet-1", Text: " 나는 나를 지킨다 ", Topic: "약속"})
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	def := out.Definition
	if !strings.HasPrefix(def.ID, "def-") {
		t.Errorf("ID = %q", def.ID)
	}
	if def.Text != "나는 나를 지킨다" || def.Summary != def.Text {
		t.Errorf("text/summary = %q/%q", def.Text, def.Summary)
	}
	if def.Route != heart.RouteCentral || def.Source != heart.SourceMeeting {
		t.Errorf("route/source = %q/%q", def.Route, def.Source)
	}
	if def.PromotedAt != "2023-11-14T22:13:20.000Z" {
		t.Errorf("PromotedAt = %q", def.PromotedAt)
	}
	if def.Meta["meetingId"] != "meet-1" {
		t.Errorf("Meta = %v", def.Meta)
	}
	if out.MeetingUpdated {
		t.Error("no meeting exists, MeetingUpdated should be false")
	}

	mem, _ := ListDefinitions(ctx, st)
	if len(mem.Items) != 1 {
		t.Errorf("len(items) = %d, want exactly 1", len(mem.Items))
	}
}

func TestPromote_MarksMeeting(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "말", MeetingID: "meet-1"})
	ReviseMeeting(ctx, st, ReviseMeetingInput{MeetingID: "meet-1", Lines: []string{"최종 문장"}})

	out, err := Promote(ctx, st, cfg, PromoteInput{MeetingID: "meet-1", Text: "최종 문장"})
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if !out.MeetingUpdated {
		t.Error("MeetingUpdated = false")
	}

	got, _ := GetMeeting(ctx, st, GetMeetingInput{MeetingID: "meet-1"})
	if got.Meeting.Status != heart.StatusDone {
		t.Errorf("Status = %q, want done", got.Meeting.Status)
	}
	cur := got.Meeting.AfterLanguage.Current()
	if cur == nil || cur.Promotion == nil || !cur.Promotion.Promoted {
		t.Fatalf("current version not promoted: %+v", cur)
	}
	if cur.Promotion.CentralDefinitionID == nil || *cur.Promotion.CentralDefinitionID != out.Definition.ID {
		t.Errorf("CentralDefinitionID = %v, want %s", cur.Promotion.CentralDefinitionID, out.Definition.ID)
	}
}

func TestPromote_CapAndNoDedup(t *testing.T) {
	st, cfg := testStore(t)
	cfg.CentralCap = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := Promote(ctx, st, cfg, PromoteInput{MeetingID: "meet-1", Text: fmt.Sprintf("문장 %d", i)}); err != nil {
			t.Fatalf("Promote %d failed: %v", i, err)
		}
	}
	Promote(ctx, st, cfg, PromoteInput{MeetingID: "meet-1", Text: "문장 4"})

	mem, _ := ListDefinitions(ctx, st)
	if len(mem.Items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(mem.Items))
	}
	if mem.Items[0].Text != "문장 4" || mem.Items[1].Text != "문장 4" || mem.Items[2].Text != "문장 3" {
		t.Errorf("items = %q %q %q", mem.Items[0].Text, mem.Items[1].Text, mem.Items[2].Text)
	}
}

func TestPromote_MigratesLegacyCentral(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	legacy := `{"central":[{"id":"def-old","text":"예전","summary":"예전","route":"central","source":"meeting","promotedAt":"2020-01-01T00:00:00.000Z"}]}`
	if err := st.Backend().Write(ctx, db.KeyCentral, []byte(legacy)); err != nil {
		t.Fatal(err)
	}

	if _, err := Promote(ctx, st, cfg, PromoteInput{MeetingID: "meet-1", Text: "새로"}); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	mem, _ := ListDefinitions(ctx, st)
	if len(mem.Items) != 2 || mem.Items[1].ID != "def-old" {
		t.Errorf("items = %+v", mem.Items)
	}
}

func TestWriteDefinition(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	out, err := WriteDefinition(ctx, st, cfg, WriteDefinitionInput{Body: "본문", Text: "무시", Title: "제목", Summary: "무시"})
	if err != nil {
		t.Fatalf("WriteDefinition failed: %v", err)
	}
	def := out.Definition
	if def.Text != "본문" || def.Summary != "제목" {
		t.Errorf("text/summary = %q/%q", def.Text, def.Summary)
	}
	if def.Meta["from"] != heart.FromAppDirect {
		t.Errorf("Meta = %v", def.Meta)
	}

	out, err = WriteDefinition(ctx, st, cfg, WriteDefinitionInput{
		ID: "def-fixed", Text: "글", PromotedAt: "2024-01-01T00:00:00Z", Meta: map[string]any{"from": "ios"},
	})
	if err != nil {
		t.Fatalf("WriteDefinition failed: %v", err)
	}
	if out.Definition.ID != "def-fixed" || out.Definition.Summary != "글" || out.Definition.PromotedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("definition = %+v", out.Definition)
	}
	if out.Definition.Meta["from"] != "ios" {
		t.Errorf("Meta = %v", out.Definition.Meta)
	}

	_, err = WriteDefinition(ctx, st, cfg, WriteDefinitionInput{})
	assertCode(t, err, errors.ErrInvalidRequest)

	mem, _ := ListDefinitions(ctx, st)
	if len(mem.Items) != 2 || mem.Items[0].ID != "def-fixed" {
		t.Errorf("items = %+v", mem.Items)
	}
}
