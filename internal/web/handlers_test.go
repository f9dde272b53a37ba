package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
)

func setupTest(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	st, err := db.Open(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRouter(st, cfg, "test")
}

// do sends a request with an optional JSON body and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// decode unmarshals the recorder body as a JSON object.
func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodGet, "/api/health", nil)
	expectStatus(t, w, http.StatusOK)

	out := decode(t, w)
	if out["ok"] != true {
		t.Errorf("ok = %v", out["ok"])
	}
	if out["backend"] != config.BackendFile {
		t.Errorf("backend = %v", out["backend"])
	}
	if _, ok := out["ts"].(float64); !ok {
		t.Errorf("ts missing: %v", out)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodGet, "/api/health", nil)

	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", "client-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") != "client-123" {
		t.Errorf("client request id not echoed: %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestPreflight(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodOptions, "/api/breath", nil)
	expectStatus(t, w, http.StatusNoContent)
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Errorf("allow methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestSubmitBreath(t *testing.T) {
	h := setupTest(t)

	for _, path := range []string{"/api/breath", "/api/breath/log"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, h, http.MethodPost, path, map[string]any{
				"text":      " 오늘 하루도 고마웠다 ",
				"messageId": "m" + strings.ReplaceAll(path, "/", "-"),
				"roomId":    "room-a",
			})
			expectStatus(t, w, http.StatusOK)
			out := decode(t, w)
			if out["ok"] != true || out["id"] == nil {
				t.Errorf("response = %v", out)
			}
			item := out["item"].(map[string]any)
			if item["text"] != "오늘 하루도 고마웠다" {
				t.Errorf("text should be trimmed, got %q", item["text"])
			}
		})
	}

	w := do(t, h, http.MethodGet, "/api/breath-log.json", nil)
	expectStatus(t, w, http.StatusOK)
	out := decode(t, w)
	if items := out["items"].([]any); len(items) != 2 {
		t.Errorf("breath log items = %d, want 2", len(items))
	}
}

func TestSubmitBreath_LooseTimestampAndAnnotations(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodPost, "/api/breath", map[string]any{
		"text":            "시계가 조금 어긋난 숨",
		"createdAt":       1700000000000.5,
		"emotionTendency": 0.7,
	})
	expectStatus(t, w, http.StatusOK)

	item := decode(t, w)["item"].(map[string]any)
	if item["createdAt"] != float64(1700000000000) {
		t.Errorf("createdAt = %v, want truncated millis", item["createdAt"])
	}
	if item["emotionTendency"] != 0.7 {
		t.Errorf("emotionTendency = %v, want 0.7", item["emotionTendency"])
	}

	w = do(t, h, http.MethodPost, "/api/breath", map[string]any{
		"text":      "ISO 시계",
		"createdAt": "2024-01-01T00:00:00Z",
	})
	expectStatus(t, w, http.StatusOK)
	item = decode(t, w)["item"].(map[string]any)
	if item["createdAt"] != float64(1704067200000) {
		t.Errorf("createdAt = %v, want ISO converted to millis", item["createdAt"])
	}

	w = do(t, h, http.MethodPost, "/api/breath", map[string]any{"text": "x", "createdAt": "whenever"})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestSubmitBreath_Dropped(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodPost, "/api/breath/log", map[string]any{"text": "ㅋㅋㅋㅋㅋㅋㅋㅋㅋㅋ"})
	expectStatus(t, w, http.StatusOK)

	out := decode(t, w)
	if out["ok"] != true || out["dropped"] != true {
		t.Errorf("response = %v, want ok+dropped", out)
	}

	w = do(t, h, http.MethodGet, "/api/breath/recent", nil)
	if items := decode(t, w)["items"].([]any); len(items) != 0 {
		t.Errorf("dropped breath was stored: %v", items)
	}
}

func TestSubmitBreath_Errors(t *testing.T) {
	h := setupTest(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty text", map[string]any{"text": "   "}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no body", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed json", `{"text":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"too large", `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/breath", tt.body)
			expectStatus(t, w, tt.status)
			out := decode(t, w)
			if out["ok"] != false || out["error"] != tt.code {
				t.Errorf("response = %v", out)
			}
			if msg, _ := out["message"].(string); msg == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestRecentAndInhale(t *testing.T) {
	h := setupTest(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		expectStatus(t, do(t, h, http.MethodPost, "/api/breath", map[string]any{"text": "숨 " + id, "messageId": id}), http.StatusOK)
	}

	w := do(t, h, http.MethodGet, "/api/breath/recent?limit=2", nil)
	items := decode(t, w)["items"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["id"] != "a3" {
		t.Errorf("recent = %v", items)
	}

	w = do(t, h, http.MethodGet, "/api/inhale/recent?limit=abc", nil)
	if items := decode(t, w)["items"].([]any); len(items) != 3 {
		t.Errorf("malformed limit should fall back to the default, got %d items", len(items))
	}

	w = do(t, h, http.MethodGet, "/api/inhale/a2", nil)
	expectStatus(t, w, http.StatusOK)
	if decode(t, w)["item"].(map[string]any)["text"] != "숨 a2" {
		t.Error("wrong item returned")
	}

	w = do(t, h, http.MethodDelete, "/api/inhale/a2", nil)
	expectStatus(t, w, http.StatusOK)
	if decode(t, w)["removed"] != float64(1) {
		t.Error("expected one removal")
	}

	w = do(t, h, http.MethodGet, "/api/inhale/a2", nil)
	expectStatus(t, w, http.StatusNotFound)
	if decode(t, w)["error"] != "NOT_FOUND" {
		t.Error("expected NOT_FOUND")
	}
}

func TestConsume(t *testing.T) {
	h := setupTest(t)
	expectStatus(t, do(t, h, http.MethodPost, "/api/breath", map[string]any{"text": "소비", "messageId": "c1"}), http.StatusOK)

	w := do(t, h, http.MethodPost, "/api/breath/consume", map[string]any{"id": "c1"})
	expectStatus(t, w, http.StatusOK)
	out := decode(t, w)
	events := out["events"].([]any)
	reward := events[1].(map[string]any)
	if reward["reason"] != "BREATH_CONSUME_TO_CROSS" || reward["persona"] != "haru" {
		t.Errorf("reward event = %v", reward)
	}

	w = do(t, h, http.MethodPost, "/api/breath/consume", map[string]any{"id": "nobody"})
	expectStatus(t, w, http.StatusOK)
	if decode(t, w)["warning"] != "not found" {
		t.Error("unknown id should warn, not fail")
	}

	w = do(t, h, http.MethodPost, "/api/breath/consume", map[string]any{})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestPurifyRoutes(t *testing.T) {
	h := setupTest(t)
	expectStatus(t, do(t, h, http.MethodPost, "/api/breath", map[string]any{"text": "격리", "messageId": "p1", "roomId": "r1"}), http.StatusOK)

	w := do(t, h, http.MethodPost, "/api/purify-bin/move", map[string]any{"text": "격리", "messageId": "p1", "roomId": "r1"})
	expectStatus(t, w, http.StatusOK)
	out := decode(t, w)
	if out["removedFromBreath"] != true {
		t.Errorf("move = %v", out)
	}
	first := out["id"].(string)

	w = do(t, h, http.MethodGet, "/api/purify-bin", nil)
	expectStatus(t, w, http.StatusOK)
	bin := decode(t, w)
	if bin["version"] != float64(1) {
		t.Errorf("bin version = %v", bin["version"])
	}
	if _, ok := bin["ok"]; ok {
		t.Error("purify bin is returned as stored, without an envelope")
	}

	w = do(t, h, http.MethodPost, "/api/purify-bin/restore", map[string]any{"id": first})
	expectStatus(t, w, http.StatusOK)
	breathID := decode(t, w)["breathId"].(string)

	w = do(t, h, http.MethodGet, "/api/inhale/"+breathID, nil)
	expectStatus(t, w, http.StatusOK)
	item := decode(t, w)["item"].(map[string]any)
	if item["messageId"] != "p1" || item["roomId"] != "r1" {
		t.Errorf("restored item lost its source: %v", item)
	}

	w = do(t, h, http.MethodPost, "/api/purify-bin/move", map[string]any{"text": "회의로"})
	second := decode(t, w)["id"].(string)
	w = do(t, h, http.MethodPost, "/api/purify-bin/send-to-meeting", map[string]any{"id": second})
	expectStatus(t, w, http.StatusOK)
	meetingID := decode(t, w)["meetingId"].(string)

	w = do(t, h, http.MethodGet, "/api/meetings/"+meetingID, nil)
	expectStatus(t, w, http.StatusOK)
	source := decode(t, w)["meeting"].(map[string]any)["source"].(map[string]any)
	if source["from"] != "purify-bin" || source["text"] != "회의로" {
		t.Errorf("meeting source = %v", source)
	}

	w = do(t, h, http.MethodPost, "/api/purify-bin/move", map[string]any{"text": "버림"})
	third := decode(t, w)["id"].(string)
	expectStatus(t, do(t, h, http.MethodPost, "/api/purify-bin/delete", map[string]any{"id": third}), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/api/purify-bin/delete", map[string]any{"id": third}), http.StatusNotFound)
	expectStatus(t, do(t, h, http.MethodPost, "/api/purify-bin/restore", map[string]any{}), http.StatusBadRequest)
}

func TestMeetingRoutes(t *testing.T) {
	h := setupTest(t)

	// nested source fields win over flat ones
	w := do(t, h, http.MethodPost, "/api/meetings", map[string]any{
		"meetingId": "meet-test",
		"text":      "flat",
		"roomId":    "flat-room",
		"source":    map[string]any{"text": "불안해서 잠이 안 온다", "messageId": "src-1"},
	})
	expectStatus(t, w, http.StatusOK)
	out := decode(t, w)
	if out["meetingId"] != "meet-test" || out["meetingPath"] != "meetings/meet-test.json" {
		t.Errorf("create = %v", out)
	}
	meeting := out["meeting"].(map[string]any)
	source := meeting["source"].(map[string]any)
	if source["text"] != "불안해서 잠이 안 온다" || source["messageId"] != "src-1" || source["roomId"] != "flat-room" {
		t.Errorf("source = %v", source)
	}
	if emotions := meeting["emotions"].([]any); len(emotions) == 0 || emotions[0] != "두려움" {
		t.Errorf("emotions = %v, want 두려움", meeting["emotions"])
	}

	w = do(t, h, http.MethodPost, "/api/meetings/meet-test/after-language", map[string]any{
		"lines":        []string{"불안은 지나간다"},
		"specSnapshot": map[string]any{"rev": 1},
	})
	expectStatus(t, w, http.StatusOK)
	if decode(t, w)["version"] != float64(1) {
		t.Error("expected version 1")
	}

	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings/meet-test/after-language", map[string]any{"lines": []string{}}), http.StatusBadRequest)
	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings/absent/after-language", map[string]any{"lines": []string{"x"}}), http.StatusNotFound)
	expectStatus(t, do(t, h, http.MethodGet, "/api/meetings/absent", nil), http.StatusNotFound)
	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings", map[string]any{}), http.StatusBadRequest)
}

func TestCentralRoutes(t *testing.T) {
	h := setupTest(t)
	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings", map[string]any{"meetingId": "m1", "text": "약속"}), http.StatusOK)

	w := do(t, h, http.MethodPost, "/api/central/promote", map[string]any{"meetingId": "m1", "text": "약속은 **무게**다"})
	expectStatus(t, w, http.StatusOK)
	def := decode(t, w)["definition"].(map[string]any)
	if def["meta"].(map[string]any)["meetingId"] != "m1" {
		t.Errorf("definition meta = %v", def["meta"])
	}

	w = do(t, h, http.MethodPost, "/api/central/definitions", map[string]any{"text": "직접"})
	expectStatus(t, w, http.StatusOK)
	direct := decode(t, w)["definition"].(map[string]any)
	if direct["meta"].(map[string]any)["from"] != "app-direct" {
		t.Errorf("direct meta = %v", direct["meta"])
	}

	w = do(t, h, http.MethodGet, "/api/central/definitions", nil)
	expectStatus(t, w, http.StatusOK)
	mem := decode(t, w)
	if items := mem["items"].([]any); len(items) != 2 {
		t.Errorf("central items = %d, want 2", len(items))
	}

	expectStatus(t, do(t, h, http.MethodPost, "/api/central/promote", map[string]any{"meetingId": "m1"}), http.StatusBadRequest)
	expectStatus(t, do(t, h, http.MethodPost, "/api/central/definitions", map[string]any{"title": "no body"}), http.StatusBadRequest)
}

func TestHacoinRoutes(t *testing.T) {
	h := setupTest(t)

	w := do(t, h, http.MethodPost, "/api/hacoin/event", map[string]any{"delta": 0})
	expectStatus(t, w, http.StatusBadRequest)
	if decode(t, w)["error"] != "INVALID_REQUEST" {
		t.Error("delta 0 should be INVALID_REQUEST")
	}

	w = do(t, h, http.MethodPost, "/api/hacoin/event", map[string]any{"delta": 5, "reason": "good"})
	expectStatus(t, w, http.StatusOK)
	ev := decode(t, w)["event"].(map[string]any)
	if ev["type"] != "promote" || ev["delta"] != float64(5) {
		t.Errorf("event = %v", ev)
	}

	w = do(t, h, http.MethodGet, "/api/hacoin/ledger?limit=5000", nil)
	expectStatus(t, w, http.StatusOK)
	ledger := decode(t, w)
	if ledger["version"] != "hacoin-ledger-v1" {
		t.Errorf("ledger version = %v", ledger["version"])
	}
	if events := ledger["events"].([]any); len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
}

func TestCentralPage(t *testing.T) {
	h := setupTest(t)
	expectStatus(t, do(t, h, http.MethodPost, "/api/central/definitions", map[string]any{
		"text":  "마음은 **천천히** 움직인다<script>alert(1)</script>",
		"title": "마음",
	}), http.StatusOK)

	w := do(t, h, http.MethodGet, "/central", nil)
	expectStatus(t, w, http.StatusOK)
	body := w.Body.String()
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "<strong>천천히</strong>") {
		t.Error("definition text should be rendered as markdown")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML must not be rendered")
	}
}

func TestMeetingPage(t *testing.T) {
	h := setupTest(t)
	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings", map[string]any{"meetingId": "page1", "text": "고마운 하루"}), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/api/meetings/page1/after-language", map[string]any{"lines": []string{"감사는 *쌓인다*"}}), http.StatusOK)

	w := do(t, h, http.MethodGet, "/meetings/page1", nil)
	expectStatus(t, w, http.StatusOK)
	body := w.Body.String()
	if !strings.Contains(body, "page1") || !strings.Contains(body, "<em>쌓인다</em>") {
		t.Errorf("meeting page missing content: %s", body)
	}

	w = do(t, h, http.MethodGet, "/meetings/absent", nil)
	expectStatus(t, w, http.StatusNotFound)
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Error("missing meeting page should render the HTML error page")
	}
}

func TestRootRedirects(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodGet, "/", nil)
	expectStatus(t, w, http.StatusFound)
	if w.Header().Get("Location") != "/central" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
}

func TestStaticAssets(t *testing.T) {
	h := setupTest(t)
	w := do(t, h, http.MethodGet, "/static/style.css", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestDescribeError_HidesInternal(t *testing.T) {
	code, status, msg := describeError(errPlain("open /secret/path: denied"))
	if code != "INTERNAL" || status != http.StatusInternalServerError {
		t.Errorf("code/status = %s/%d", code, status)
	}
	if strings.Contains(msg, "secret") {
		t.Errorf("message leaked: %q", msg)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
