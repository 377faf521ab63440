package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowpedia/internal/chat"
	"meowpedia/internal/gateway"
	"meowpedia/internal/history"
	"meowpedia/internal/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAsker struct {
	mu      sync.Mutex
	ans     gateway.Answer
	err     error
	prompts []string
}

func (f *fakeAsker) Ask(_ context.Context, prompt string, _ []llm.Message) (gateway.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.ans, f.err
}

const markdownReply = "**三花猫**多为母猫\n### 基因\n- X染色体决定毛色"

func newTestServer(asker *fakeAsker) (*Server, *history.Manager) {
	mgr := history.NewManager()
	return NewServer(":0", mgr, chat.NewService(asker, nil, "web"), "gemini-test"), mgr
}

type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (c *client) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) key() string {
	require.NotNil(c.t, c.cookie, "no session cookie issued")
	return keyPrefix + c.cookie.Value
}

func TestIndexShowsIntroAndSuggestions(t *testing.T) {
	s, _ := newTestServer(&fakeAsker{})
	c := &client{t: t, h: s.Handler()}

	rec := c.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "欢迎来到喵喵百科！")
	assert.Contains(t, body, "三花猫的基因秘密")
	assert.Contains(t, body, `action="/suggest/3"`)
	assert.Contains(t, body, Disclaimer)
	assert.Contains(t, body, "gemini-test")
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)
}

func TestSendRunsTurnAndRendersReply(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: markdownReply, Citations: []llm.Citation{{URI: "https://cats.test/calico", Title: "Calico"}}}}
	s, mgr := newTestServer(asker)
	c := &client{t: t, h: s.Handler()}
	c.do(http.MethodGet, "/", "", "")

	rec := c.do(http.MethodPost, "/send", "application/x-www-form-urlencoded", url.Values{"text": {"<b>三花猫</b>?"}}.Encode())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	conv, ok := mgr.Lookup(c.key())
	require.True(t, ok)
	assert.Equal(t, 2, conv.Len())

	body := c.do(http.MethodGet, "/", "", "").Body.String()
	assert.NotContains(t, body, "欢迎来到喵喵百科！")
	assert.Contains(t, body, "&lt;b&gt;三花猫&lt;/b&gt;?")
	assert.Contains(t, body, "<strong>三花猫</strong>")
	assert.Contains(t, body, `<h3 class="heading">基因</h3>`)
	assert.Contains(t, body, `class="line pl-4"`)
	assert.Contains(t, body, `href="https://cats.test/calico"`)
	assert.Contains(t, body, "🔗 Calico")
}

func TestSendBlankIsSilentNoop(t *testing.T) {
	asker := &fakeAsker{}
	s, mgr := newTestServer(asker)
	c := &client{t: t, h: s.Handler()}
	c.do(http.MethodGet, "/", "", "")

	rec := c.do(http.MethodPost, "/send", "application/x-www-form-urlencoded", "text=+++")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	conv, _ := mgr.Lookup(c.key())
	assert.Zero(t, conv.Len())
	assert.Empty(t, asker.prompts)
}

func TestSuggestSubmitsDescription(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "呼噜喵~"}}
	s, _ := newTestServer(asker)
	c := &client{t: t, h: s.Handler()}

	rec := c.do(http.MethodPost, "/suggest/2", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, asker.prompts, 1)
	assert.Equal(t, "猫咪为什么会发出呼噜呼噜的声音？", asker.prompts[0])

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/suggest/9", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/suggest/abc", "", "").Code)
	assert.Len(t, asker.prompts, 1)
}

func TestAPIPostMessage(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "仙女猫喵~"}}
	s, mgr := newTestServer(asker)
	c := &client{t: t, h: s.Handler()}

	rec := c.do(http.MethodPost, "/api/messages", "application/json", `{"text":"布偶猫"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		User      messageJSON `json:"user_message"`
		Assistant messageJSON `json:"assistant_message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "user", got.User.Role)
	assert.Equal(t, "布偶猫", got.User.Text)
	assert.Equal(t, "assistant", got.Assistant.Role)
	assert.Equal(t, "仙女猫喵~", got.Assistant.Text)
	assert.NotEqual(t, got.User.ID, got.Assistant.ID)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/messages", "application/json", `{"text":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/messages", "application/json", `{`).Code)

	conv, _ := mgr.Lookup(c.key())
	_, err := conv.AppendUser("pending")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/messages", "application/json", `{"text":"again"}`).Code)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/reset", "", "").Code)
	assert.Equal(t, 3, conv.Len())
}

func TestAPIGatewayFailureReturnsErrorMessage(t *testing.T) {
	s, _ := newTestServer(&fakeAsker{err: errors.New("quota")})
	c := &client{t: t, h: s.Handler()}

	rec := c.do(http.MethodPost, "/api/messages", "application/json", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Assistant messageJSON `json:"assistant_message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Assistant.IsError)
	assert.Equal(t, history.ErrorText, got.Assistant.Text)

	rec = c.do(http.MethodGet, "/api/messages", "", "")
	var list struct {
		State    string        `json:"state"`
		Messages []messageJSON `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, "idle", list.State)
	assert.Len(t, list.Messages, 2)
}

func TestResetStartsNewConversation(t *testing.T) {
	s, mgr := newTestServer(&fakeAsker{ans: gateway.Answer{Text: "ok"}})
	c := &client{t: t, h: s.Handler()}
	c.do(http.MethodPost, "/api/messages", "application/json", `{"text":"hi"}`)

	rec := c.do(http.MethodPost, "/reset", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	conv, _ := mgr.Lookup(c.key())
	assert.Zero(t, conv.Len())
	assert.Contains(t, c.do(http.MethodGet, "/", "", "").Body.String(), "欢迎来到喵喵百科！")
}

func TestInvalidCookieIsReplaced(t *testing.T) {
	s, _ := newTestServer(&fakeAsker{})
	c := &client{t: t, h: s.Handler(), cookie: &http.Cookie{Name: cookieName, Value: "not-a-uuid"}}
	c.do(http.MethodGet, "/", "", "")
	assert.NotEqual(t, "not-a-uuid", c.cookie.Value)
}

func TestSuggestionsAndStatus(t *testing.T) {
	s, _ := newTestServer(&fakeAsker{})
	c := &client{t: t, h: s.Handler()}

	var sugg []map[string]any
	require.NoError(t, json.Unmarshal(c.do(http.MethodGet, "/api/suggestions", "", "").Body.Bytes(), &sugg))
	require.Len(t, sugg, 4)
	assert.Equal(t, float64(1), sugg[1]["index"])
	assert.Equal(t, "曼赤肯猫的外形", sugg[1]["title"])

	var status map[string]any
	require.NoError(t, json.Unmarshal(c.do(http.MethodGet, "/api/status", "", "").Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "gemini-test", status["model"])
}

func TestWebsocketPushesConversationEvents(t *testing.T) {
	s, _ := newTestServer(&fakeAsker{ans: gateway.Answer{Text: "喵~"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	var sid *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == cookieName {
			sid = ck
		}
	}
	require.NotNil(t, sid)

	hdr := http.Header{}
	hdr.Set("Cookie", sid.Name+"="+sid.Value)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", hdr)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "state", ev.Type)
	assert.Equal(t, "idle", ev.State)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sid)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "message", ev.Type)
	assert.Equal(t, "awaiting_response", ev.State)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hi", ev.Message.Text)

	ev = wsEvent{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "message", ev.Type)
	assert.Equal(t, "idle", ev.State)
	assert.Equal(t, "喵~", ev.Message.Text)

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/reset", nil)
	req.AddCookie(sid)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	ev = wsEvent{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "reset", ev.Type)
	assert.Nil(t, ev.Message)
}

func TestStartStop(t *testing.T) {
	mgr := history.NewManager()
	s := NewServer("127.0.0.1:0", mgr, chat.NewService(&fakeAsker{}, nil, "web"), "m")
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
