package web

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"meowpedia/internal/catalog"
	"meowpedia/internal/chat"
	"meowpedia/internal/format"
	"meowpedia/internal/history"
	"meowpedia/internal/llm"
)

// Disclaimer is shown under the input box.
const Disclaimer = "喵博士可能偶尔会犯错，请核实重要信息喵。"

type suggestionView struct {
	Index int `json:"index"`
	catalog.Suggestion
}

type messageView struct {
	ID        string
	Role      string
	IsUser    bool
	IsError   bool
	Text      string
	Body      template.HTML
	Citations []llm.Citation
}

type pageData struct {
	Model            string
	Suggestions      []suggestionView
	Messages         []messageView
	Awaiting         bool
	Disclaimer       string
	CitationsHeading string
}

type messageJSON struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	IsError   bool           `json:"is_error"`
	Citations []llm.Citation `json:"citations,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toJSON(m history.Message) messageJSON {
	return messageJSON{
		ID:        m.ID,
		Role:      string(m.Role),
		Text:      m.Text,
		IsError:   m.IsError,
		Citations: m.Citations,
		CreatedAt: m.CreatedAt,
	}
}

func toView(m history.Message) messageView {
	v := messageView{
		ID:        m.ID,
		Role:      string(m.Role),
		IsUser:    m.Role == history.RoleUser,
		IsError:   m.IsError,
		Text:      m.Text,
		Citations: m.Citations,
	}
	if !v.IsUser {
		v.Body = format.RenderHTML(format.Format(m.Text))
	}
	return v
}

func suggestionViews() []suggestionView {
	all := catalog.Suggestions()
	out := make([]suggestionView, len(all))
	for i, sg := range all {
		out[i] = suggestionView{Index: i, Suggestion: sg}
	}
	return out
}

func (s *Server) handleIndex(c *gin.Context) {
	_, conv := s.session(c)

	data := pageData{
		Model:            s.model,
		Awaiting:         conv.State() == history.StateAwaitingResponse,
		Disclaimer:       Disclaimer,
		CitationsHeading: format.CitationsHeading,
	}
	msgs := conv.Messages()
	if len(msgs) == 0 {
		data.Suggestions = suggestionViews()
	}
	for _, m := range msgs {
		data.Messages = append(data.Messages, toView(m))
	}
	c.HTML(http.StatusOK, "index.html", data)
}

// handleSend runs a turn from the page form. Blank input and a busy
// conversation are silently ignored.
func (s *Server) handleSend(c *gin.Context) {
	key, conv := s.session(c)
	if _, err := s.chat.Submit(c.Request.Context(), key, conv, c.PostForm("text")); err != nil {
		log.Debug("turn not started", "session", key, "err", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleSuggest(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid suggestion index")
		return
	}
	key, conv := s.session(c)
	if _, err := s.chat.SubmitSuggestion(c.Request.Context(), key, conv, idx); err != nil {
		if errors.Is(err, chat.ErrUnknownSuggestion) {
			c.String(http.StatusNotFound, "unknown suggestion")
			return
		}
		log.Debug("turn not started", "session", key, "err", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleReset(c *gin.Context) {
	key, _ := s.session(c)
	if err := s.sessions.Reset(key); err != nil {
		log.Debug("reset refused", "session", key, "err", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleListMessages(c *gin.Context) {
	_, conv := s.session(c)
	msgs := conv.Messages()
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"state": conv.State().String(), "messages": out})
}

func (s *Server) handlePostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, conv := s.session(c)
	turn, err := s.chat.Submit(c.Request.Context(), key, conv, req.Text)
	switch {
	case errors.Is(err, history.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	case errors.Is(err, history.ErrTurnInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "still waiting for the previous answer"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_message":      toJSON(turn.User),
		"assistant_message": toJSON(turn.Reply),
	})
}

func (s *Server) handleAPIReset(c *gin.Context) {
	key, _ := s.session(c)
	if err := s.sessions.Reset(key); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "still waiting for the previous answer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, suggestionViews())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"model":    s.model,
		"sessions": s.sessions.Len(),
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
	})
}
