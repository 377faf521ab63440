package history

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"meowpedia/internal/llm"
)

// ErrorText is shown in place of an answer when a turn fails.
const ErrorText = "喵呜！遇到了一点小问题，请稍后再试一次喵~"

var (
	ErrEmptyInput     = errors.New("history: empty input")
	ErrTurnInProgress = errors.New("history: turn already in progress")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

type Message struct {
	ID        string
	Role      Role
	Text      string
	IsError   bool
	Citations []llm.Citation
	CreatedAt time.Time
}

func (m Message) clone() Message {
	if m.Citations != nil {
		m.Citations = append([]llm.Citation(nil), m.Citations...)
	}
	return m
}

type EventKind int

const (
	EventAppended EventKind = iota
	EventReset
)

// Event is delivered to subscribers after every mutation. Message is zero for resets.
type Event struct {
	Kind    EventKind
	Message Message
	State   State
}

type listener struct {
	id int
	fn func(Event)
}

// Conversation is an append-only message log with a two-state turn machine.
// Only one turn may be outstanding: AppendUser is refused until the reply
// (or error) for the previous one has been appended.
type Conversation struct {
	mu         sync.Mutex
	messages   []Message
	state      State
	lastActive time.Time
	listeners  []listener
	nextID     int
	now        func() time.Time
}

func NewConversation() *Conversation {
	return &Conversation{now: time.Now, lastActive: time.Now()}
}

func (c *Conversation) AppendUser(text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyInput
	}
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Message{}, ErrTurnInProgress
	}
	msg := c.appendLocked(Message{Role: RoleUser, Text: text})
	c.state = StateAwaitingResponse
	ev, ls := Event{Kind: EventAppended, Message: msg.clone(), State: c.state}, c.snapshotListeners()
	c.mu.Unlock()

	notify(ls, ev)
	return msg.clone(), nil
}

func (c *Conversation) AppendAssistant(text string, citations []llm.Citation) Message {
	return c.appendReply(Message{Role: RoleAssistant, Text: text, Citations: append([]llm.Citation(nil), citations...)})
}

// AppendError records a failed turn. An empty displayText falls back to ErrorText.
func (c *Conversation) AppendError(displayText string) Message {
	if displayText == "" {
		displayText = ErrorText
	}
	return c.appendReply(Message{Role: RoleAssistant, Text: displayText, IsError: true})
}

func (c *Conversation) appendReply(m Message) Message {
	if len(m.Citations) == 0 {
		m.Citations = nil
	}
	c.mu.Lock()
	msg := c.appendLocked(m)
	c.state = StateIdle
	ev, ls := Event{Kind: EventAppended, Message: msg.clone(), State: c.state}, c.snapshotListeners()
	c.mu.Unlock()

	notify(ls, ev)
	return msg.clone()
}

func (c *Conversation) appendLocked(m Message) Message {
	m.ID = uuid.NewString()
	m.CreatedAt = c.now()
	c.messages = append(c.messages, m)
	c.lastActive = m.CreatedAt
	return m
}

// History projects the log to role and text, the shape sent as model context.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Text})
	}
	return out
}

func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.clone())
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Conversation) touch() {
	c.mu.Lock()
	c.lastActive = c.now()
	c.mu.Unlock()
}

// Reset clears the log. It refuses while a turn is outstanding so the pending
// reply cannot land in a fresh conversation.
func (c *Conversation) Reset() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	c.messages = nil
	c.lastActive = c.now()
	ev, ls := Event{Kind: EventReset, State: c.state}, c.snapshotListeners()
	c.mu.Unlock()

	notify(ls, ev)
	return nil
}

// Subscribe registers fn for every subsequent event. Listeners run on the
// mutating goroutine after the store lock is released, before the mutator returns.
func (c *Conversation) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Conversation) snapshotListeners() []func(Event) {
	if len(c.listeners) == 0 {
		return nil
	}
	out := make([]func(Event), len(c.listeners))
	for i, l := range c.listeners {
		out[i] = l.fn
	}
	return out
}

func notify(ls []func(Event), ev Event) {
	for _, fn := range ls {
		fn(ev)
	}
}
