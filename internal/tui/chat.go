// Package tui is an interactive console for asking the resolver questions.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/schoolbot/schoolbot/internal/corpus"
	"github.com/schoolbot/schoolbot/internal/resolver"
	"github.com/schoolbot/schoolbot/internal/textnorm"
)

// Resolver answers one utterance against a snapshot
type Resolver interface {
	Resolve(ctx context.Context, snap *corpus.Snapshot, req resolver.Request) *resolver.Result
}

// Corpus serves and reloads the corpus snapshot
type Corpus interface {
	Current() *corpus.Snapshot
	Refresh(ctx context.Context) (*corpus.Snapshot, error)
}

// Message is one line of the conversation
type Message struct {
	Role    string // "user", "bot" or "system"
	Content string
	Links   []string
	Meta    string
	Err     bool
}

// ChatModel is the bubbletea model for the console
type ChatModel struct {
	ctx      context.Context
	resolver Resolver
	corpus   Corpus
	userID   string

	input    textinput.Model
	viewport viewport.Model
	messages []Message
	loading  bool
	width    int
	height   int
}

// NewChatModel creates the console model
func NewChatModel(ctx context.Context, res Resolver, c Corpus) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "질문을 입력하세요 (/stats, /refresh, /quit)"
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Width = 76
	ti.Focus()

	vp := viewport.New(80, 18)

	m := &ChatModel{
		ctx:      ctx,
		resolver: res,
		corpus:   c,
		userID:   "console",
		input:    ti,
		viewport: vp,
		width:    80,
		height:   24,
	}
	m.render()
	return m
}

// Init starts the cursor blinking
func (m *ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles input and resolver replies
func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = msg.Width - 4
		m.render()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case answeredMsg:
		m.loading = false
		m.replaceLast(describe(msg.result))
		return m, nil

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			m.replaceLast(Message{Role: "system", Content: "새로고침 실패: " + msg.err.Error(), Err: true})
		} else {
			m.replaceLast(Message{Role: "system", Content: formatStats(msg.stats)})
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the conversation above the input line
func (m *ChatModel) View() string {
	header := titleStyle.Render("schoolbot")
	if m.loading {
		header += metaStyle.Render("  답변을 찾는 중...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		borderStyle.Render(m.viewport.View()),
		m.input.View(),
	)
}

// Messages returns the conversation so far
func (m *ChatModel) Messages() []Message {
	return m.messages
}

func (m *ChatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.loading {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/stats":
		m.append(Message{Role: "system", Content: formatStats(m.corpus.Current().Stats())})
		return m, nil
	case "/refresh":
		m.loading = true
		m.append(Message{Role: "system", Content: "말뭉치를 다시 불러오는 중..."})
		return m, m.refresh
	}

	m.loading = true
	m.append(Message{Role: "user", Content: text})
	m.append(Message{Role: "bot", Content: "..."})
	return m, m.ask(text)
}

func (m *ChatModel) ask(text string) tea.Cmd {
	return func() tea.Msg {
		res := m.resolver.Resolve(m.ctx, m.corpus.Current(), resolver.Request{Utterance: text, UserID: m.userID})
		return answeredMsg{result: res}
	}
}

func (m *ChatModel) refresh() tea.Msg {
	snap, err := m.corpus.Refresh(m.ctx)
	if err != nil {
		return refreshedMsg{err: err}
	}
	return refreshedMsg{stats: snap.Stats()}
}

func (m *ChatModel) append(msg Message) {
	m.messages = append(m.messages, msg)
	m.render()
}

func (m *ChatModel) replaceLast(msg Message) {
	if len(m.messages) == 0 {
		m.append(msg)
		return
	}
	m.messages[len(m.messages)-1] = msg
	m.render()
}

func (m *ChatModel) render() {
	var lines []string
	if len(m.messages) == 0 {
		lines = append(lines, metaStyle.Render("무엇을 도와드릴까요? 예) 학사일정, 오늘 급식, 가정통신문"))
	}
	for _, msg := range m.messages {
		switch msg.Role {
		case "user":
			lines = append(lines, userStyle.Render("나: "+msg.Content))
		case "system":
			if msg.Err {
				lines = append(lines, errorStyle.Render(msg.Content))
			} else {
				lines = append(lines, metaStyle.Render(msg.Content))
			}
		default:
			lines = append(lines, botStyle.Render("봇: "+msg.Content))
			for _, l := range msg.Links {
				lines = append(lines, "    "+linkStyle.Render(l))
			}
			if msg.Meta != "" {
				lines = append(lines, metaStyle.Render("    "+msg.Meta))
			}
		}
		lines = append(lines, "")
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// describe turns a result into a console message
func describe(res *resolver.Result) Message {
	msg := Message{
		Role: "bot",
		Meta: fmt.Sprintf("[%s %.2f · %s]", res.Kind, res.Score, res.Elapsed.Round(time.Millisecond)),
	}

	switch {
	case res.IsAnswer():
		body, link := res.Text, res.Link
		if link == "" {
			body, link = textnorm.SplitLink(res.Text)
		}
		msg.Content = body
		if link != "" {
			msg.Links = []string{link}
		}
	case res.Kind == resolver.KindLinkCards:
		var b strings.Builder
		b.WriteString("관련 안내 페이지입니다.")
		for i, c := range res.Cards {
			fmt.Fprintf(&b, "\n  %s %s", cardStyle.Render(fmt.Sprintf("%d.", i+1)), c.Title)
			if c.Snippet != "" {
				fmt.Fprintf(&b, "\n     %s", c.Snippet)
			}
			msg.Links = append(msg.Links, c.URL)
		}
		msg.Content = b.String()
	default:
		msg.Content = res.Text
		if res.Hint != "" {
			msg.Content += "\n" + res.Hint
		}
		if res.Reason != "" {
			msg.Meta = fmt.Sprintf("[%s: %s · %s]", res.Kind, res.Reason, res.Elapsed.Round(time.Millisecond))
		}
	}
	return msg
}

func formatStats(st corpus.Stats) string {
	return fmt.Sprintf("QA %d개 (벡터 %d) · 페이지 %d개 (벡터 %d) · %s 로드",
		st.QAEntries, st.QAVectors, st.Pages, st.PageVectors, st.LoadedAt.Format("15:04:05"))
}

// answeredMsg carries a resolver result back to the model
type answeredMsg struct {
	result *resolver.Result
}

// refreshedMsg signals a corpus refresh finished
type refreshedMsg struct {
	stats corpus.Stats
	err   error
}
