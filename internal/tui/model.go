package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpdf/internal/conversation"
	"ragpdf/internal/domain"
)

// ChatPort is the TUI-facing subset of the conversation loop.
type ChatPort interface {
	Start() error
	Stop()
	Step(ctx context.Context, input string) (conversation.Reply, error)
	State() conversation.State
	ExitToken() string
}

// Info describes the loaded document in the header.
type Info struct {
	Title   string
	Summary string
	Chunks  int
	Model   string
}

type replyMsg struct {
	input string
	reply conversation.Reply
	err   error
}

type entry struct {
	role domain.Role
	text string
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	chat     ChatPort
	info     Info
	input    textinput.Model
	viewport viewport.Model
	entries  []entry
	sources  []domain.SearchResult
	cursor   int
	status   string
	busy     bool
	ready    bool
	lastQ    string
}

// New creates a chat model. The conversation is started if it is still idle.
func New(ctx context.Context, chat ChatPort, info Info) Model {
	ctx, cancel := context.WithCancel(ctx)
	if chat.State() == conversation.Idle {
		_ = chat.Start()
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	status := fmt.Sprintf("Loaded %d chunks. Type %q or press Ctrl+C to quit.", info.Chunks, chat.ExitToken())
	return Model{ctx: ctx, cancel: cancel, chat: chat, info: info, input: ti, viewport: vp, status: status}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 2 + 1 + ih // header + summary, sources, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case replyMsg:
		return m.handleReply(msg)
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.cancel()
			// an in-flight turn terminates the loop itself once it sees the cancellation
			if !m.busy {
				m.chat.Stop()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.Blur()
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.step(q)
		case "up":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				return m, nil
			}
		case "down":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// step runs one conversation turn off the UI goroutine. Only one turn is in flight at a time.
func (m Model) step(input string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		reply, err := chat.Step(ctx, input)
		return replyMsg{input: input, reply: reply, err: err}
	}
}

func (m Model) handleReply(msg replyMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.input.Focus()
	if m.chat.State() == conversation.Terminated {
		m.cancel()
		return m, tea.Quit
	}
	switch {
	case errors.Is(msg.err, conversation.ErrEmptyInput):
		m.status = "Nothing to send."
	case msg.err != nil:
		m.status = "Error: " + strings.Join(strings.Fields(msg.err.Error()), " ")
	default:
		m.entries = append(m.entries,
			entry{role: domain.RoleUser, text: msg.input},
			entry{role: domain.RoleAssistant, text: msg.reply.Text},
		)
		m.sources = msg.reply.Sources
		m.cursor = 0
		m.lastQ = msg.input
		m.status = fmt.Sprintf("Answered from %d source chunks.", len(m.sources))
	}
	m.refresh()
	return m, textinput.Blink
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the header, transcript, sources, input and status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("RAG PDF Chatbot") + "  " + dimStyle.Render(fmt.Sprintf("%s | %d chunks | %s", m.info.Title, m.info.Chunks, m.info.Model))
	summary := dimStyle.Width(m.viewport.Width).Render(m.info.Summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + m.renderSource() + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return dimStyle.Render("Ask me anything about the document.")
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if e.role == domain.RoleUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(assistantStyle.Render("Bot: "))
		}
		b.WriteString(lipgloss.NewStyle().Width(width).Render(e.text))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderSource() string {
	if len(m.sources) == 0 {
		return dimStyle.Render("No sources.")
	}
	r := m.sources[m.cursor]
	title := dimStyle.Render(fmt.Sprintf("Source %d/%d  chunk #%d  score=%.3f  (up/down)", m.cursor+1, len(m.sources), r.Chunk.Index, r.Score))
	body := highlightBestSentence(excerpt(r.Chunk.Text, 60), m.lastQ)
	return title + "\n" + body
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// excerpt keeps the first n words of text.
func excerpt(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " ..."
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
