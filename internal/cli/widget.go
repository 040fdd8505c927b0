package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	"github.com/jansunwai/assistant/internal/service/chat"
)

// Theme holds the widget styles.
type Theme struct {
	Header  lipgloss.Style
	User    lipgloss.Style
	Bot     lipgloss.Style
	Typing  lipgloss.Style
	Status  lipgloss.Style
	Error   lipgloss.Style
	Prompt  lipgloss.Style
	Dimmed  lipgloss.Style
	Bubble  lipgloss.Style
	Divider string
}

// DefaultTheme returns the widget's colors.
func DefaultTheme() Theme {
	return Theme{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#1E5AA8")).Padding(0, 1),
		User:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")).Bold(true),
		Bot:     lipgloss.NewStyle().Foreground(lipgloss.Color("#87D787")).Bold(true),
		Typing:  lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
		Prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")).Bold(true),
		Dimmed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")),
		Bubble:  lipgloss.NewStyle().PaddingLeft(2),
		Divider: "─",
	}
}

type eventMsg struct{ event chatmodel.Event }

type streamClosedMsg struct{}

type resultMsg struct {
	action string
	err    error
}

// session is the part of a chat session the widget drives.
type session interface {
	Send(ctx context.Context, text string) (chatmodel.Message, error)
	Attach(ctx context.Context, name, mimeType string, data []byte) (chatmodel.Message, error)
	Close()
}

var _ session = (*chat.Session)(nil)

type widget struct {
	ctx     context.Context
	session session
	events  <-chan chatmodel.Event
	theme   Theme

	messages []chatmodel.Message
	state    chatmodel.State
	typing   bool
	location *geomodel.Snapshot
	input    []rune
	status   string
	failed   bool
	width    int
	closing  bool
}

func newWidget(ctx context.Context, s session, events <-chan chatmodel.Event, state chatmodel.State, history []chatmodel.Message) *widget {
	return &widget{
		ctx:      ctx,
		session:  s,
		events:   events,
		theme:    DefaultTheme(),
		messages: history,
		state:    state,
		width:    80,
	}
}

func (w *widget) Init() tea.Cmd {
	return waitForEvent(w.events)
}

func waitForEvent(events <-chan chatmodel.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (w *widget) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		return w, nil

	case tea.KeyMsg:
		return w.handleKey(msg)

	case eventMsg:
		w.apply(msg.event)
		return w, waitForEvent(w.events)

	case streamClosedMsg:
		w.state = chatmodel.StateClosed
		return w, tea.Quit

	case resultMsg:
		if msg.err != nil {
			w.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		}
		return w, nil
	}
	return w, nil
}

func (w *widget) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return w, w.close()
	case tea.KeyEnter:
		line := strings.TrimSpace(string(w.input))
		w.input = w.input[:0]
		return w, w.submit(line)
	case tea.KeyBackspace:
		if len(w.input) > 0 {
			w.input = w.input[:len(w.input)-1]
		}
	case tea.KeySpace:
		w.input = append(w.input, ' ')
	case tea.KeyRunes:
		w.input = append(w.input, msg.Runes...)
	}
	return w, nil
}

func (w *widget) apply(ev chatmodel.Event) {
	switch ev.Type {
	case chatmodel.EventMessage:
		if ev.Message != nil {
			w.messages = append(w.messages, *ev.Message)
		}
	case chatmodel.EventTyping:
		if ev.Typing != nil {
			w.typing = *ev.Typing
		}
	case chatmodel.EventLifecycle:
		w.state = ev.State
	case chatmodel.EventLocation:
		w.location = ev.Location
	case chatmodel.EventAuthRequired:
		w.setStatus("sign in required: pass --token or set JANSUNWAI_TOKEN", true)
	}
}

func (w *widget) setStatus(text string, failed bool) {
	w.status = text
	w.failed = failed
}

func (w *widget) close() tea.Cmd {
	if w.closing {
		return tea.Quit
	}
	w.closing = true
	w.setStatus("closing...", false)
	w.session.Close()
	return nil
}

func (w *widget) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	switch {
	case line == "/close" || line == "/quit":
		return w.close()
	case strings.HasPrefix(line, "/attach"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/attach"))
		if path == "" {
			w.setStatus("usage: /attach <image-file>", true)
			return nil
		}
		w.setStatus("", false)
		return w.attach(path)
	}

	w.setStatus("", false)
	s, ctx := w.session, w.ctx
	return func() tea.Msg {
		_, err := s.Send(ctx, line)
		return resultMsg{action: "send", err: err}
	}
}

func (w *widget) attach(path string) tea.Cmd {
	s, ctx := w.session, w.ctx
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return resultMsg{action: "attach", err: err}
		}
		_, err = s.Attach(ctx, filepath.Base(path), mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), data)
		return resultMsg{action: "attach", err: err}
	}
}

func (w *widget) View() string {
	var b strings.Builder

	header := "Jansunwai Assistant"
	if w.state != chatmodel.StateOpen {
		header += " (" + string(w.state) + ")"
	}
	b.WriteString(w.theme.Header.Render(header))
	if w.location != nil {
		b.WriteString(" " + w.theme.Dimmed.Render(fmt.Sprintf("%.4f, %.4f", w.location.Latitude, w.location.Longitude)))
	}
	b.WriteString("\n\n")

	for _, m := range w.messages {
		b.WriteString(w.renderMessage(m))
		b.WriteString("\n")
	}

	if w.typing {
		b.WriteString(w.theme.Typing.Render("Assistant is typing..."))
		b.WriteString("\n")
	}

	width := w.width
	if width <= 0 {
		width = 80
	}
	b.WriteString(w.theme.Dimmed.Render(strings.Repeat(w.theme.Divider, width)))
	b.WriteString("\n")
	b.WriteString(w.theme.Prompt.Render("> "))
	b.WriteString(string(w.input))
	b.WriteString("\n")

	if w.status != "" {
		style := w.theme.Status
		if w.failed {
			style = w.theme.Error
		}
		b.WriteString(style.Render(w.status))
		b.WriteString("\n")
	}
	b.WriteString(w.theme.Dimmed.Render("enter send • /attach <file> • /close • esc quit"))
	return b.String()
}

func (w *widget) renderMessage(m chatmodel.Message) string {
	name := w.theme.Bot.Render("Assistant")
	if m.Sender == chatmodel.SenderUser {
		name = w.theme.User.Render("You")
	}
	text := m.Text
	if m.Image != nil {
		text = fmt.Sprintf("[image %s, %d bytes] %s", m.Image.Name, m.Image.Size, text)
	}
	ts := w.theme.Dimmed.Render(m.Timestamp.Local().Format("15:04"))
	return fmt.Sprintf("%s %s\n%s", name, ts, w.theme.Bubble.Width(max(w.width-2, 20)).Render(strings.TrimSpace(text)))
}
