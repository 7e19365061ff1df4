package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mammo-rag/internal/apiclient"
)

// Backend is the subset of the API the chat needs.
type Backend interface {
	Ask(ctx context.Context, question string) (string, error)
	PredictFile(ctx context.Context, path string) (*apiclient.PredictResponse, error)
}

type answerMsg struct {
	content string
	err     error
}

type predictionMsg struct {
	resp *apiclient.PredictResponse
	err  error
}

// Model is the Bubble Tea model of the chat front-end.
type Model struct {
	backend  Backend
	conv     *Conversation
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	waiting  bool
	ready    bool
	width    int
}

func New(backend Backend, conv *Conversation) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /image <path>, /theme, /clear"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{backend: backend, conv: conv, input: ti, viewport: viewport.New(0, 0), spinner: sp}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, ih := inputBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-ih-3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			if m.waiting {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			cmd := m.submit(line)
			m.refresh()
			return m, cmd
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.conv.Append(RoleError, msg.err.Error(), "")
		} else {
			m.conv.Append(RoleAssistant, msg.content, "")
		}
		m.refresh()
		return m, nil

	case predictionMsg:
		m.waiting = false
		if msg.err != nil {
			m.conv.Append(RoleError, msg.err.Error(), "")
		} else {
			m.conv.Append(RoleAssistant, fmt.Sprintf("Prediction: %s (confidence %s)", msg.resp.Prediction, msg.resp.Confidence), "")
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles one input line and returns the command to run, if any.
func (m *Model) submit(line string) tea.Cmd {
	switch {
	case line == "":
		return nil
	case line == "/clear":
		m.conv.Clear()
		return nil
	case line == "/theme":
		m.conv.ToggleTheme()
		return nil
	case strings.HasPrefix(line, "/image"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/image"))
		if path == "" {
			m.conv.Append(RoleError, "usage: /image <path>", "")
			return nil
		}
		m.conv.Append(RoleUser, "Classify this image", path)
		m.waiting = true
		return tea.Batch(m.spinner.Tick, predictCmd(m.backend, path))
	default:
		m.conv.Append(RoleUser, line, "")
		m.waiting = true
		return tea.Batch(m.spinner.Tick, askCmd(m.backend, line))
	}
}

func askCmd(backend Backend, question string) tea.Cmd {
	return func() tea.Msg {
		content, err := backend.Ask(context.Background(), question)
		return answerMsg{content: content, err: err}
	}
}

func predictCmd(backend Backend, path string) tea.Cmd {
	return func() tea.Msg {
		resp, err := backend.PredictFile(context.Background(), path)
		return predictionMsg{resp: resp, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(Render(m.conv, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Breast Cancer Assistant")
	status := statusStyle.Render(fmt.Sprintf("session %s  theme %s", m.conv.ID.String()[:8], m.conv.Theme))
	if m.waiting {
		status = m.spinner.View() + " " + statusStyle.Render("thinking...")
	}
	return header + "\n" + m.viewport.View() + "\n" + inputBoxStyle.Render(m.input.View()) + "\n" + status
}

var (
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
