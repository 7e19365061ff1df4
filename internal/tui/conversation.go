package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type Message struct {
	Role      Role
	Content   string
	ImagePath string
	At        time.Time
}

// Conversation is the chat state of one session. Messages are only appended
// or cleared as a whole.
type Conversation struct {
	ID       uuid.UUID
	Messages []Message
	Theme    Theme
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.New(), Theme: ThemeDark}
}

func (c *Conversation) Append(role Role, content, imagePath string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content, ImagePath: imagePath, At: time.Now()})
}

func (c *Conversation) Clear() {
	c.Messages = nil
}

func (c *Conversation) ToggleTheme() {
	if c.Theme == ThemeDark {
		c.Theme = ThemeLight
		return
	}
	c.Theme = ThemeDark
}

type palette struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	errorText lipgloss.Style
	meta      lipgloss.Style
}

var palettes = map[Theme]palette{
	ThemeDark: {
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	},
	ThemeLight: {
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("0")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	},
}

// Render draws the conversation history wrapped to width.
func Render(conv *Conversation, width int) string {
	p, ok := palettes[conv.Theme]
	if !ok {
		p = palettes[ThemeDark]
	}
	if len(conv.Messages) == 0 {
		return p.meta.Render("Ask a question about breast cancer, or type /image <path> to classify a mammogram.")
	}
	if width < 20 {
		width = 20
	}
	wrap := lipgloss.NewStyle().Width(width)

	blocks := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		var label string
		var style lipgloss.Style
		switch m.Role {
		case RoleUser:
			label, style = "You", p.user
		case RoleError:
			label, style = "Error", p.errorText
		default:
			label, style = "Assistant", p.assistant
		}
		header := style.Render(label) + " " + p.meta.Render(m.At.Format("15:04"))
		body := m.Content
		if m.ImagePath != "" {
			body = p.meta.Render("[image] "+m.ImagePath) + "\n" + body
		}
		blocks = append(blocks, header+"\n"+wrap.Render(style.UnsetBold().Render(body)))
	}
	return strings.Join(blocks, "\n\n")
}
