package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"remotelab/internal/model"
)

// Field indices for the session editor form.
const (
	fieldUsername = iota
	fieldServer
	fieldKeyPath
	fieldVNCPasswd
	fieldCount
)

// sessionEdit is returned when the user submits the form. Key and VNC
// password paths are always submitted; an emptied field clears the path.
type sessionEdit struct {
	index         int
	username      string
	lastServer    string
	keyPath       *string
	vncPasswdPath *string
}

// sessionForm edits one saved session in place.
type sessionForm struct {
	index    int
	name     string
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

// newSessionForm creates a form pre-filled with the session's current values.
func newSessionForm(index int, sess model.Session) (*sessionForm, tea.Cmd) {
	f := &sessionForm{index: index, name: sess.Name}

	placeholders := []string{
		"remote username (required)",
		"server hostname from the profile catalog (required)",
		"~/.config/remotelab/keys/... (optional)",
		"~/.vnc/passwd (optional)",
	}
	values := []string{sess.Username, sess.LastServer, sess.PrivateKeyPath, sess.VNCPasswdPath}
	limits := []int{64, 256, 256, 256}

	f.fields = make([]textinput.Model, fieldCount)
	for i := range f.fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.SetValue(values[i])
		ti.CharLimit = limits[i]
		ti.Width = 48
		f.fields[i] = ti
	}
	f.fields[0].Focus()
	return f, f.fields[0].Cursor.BlinkCmd()
}

// update processes a key message and returns a sessionEdit when complete.
func (f *sessionForm) update(msg tea.KeyMsg) (*sessionEdit, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		f.fields[f.focusIdx].Blur()
		if msg.String() == "tab" {
			f.focusIdx = (f.focusIdx + 1) % fieldCount
		} else {
			f.focusIdx = (f.focusIdx - 1 + fieldCount) % fieldCount
		}
		f.fields[f.focusIdx].Focus()
		return nil, f.fields[f.focusIdx].Cursor.BlinkCmd()
	case "enter":
		edit, err := f.buildEdit()
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return edit, nil
	default:
		var cmd tea.Cmd
		f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *sessionForm) buildEdit() (*sessionEdit, error) {
	username := strings.TrimSpace(f.fields[fieldUsername].Value())
	server := strings.TrimSpace(f.fields[fieldServer].Value())
	keyPath := strings.TrimSpace(f.fields[fieldKeyPath].Value())
	vncPasswd := strings.TrimSpace(f.fields[fieldVNCPasswd].Value())

	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if server == "" {
		return nil, fmt.Errorf("server is required")
	}
	return &sessionEdit{
		index:         f.index,
		username:      username,
		lastServer:    server,
		keyPath:       &keyPath,
		vncPasswdPath: &vncPasswd,
	}, nil
}

// view renders the form panel.
func (f *sessionForm) view(renderPanel func(string, string, int, lipgloss.Color) string, width int) string {
	labels := []string{"Username:", "Server:", "Key path:", "VNC passwd:"}

	var b strings.Builder
	for i, label := range labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-12s %s\n", cursor, label, f.fields[i].View()))
	}

	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}

	b.WriteString("\nTab/Shift-Tab navigate | Enter submit | Esc cancel")
	return renderPanel("Edit Session - "+f.name, b.String(), width, lipgloss.Color("214"))
}
