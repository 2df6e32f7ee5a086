package ui

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"remotelab/internal/appconfig"
	"remotelab/internal/conn"
	"remotelab/internal/events"
	"remotelab/internal/history"
	"remotelab/internal/model"
	"remotelab/internal/profile"
	"remotelab/internal/security"
	"remotelab/internal/tunnel"
)

type tickMsg time.Time

type statusMsg string

type modelUI struct {
	store      *profile.UserStore
	userPath   string
	cfg        appconfig.Config
	journal    *events.Store
	views      []model.SessionView
	filtered   []model.SessionView
	sel        int
	filter     string
	filterMode bool
	showHelp   bool
	status     string
	tunnels    []model.TunnelRuntime
	width      int
	height     int
	form       *sessionForm
	managers   map[string]*conn.Manager
	forwarders map[string]*tunnel.Manager
}

func initialModel(store *profile.UserStore, userPath string, cfg appconfig.Config) modelUI {
	m := modelUI{
		store:      store,
		userPath:   userPath,
		cfg:        cfg,
		journal:    events.NewStore(),
		managers:   map[string]*conn.Manager{},
		forwarders: map[string]*tunnel.Manager{},
	}
	m.reloadSessions()
	m.status = "Ready. Select a session, then Enter to connect or t to toggle its first forward."
	return m
}

func (m *modelUI) reloadSessions() {
	views := m.store.QuerySessions()
	if lastUsed, err := history.LastUsed(); err == nil {
		views = history.SortSessionsRecent(views, lastUsed)
	}
	m.views = views
	m.applyFilter()
	m.refreshTunnels()
}

func (m *modelUI) applyFilter() {
	if strings.TrimSpace(m.filter) == "" {
		m.filtered = append([]model.SessionView(nil), m.views...)
	} else {
		f := strings.ToLower(strings.TrimSpace(m.filter))
		m.filtered = nil
		for _, v := range m.views {
			if strings.Contains(strings.ToLower(v.Name), f) ||
				strings.Contains(strings.ToLower(v.LastServer), f) ||
				strings.Contains(strings.ToLower(v.Username), f) {
				m.filtered = append(m.filtered, v)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func (m *modelUI) refreshTunnels() {
	m.tunnels = nil
	for _, fm := range m.forwarders {
		m.tunnels = append(m.tunnels, fm.Snapshot()...)
	}
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = 3
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m modelUI) Init() tea.Cmd {
	return tickCmd(m.cfg.UI.RefreshSeconds)
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refreshTunnels()
		return m, tickCmd(m.cfg.UI.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if m.form != nil {
			if msg.String() == "esc" {
				m.form = nil
				m.status = "Edit cancelled"
				return m, nil
			}
			result, cmd := m.form.update(msg)
			if result != nil {
				m.applySessionEdit(*result)
				m.form = nil
			}
			return m, cmd
		}
		if m.filterMode {
			switch msg.String() {
			case "enter", "esc":
				m.filterMode = false
				m.applyFilter()
				return m, nil
			case "backspace":
				if len(m.filter) > 0 {
					m.filter = m.filter[:len(m.filter)-1]
				}
				m.applyFilter()
				return m, nil
			default:
				if len(msg.String()) == 1 {
					m.filter += msg.String()
					m.applyFilter()
				}
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.teardown()
			return m, tea.Quit
		case "j", "down":
			if m.sel < len(m.filtered)-1 {
				m.sel++
			}
		case "k", "up":
			if m.sel > 0 {
				m.sel--
			}
		case "/":
			m.filterMode = true
			m.status = "Filter mode: type and press Enter"
		case "?":
			m.showHelp = !m.showHelp
		case "r":
			m.reloadSessions()
			m.status = "Refreshed sessions and forward status"
		case "enter":
			if len(m.filtered) == 0 {
				break
			}
			m.connectSelected()
		case "d":
			if len(m.filtered) == 0 {
				break
			}
			m.disconnectSelected()
		case "t":
			if len(m.filtered) == 0 {
				break
			}
			m.toggleForward()
		case "e":
			if len(m.filtered) == 0 {
				break
			}
			idx, sess, err := m.selectedSession()
			if err != nil {
				m.status = err.Error()
				break
			}
			form, cmd := newSessionForm(idx, sess)
			m.form = form
			return m, cmd
		case "v":
			m.cycleViewer()
		}
	case statusMsg:
		m.status = string(msg)
	}
	return m, nil
}

// selectedSession maps the filtered cursor back to a store index.
func (m *modelUI) selectedSession() (int, model.Session, error) {
	name := m.filtered[m.sel].Name
	for i := 0; i < m.store.SessionCount(); i++ {
		sess, err := m.store.Session(i)
		if err != nil {
			return 0, model.Session{}, err
		}
		if sess.Name == name {
			return i, sess, nil
		}
	}
	return 0, model.Session{}, fmt.Errorf("session %q no longer exists", name)
}

func (m *modelUI) connectSelected() {
	_, sess, err := m.selectedSession()
	if err != nil {
		m.status = err.Error()
		return
	}
	if mgr, ok := m.managers[sess.Name]; ok && mgr.Connected() {
		m.status = "Already connected: " + sess.Name
		return
	}
	if sess.PrivateKeyPath == "" {
		m.status = "Session has no private key. Use `remotelab install-key " + sess.Name + "` or the tunnel CLI for password auth."
		return
	}
	host := sess.LastServer
	if host == "" {
		cp, ok := m.store.Profile(sess.ConnProfile)
		if !ok || len(cp.Servers) == 0 {
			m.status = "No server available for " + sess.Name
			return
		}
		host = cp.Servers[0]
	}
	if sess.Username == "" {
		m.status = "Session has no username. Press e to edit it."
		return
	}

	mgr := conn.NewManager(conn.NewSSHDialer(m.cfg.Security.HostKeyPolicy))
	m.record(events.Event{Session: sess.Name, Host: host, User: sess.Username, EventType: events.TypeConnectRequested})
	if _, err := mgr.Connect(host, sess.Username, "", sess.PrivateKeyPath); err != nil {
		msg := security.UserMessage(err, m.cfg.Security.RedactErrors)
		m.record(events.Event{Session: sess.Name, Host: host, User: sess.Username, EventType: events.TypeConnectFailed, Message: msg})
		m.status = "Connect failed: " + msg
		return
	}
	m.managers[sess.Name] = mgr
	m.forwarders[sess.Name] = tunnel.NewManager(mgr, m.journal)
	m.record(events.Event{ConnectionID: mgr.ID(), Session: sess.Name, Host: host, User: sess.Username, EventType: events.TypeConnectSucceeded})
	if err := history.Touch(sess.Name); err != nil {
		slog.Warn("failed to record session history", "error", err)
	}
	m.status = fmt.Sprintf("Connected: %s@%s", sess.Username, host)
}

func (m *modelUI) disconnectSelected() {
	name := m.filtered[m.sel].Name
	mgr, ok := m.managers[name]
	if !ok || !mgr.Connected() {
		m.status = "Not connected: " + name
		return
	}
	if fm, ok := m.forwarders[name]; ok {
		fm.StopAll()
	}
	mgr.Disconnect()
	m.record(events.Event{Session: name, EventType: events.TypeDisconnected})
	m.refreshTunnels()
	m.status = "Disconnected: " + name
}

func (m *modelUI) toggleForward() {
	_, sess, err := m.selectedSession()
	if err != nil {
		m.status = err.Error()
		return
	}
	cp, ok := m.store.Profile(sess.ConnProfile)
	if !ok || len(cp.ForwardingPorts) == 0 {
		m.status = "No forwarding ports for session " + sess.Name
		return
	}
	mgr, ok := m.managers[sess.Name]
	if !ok || !mgr.Connected() {
		m.status = "Connect first (Enter), then toggle the forward."
		return
	}
	fm := m.forwarders[sess.Name]
	fwd := cp.ForwardingPorts[0]
	id := tunnel.RuntimeID(sess.Name, fwd)
	if rt, err := fm.Get(id); err == nil && (rt.State == model.TunnelUp || rt.State == model.TunnelStarting) {
		_ = fm.Stop(id)
		m.status = "Forward stopped: " + id
	} else {
		rt, serr := fm.Start(sess.Name, fwd)
		if serr != nil {
			m.status = "Forward start failed: " + security.UserMessage(serr, m.cfg.Security.RedactErrors)
		} else {
			m.status = fmt.Sprintf("Forward started: %s -> %s", rt.Local, rt.Remote)
		}
	}
	m.refreshTunnels()
}

func (m *modelUI) cycleViewer() {
	current := m.store.Viewer()
	next := model.SupportedViewers[0]
	for i, v := range model.SupportedViewers {
		if v == current {
			next = model.SupportedViewers[(i+1)%len(model.SupportedViewers)]
			break
		}
	}
	if err := m.store.ChangeViewer(next); err != nil {
		m.status = err.Error()
		return
	}
	if err := m.store.Save(m.userPath); err != nil {
		m.status = "Viewer changed but save failed: " + err.Error()
		return
	}
	m.status = "Viewer set to " + string(next)
}

func (m *modelUI) applySessionEdit(result sessionEdit) {
	err := m.store.ModifySession(result.index, result.username, result.lastServer, result.keyPath, result.vncPasswdPath)
	if err != nil {
		m.status = "Edit rejected: " + err.Error()
		return
	}
	if err := m.store.Save(m.userPath); err != nil {
		m.status = "Edited but save failed: " + err.Error()
		return
	}
	m.reloadSessions()
	m.status = "Session updated"
}

func (m *modelUI) teardown() {
	for name, fm := range m.forwarders {
		fm.StopAll()
		delete(m.forwarders, name)
	}
	for name, mgr := range m.managers {
		if mgr.Connected() {
			mgr.Disconnect()
			m.record(events.Event{Session: name, EventType: events.TypeDisconnected})
		}
		delete(m.managers, name)
	}
}

func (m *modelUI) record(evt events.Event) {
	if err := m.journal.Append(evt); err != nil {
		slog.Warn("failed to record event", "error", err)
	}
}

func (m modelUI) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("Remote Lab Dashboard")
	subhead := fmt.Sprintf("sessions=%d shown=%d forwards=%d viewer=%s refresh=%ds",
		len(m.views), len(m.filtered), len(m.tunnels), m.store.Viewer(), clampRefresh(m.cfg.UI.RefreshSeconds))

	if m.form != nil {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			head,
			subhead,
			m.form.view(m.renderPanel, m.effectiveWidth()),
		)
	}

	left := strings.Builder{}
	left.WriteString("j/k to navigate; [C] means connected.\n")
	for i, v := range m.filtered {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		connMark := " "
		if mgr, ok := m.managers[v.Name]; ok && mgr.Connected() {
			connMark = "C"
		}
		left.WriteString(fmt.Sprintf("%s[%s] %-18s %-22s %-14s\n", cursor, connMark, v.Name, emptyDash(v.LastServer), emptyDash(v.Username)))
	}
	if len(m.filtered) == 0 {
		left.WriteString("  (no sessions matched)\n")
	}

	detail := strings.Builder{}
	if len(m.filtered) > 0 {
		v := m.filtered[m.sel]
		detail.WriteString(fmt.Sprintf("Name: %s\nLast server: %s\nUser: %s\nKey installed: %v\nVNC password file: %v\nVNC start: manual=%v\n",
			v.Name, emptyDash(v.LastServer), emptyDash(v.Username), v.HasKey, v.HasVNCPass, v.VNCManual))
		detail.WriteString("Servers:\n")
		if len(v.Servers) == 0 {
			detail.WriteString("  (none)\n")
		}
		for _, s := range v.Servers {
			detail.WriteString("  " + s + "\n")
		}
		detail.WriteString("\nNext steps:\n")
		detail.WriteString(m.guidanceForSession(v))
	} else {
		detail.WriteString("Pick a session to view connection and forward options.\n")
	}

	tbl := strings.Builder{}
	tbl.WriteString(fmt.Sprintf("%-20s %-20s %-20s %-10s %-8s\n", "SESSION", "LOCAL", "REMOTE", "STATE", "LAT"))
	for _, rt := range m.tunnels {
		tbl.WriteString(fmt.Sprintf("%-20s %-20s %-20s %-10s %-8d\n", rt.Session, rt.Local, rt.Remote, rt.State, rt.LatencyMS))
	}
	if len(m.tunnels) == 0 {
		tbl.WriteString("(none)\n")
	}

	filterLine := fmt.Sprintf("Filter: %s", m.filter)
	if m.filterMode {
		filterLine += " (typing...)"
	}

	quickHelp := "Keys: Enter connect | d disconnect | t toggle forward | e edit | v viewer | / filter | r refresh | ? help | q quit"
	main := m.renderMainPanels(left.String(), detail.String())
	tunnels := m.renderPanel("Active Forwards", tbl.String(), m.effectiveWidth(), lipgloss.Color("63"))
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))
	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), m.effectiveWidth(), lipgloss.Color("244"))
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		filterLine,
		quickHelp,
		main,
		tunnels,
		help,
		status,
	)
}

// Run opens the user store and starts the dashboard. The store slot is
// released when the program exits.
func Run() error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	dir, err := cfg.ProfilesDirPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	store, err := profile.NewUserStore(dir)
	if err != nil {
		return err
	}
	defer store.Release()

	userPath, err := cfg.UserProfileFilePath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(userPath); statErr == nil {
		if err := store.Load(userPath); err != nil {
			slog.Warn("user profile load failed, using defaults", "error", err)
		}
	}

	p := tea.NewProgram(initialModel(store, userPath, cfg), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func emptyDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func clampRefresh(seconds int) int {
	if seconds <= 0 {
		return 3
	}
	return seconds
}

func (m modelUI) guidanceForSession(v model.SessionView) string {
	var lines []string
	if mgr, ok := m.managers[v.Name]; ok && mgr.Connected() {
		lines = append(lines, "  - Connected. Press d to disconnect, t to toggle the first forward.")
	} else if v.HasKey {
		lines = append(lines, "  - Press Enter to connect with the installed key.")
	} else {
		lines = append(lines, "  - No key installed. Run `remotelab install-key "+v.Name+"` to set one up,")
		lines = append(lines, "    or `remotelab tunnel "+v.Name+"` for a password-authenticated session.")
	}
	if v.Username == "" || v.LastServer == "" {
		lines = append(lines, "  - Press e to set the username and server.")
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m modelUI) renderMainPanels(sessionsPanel, detailsPanel string) string {
	width := m.effectiveWidth()
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel("Sessions", sessionsPanel, width, lipgloss.Color("39")),
			m.renderPanel("Details", detailsPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel("Sessions", sessionsPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Details", detailsPanel, rightWidth, lipgloss.Color("69")),
	)
}

func (m modelUI) helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move selection.",
		"  Filtering: press /, type session/server/user text, then Enter.",
		"  Connect: press Enter on the selected session (needs an installed key).",
		"  Disconnect: press d on a connected session.",
		"  Forward: press t toggles the first forwarding pair of the selected session.",
		"  Edit: press e to change username, server, and credential paths.",
		"  Viewer: press v cycles the VNC viewer.",
		"  Quit: press q (or Ctrl+C); connections and forwards are torn down.",
	}, "\n")
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
