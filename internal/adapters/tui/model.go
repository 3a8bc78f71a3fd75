package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PabloGalante/farum-groupchat/internal/app/groupchat"
	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

const helpLine = "enter send · /add Name: instruction · /remove Name · /reset · ctrl+c quit"

type eventMsg groupchat.Event

type feedClosedMsg struct{}

type model struct {
	ctx    context.Context
	svc    *groupchat.Service
	conv   *groupchat.Conversation
	events <-chan groupchat.Event

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	styles   styles

	snap      groupchat.Snapshot
	status    string
	statusErr bool
	width     int
	height    int
	ready     bool
}

func newModel(ctx context.Context, svc *groupchat.Service, conv *groupchat.Conversation, events <-chan groupchat.Event) model {
	input := textinput.New()
	input.Placeholder = "Message the group..."
	input.Prompt = "› "
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return model{
		ctx:      ctx,
		svc:      svc,
		conv:     conv,
		events:   events,
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
		styles:   newStyles(),
		snap:     conv.Snapshot(),
		status:   "ready",
	}
}

// Run starts the terminal UI and blocks until the user quits.
func Run(ctx context.Context, svc *groupchat.Service, conv *groupchat.Conversation) error {
	events, unsubscribe := conv.Subscribe(256)
	defer unsubscribe()

	p := tea.NewProgram(newModel(ctx, svc, conv, events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func waitForEvent(ch <-chan groupchat.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-6)
		m.timeline.Width = msg.Width
		m.timeline.Height = max(3, msg.Height-8)
		m.ready = true
		m.renderTimeline()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			m.handleInput(line)
			m.snap = m.conv.Snapshot()
			m.renderTimeline()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.snap = m.conv.Snapshot()
		m.renderTimeline()
		cmds = append(cmds, waitForEvent(m.events))

	case feedClosedMsg:
		m.setStatus("conversation closed", true)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handleInput(line string) {
	cmd, err := parseCommand(line)
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}

	switch cmd.kind {
	case cmdNone:
		return
	case cmdSend:
		if _, err := m.svc.SendMessage(m.ctx, m.conv.ID(), cmd.text); err != nil {
			m.setStatus(err.Error(), true)
			return
		}
		m.setStatus("sent", false)
	case cmdReset:
		epoch, err := m.svc.Reset(m.ctx, m.conv.ID())
		if err != nil {
			m.setStatus(err.Error(), true)
			return
		}
		m.setStatus(fmt.Sprintf("conversation reset (epoch %d)", epoch), false)
	case cmdAdd:
		p, err := m.svc.AddParticipant(m.ctx, m.conv.ID(), domain.Participant{
			Name:        cmd.name,
			Instruction: cmd.text,
			Color:       paletteColor(len(m.snap.Roster)),
		})
		if err != nil {
			m.setStatus(err.Error(), true)
			return
		}
		m.setStatus(p.Name+" joined", false)
	case cmdRemove:
		p, ok := findByNameOrID(m.conv.Roster(), cmd.name)
		if !ok {
			m.setStatus("no participant named "+cmd.name, true)
			return
		}
		if err := m.svc.RemoveParticipant(m.ctx, m.conv.ID(), p.ID); err != nil {
			m.setStatus(err.Error(), true)
			return
		}
		m.setStatus(p.Name+" left", false)
	}
}

func (m *model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *model) renderTimeline() {
	if !m.ready {
		return
	}
	m.timeline.SetContent(renderMessages(m.styles, m.snap, m.width))
	m.timeline.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	personas := len(domain.Personas(m.snap.Roster))
	header := m.styles.header.Render("AI Group Chat")
	sub := m.styles.subheader.Render(fmt.Sprintf("%d personas, 1 human · epoch %d", personas, m.snap.Epoch))

	typing := m.renderTyping()

	status := m.styles.status.Render(m.status)
	if m.statusErr {
		status = m.styles.errStatus.Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header+sub,
		m.timeline.View(),
		typing,
		m.styles.inputPanel.Width(max(10, m.width-2)).Render(m.input.View()),
		status+"  "+m.styles.subheader.Render(helpLine),
	)
}

func (m model) renderTyping() string {
	if len(m.snap.Typing) == 0 {
		return ""
	}
	var names []string
	for id := range m.snap.Typing {
		if p, ok := domain.FindParticipant(m.snap.Roster, id); ok {
			names = append(names, nameStyle(p.Color).Render(p.Name))
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return m.spinner.View() + " " + strings.Join(names, ", ") + m.styles.typing.Render(" is typing...")
}

// renderMessages renders the log; senders that left render as "Unknown".
func renderMessages(st styles, snap groupchat.Snapshot, width int) string {
	if len(snap.Messages) == 0 {
		return st.empty.Render("Send a message to wake the personas up...")
	}
	body := st.body
	if width > 4 {
		body = body.Width(width - 4)
	}

	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		name, color := "Unknown", ""
		if p, ok := domain.FindParticipant(snap.Roster, msg.SenderID); ok {
			name, color = p.Name, p.Color
		}
		b.WriteString(nameStyle(color).Render(name))
		b.WriteString(" ")
		b.WriteString(st.subheader.Render(msg.CreatedAt.Format("15:04")))
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}

var palette = []string{"#8b5cf6", "#ec4899", "#06b6d4", "#fb923c", "#22c55e", "#eab308"}

func paletteColor(i int) string {
	return palette[i%len(palette)]
}

func findByNameOrID(roster []domain.Participant, key string) (domain.Participant, bool) {
	for _, p := range roster {
		if string(p.ID) == key || strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return domain.Participant{}, false
}
