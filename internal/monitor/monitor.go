// Package monitor is a terminal view of the manager's retained handles.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
	"github.com/zjrosen/algomgr/internal/notify"
	"github.com/zjrosen/algomgr/internal/pubsub"
)

const refreshInterval = 500 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// DemoRun is one entry of the batch the `r` key starts.
type DemoRun struct {
	Name       string
	Properties map[string]string
}

// DefaultBatch runs a few built-in algorithms.
func DefaultBatch() []DemoRun {
	return []DemoRun{
		{Name: "Echo", Properties: map[string]string{"message": "hello", "repeat": "3"}},
		{Name: "Sum", Properties: map[string]string{"values": "1,2,3,4"}},
		{Name: "Sleep", Properties: map[string]string{"duration": "3s", "step": "250ms"}},
	}
}

type tickMsg time.Time

type batchMsg struct {
	started int
	err     error
}

// Model is the monitor's tea.Model.
type Model struct {
	ctx    context.Context
	mgr    *manager.Manager
	events *pubsub.Listener[notify.Starting]
	logs   *log.Listener
	batch  []DemoRun

	table   table.Model
	starts  int
	last    string
	lastLog string
	err     error
	width   int
}

// New builds a monitor over mgr. Starting events are read from events,
// usually a subscription on mgr.Hub().
func New(ctx context.Context, mgr *manager.Manager, events <-chan notify.Event, batch []DemoRun) Model {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(styles)

	m := Model{
		ctx:    ctx,
		mgr:    mgr,
		events: pubsub.Listen(ctx, events),
		logs:   log.NewListener(ctx),
		batch:  batch,
		table:  t,
	}
	m.refresh()
	return m
}

func columns(width int) []table.Column {
	name := max(width-52, 12)
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Name", Width: name},
		{Title: "Ver", Width: 4},
		{Title: "Kind", Width: 7},
		{Title: "State", Width: 11},
		{Title: "Run", Width: 10},
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh tick and the event listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), m.events.Next()}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Next())
	}
	return tea.Batch(cmds...)
}

// Update handles keys, ticks and hub events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(columns(msg.Width))
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case notify.Event:
		m.starts++
		m.last = fmt.Sprintf("%s v%d started (handle %d)", msg.Payload.Name, msg.Payload.Version, msg.Payload.HandleID)
		m.refresh()
		return m, m.events.Next()

	case pubsub.Event[log.Entry]:
		m.lastLog = msg.Payload.String()
		return m, m.logs.Next()

	case batchMsg:
		m.err = msg.err
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.mgr.Clear()
			m.refresh()
			return m, nil
		case "r":
			return m, runBatch(m.ctx, m.mgr, m.batch)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the table with a status and help line.
func (m Model) View() string {
	title := titleStyle.Render(fmt.Sprintf("algomgr  %d/%d retained", m.mgr.Size(), m.mgr.Capacity()))
	status := statusStyle.Render(fmt.Sprintf("%d starts  %s", m.starts, m.last))
	if m.width > 0 {
		status = ansi.Truncate(status, m.width, "…")
	}
	if m.err != nil {
		msg := m.err.Error()
		if m.width > 0 {
			msg = wordwrap.String(msg, m.width)
		}
		status = errorStyle.Render(msg)
	}
	help := helpStyle.Render("r run batch • c clear • q quit")
	if m.lastLog == "" {
		return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View(), status, help)
	}
	tail := m.lastLog
	if m.width > 0 {
		tail = ansi.Truncate(tail, m.width, "…")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View(), status, helpStyle.Render(tail), help)
}

// Rows returns the rows currently shown.
func (m Model) Rows() []table.Row {
	return m.table.Rows()
}

// Starts returns how many Starting events the monitor has seen.
func (m Model) Starts() int { return m.starts }

func (m *Model) refresh() {
	hs := m.mgr.Handles()
	rows := make([]table.Row, 0, len(hs))
	for _, h := range hs {
		run := h.LastRunID()
		if len(run) > 8 {
			run = run[:8]
		}
		rows = append(rows, table.Row{
			strconv.FormatUint(uint64(h.ID()), 10),
			h.Name(),
			strconv.Itoa(h.Version()),
			h.Kind().String(),
			h.State().String(),
			run,
		})
	}
	m.table.SetRows(rows)
}

func runBatch(ctx context.Context, mgr *manager.Manager, batch []DemoRun) tea.Cmd {
	return func() tea.Msg {
		started := 0
		for _, run := range batch {
			h, err := mgr.Create(run.Name, catalog.LatestVersion, manager.WithProperties(run.Properties))
			if err != nil {
				return batchMsg{started: started, err: err}
			}
			h.ExecuteAsync(ctx)
			started++
		}
		log.Debug(log.CatMonitor, "Batch started", "runs", started)
		return batchMsg{started: started}
	}
}

// Run starts the monitor on the terminal and blocks until the user quits.
func Run(ctx context.Context, mgr *manager.Manager) error {
	events, unsubscribe := mgr.Hub().Subscribe(ctx)
	defer unsubscribe()

	p := tea.NewProgram(New(ctx, mgr, events, DefaultBatch()), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
