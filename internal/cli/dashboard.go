package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

const (
	dashboardWindow   = 7 * 24 * time.Hour
	dashboardActivity = 8
)

type pane int

const (
	paneNodes pane = iota
	paneServices
	paneActivity
	paneAlerts
	paneCount
)

func (p pane) title() string {
	return [...]string{"Nodes", "Services", "Activity", "Alerts"}[p]
}

var dashboardRefresh time.Duration

// board is everything one refresh reads from the registry and event log.
type board struct {
	summary  models.RegistrySummary
	nodes    []models.Node
	services []models.Service
	metrics  *observability.Metrics
	events   []observability.Event
	alerts   []observability.Alert
	loadedAt time.Time
}

type boardMsg struct {
	board *board
	err   error
}

type tickMsg time.Time

type dashboardModel struct {
	focus         pane
	width, height int
	refresh       time.Duration

	board   *board
	busy    bool
	probing bool
	err     error
}

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")).Padding(0, 1)
	boxStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	focusBoxStyle = boxStyle.BorderForeground(lipgloss.Color("39"))
	paneTitle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	statusStyles = map[string]lipgloss.Style{
		models.ServiceHealthy:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.ServiceUnhealthy: lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		models.ServiceUnknown:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		models.NodeActive:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.NodeAvailable:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
	severityStyles = map[observability.AlertSeverity]lipgloss.Style{
		observability.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		observability.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		observability.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	}
)

func newDashboardModel(refresh time.Duration) dashboardModel {
	return dashboardModel{focus: paneNodes, refresh: refresh, busy: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(loadBoardCmd, m.tick())
}

func (m dashboardModel) tick() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.focus = (m.focus + 1) % paneCount
		case "shift+tab", "left":
			m.focus = (m.focus + paneCount - 1) % paneCount
		case "r":
			m.busy = true
			return m, loadBoardCmd
		case "h":
			if Dispatcher == nil || m.probing {
				return m, nil
			}
			m.probing = true
			return m, probeHealthCmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		if m.busy {
			return m, m.tick()
		}
		m.busy = true
		return m, tea.Batch(loadBoardCmd, m.tick())

	case boardMsg:
		m.busy, m.probing = false, false
		m.err = msg.err
		if msg.err == nil {
			m.board = msg.board
		}
		return m, nil
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	header := bannerStyle.Render(" Heady Conductor ")
	if m.board != nil {
		header += dimStyle.Render(fmt.Sprintf("  %d capabilities  refreshed %s",
			m.board.summary.TotalCapabilities, m.board.loadedAt.Format("15:04:05")))
	}
	if m.probing {
		header += dimStyle.Render("  checking health...")
	}
	keys := dimStyle.Render("tab: focus  r: refresh  h: health check  q: quit")

	switch {
	case m.err != nil:
		return fmt.Sprintf("%s\n\n  Error: %v\n\n%s", header, m.err, keys)
	case m.board == nil:
		return fmt.Sprintf("%s\n\n  Loading registry...\n\n%s", header, keys)
	}

	bodies := [paneCount]string{m.nodesPane(), m.servicesPane(), m.activityPane(), m.alertsPane()}
	var boxes [paneCount]string
	wide := m.width >= 100
	w := m.width - 4
	if wide {
		w = m.width/2 - 4
	}
	for p := pane(0); p < paneCount; p++ {
		style := boxStyle
		if p == m.focus {
			style = focusBoxStyle
		}
		boxes[p] = style.Width(w).Render(paneTitle.Render(p.title()) + "\n" + bodies[p])
	}

	var grid string
	if wide {
		grid = lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Top, boxes[paneNodes], boxes[paneServices]),
			lipgloss.JoinHorizontal(lipgloss.Top, boxes[paneActivity], boxes[paneAlerts]),
		)
	} else {
		grid = lipgloss.JoinVertical(lipgloss.Left, boxes[:]...)
	}
	return header + "\n\n" + grid + "\n" + keys
}

func (m dashboardModel) nodesPane() string {
	if len(m.board.nodes) == 0 {
		return dimStyle.Render("no nodes registered")
	}
	var b strings.Builder
	for _, n := range m.board.nodes {
		line := fmt.Sprintf("%-10s %-10s %-9s", n.Name, n.Role, n.Status)
		fmt.Fprint(&b, styleForStatus(n.Status).Render(line))
		if n.LastInvoked != "" {
			fmt.Fprint(&b, dimStyle.Render(" "+n.LastInvoked))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) servicesPane() string {
	var b strings.Builder
	for _, s := range m.board.services {
		fmt.Fprintln(&b, styleForStatus(s.Status).Render(fmt.Sprintf("%-16s %s", s.Name, s.Status)))
	}
	if met := m.board.metrics; met != nil {
		fmt.Fprintf(&b, "\n%d health checks, %d tasks (%.0f%% failed)",
			met.HealthChecks, met.TasksCompleted+met.TasksFailed, met.TaskErrorRate*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) activityPane() string {
	if len(m.board.events) == 0 {
		return dimStyle.Render("no recent events")
	}
	var b strings.Builder
	// Newest first.
	for i := len(m.board.events) - 1; i >= 0; i-- {
		e := m.board.events[i]
		fmt.Fprintf(&b, "%s %s %s\n", dimStyle.Render(e.Time.Local().Format("01-02 15:04")), e.Type, eventSubject(e))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) alertsPane() string {
	if len(m.board.alerts) == 0 {
		return statusStyles[models.ServiceHealthy].Render("all clear")
	}
	var b strings.Builder
	for _, a := range m.board.alerts {
		fmt.Fprintf(&b, "%s %s\n", styleForSeverity(a.Severity).Render(strings.ToUpper(string(a.Severity))), a.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// eventSubject names what an event is about, if its data says.
func eventSubject(e observability.Event) string {
	for _, k := range []string{"node", "workflow", "service", "tool", "task_type", "request"} {
		if v, ok := e.Data[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func styleForStatus(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func styleForSeverity(sev observability.AlertSeverity) lipgloss.Style {
	if s, ok := severityStyles[sev]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func severityRank(sev observability.AlertSeverity) int {
	switch sev {
	case observability.SeverityHigh:
		return 0
	case observability.SeverityMedium:
		return 1
	case observability.SeverityLow:
		return 2
	}
	return 3
}

func loadBoardCmd() tea.Msg {
	b, err := loadBoard(time.Now())
	return boardMsg{board: b, err: err}
}

func probeHealthCmd() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	Dispatcher.CheckServiceHealth(ctx, "")
	return loadBoardCmd()
}

// loadBoard reads one consistent view for the dashboard. Sources that are not
// wired are left empty.
func loadBoard(now time.Time) (*board, error) {
	if Store == nil {
		return nil, fmt.Errorf("registry not initialized")
	}
	b := &board{
		summary:  Store.Summary(),
		nodes:    Store.Nodes(),
		services: Store.Services(),
		loadedAt: now,
	}

	if MetricsCalc != nil {
		met, err := MetricsCalc.Calculate(now.Add(-dashboardWindow))
		if err != nil {
			return nil, fmt.Errorf("calculating metrics: %w", err)
		}
		b.metrics = met
	}
	if EventLog != nil {
		events, err := EventLog.Read(observability.EventFilter{Limit: dashboardActivity})
		if err != nil {
			return nil, fmt.Errorf("reading events: %w", err)
		}
		b.events = events
	}
	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return nil, fmt.Errorf("evaluating alerts: %w", err)
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
		})
		b.alerts = alerts
	}
	return b, nil
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal view of nodes, services, activity and alerts",
	Long: `Open a terminal dashboard over the capability registry and the event log.

The view refreshes on the --refresh interval (0 disables it). Keys: tab moves
focus, r refreshes, h runs a health check of every service, q quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("registry not initialized")
		}
		_, err := tea.NewProgram(newDashboardModel(dashboardRefresh), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().DurationVar(&dashboardRefresh, "refresh", 5*time.Second, "Auto-refresh interval")
	rootCmd.AddCommand(dashboardCmd)
}
