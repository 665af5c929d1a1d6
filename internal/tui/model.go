package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/logging"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ProgressMsg carries an updated progress snapshot.
type ProgressMsg struct {
	Progress Progress
}

// DoneMsg signals the run finished; Err is nil on success.
type DoneMsg struct {
	Err error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Progress
// =============================================================================

// Stages of a run, in order.
const (
	StageIngest  = "ingest"
	StageAnalyze = "analyze"
	StageDone    = "done"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	Stage string

	// Input is the export being read; InputIndex counts from 1.
	Input      string
	InputIndex int
	InputCount int

	Rates     timeseries.Rates
	Points    int64
	Malformed int64

	RSS     uint64
	Ceiling uint64

	Diagnostics []logging.Occurrence
	Recent      []string
}

// ProgressSource provides progress snapshots. It is polled on every tick
// from the TUI goroutine.
type ProgressSource interface {
	Progress() Progress
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	version     string
	metricsAddr string
	source      ProgressSource

	progress   Progress
	startTime  time.Time
	lastUpdate time.Time
	showRecent bool

	width  int
	height int

	err         error
	done        bool
	interrupted bool
	quitting    bool
}

// Config holds TUI configuration.
type Config struct {
	Version     string
	MetricsAddr string
	Source      ProgressSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	return Model{
		version:     cfg.Version,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		progress:    Progress{Stage: StageIngest},
		startTime:   now,
		lastUpdate:  now,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done {
				m.interrupted = true
			}
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.showRecent = !m.showRecent
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.progress = m.source.Progress()
		}
		m.lastUpdate = time.Time(msg)
		return m, tickCmd()

	case ProgressMsg:
		m.progress = msg.Progress
		m.lastUpdate = time.Now()
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.progress.Stage = StageDone
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool {
	return m.interrupted
}

// Err returns the error the run finished with.
func (m Model) Err() error {
	return m.err
}

// MemoryRatio returns RSS as a fraction of the ceiling, 0 when unbounded.
func (m Model) MemoryRatio() float64 {
	if m.progress.Ceiling == 0 {
		return 0
	}
	return float64(m.progress.RSS) / float64(m.progress.Ceiling)
}

// DiagnosticsTotal returns the number of problems reported so far.
func (m Model) DiagnosticsTotal() int {
	total := 0
	for _, o := range m.progress.Diagnostics {
		total += o.Count
	}
	return total
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendProgress sends a progress update to the TUI.
func SendProgress(p *tea.Program, progress Progress) {
	if p != nil {
		p.Send(ProgressMsg{Progress: progress})
	}
}

// SendDone tells the TUI the run finished.
func SendDone(p *tea.Program, err error) {
	if p != nil {
		p.Send(DoneMsg{Err: err})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatCount formats a number with K/M/G suffixes.
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fG", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	switch {
	case rate >= 1_000_000:
		return fmt.Sprintf("%.2fM/s", rate/1_000_000)
	case rate >= 1000:
		return fmt.Sprintf("%.1fK/s", rate/1000)
	case rate >= 1:
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
