package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/spf13/cobra"
)

// etaRefreshInterval re-derives the time-remaining estimate between pushes.
const etaRefreshInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job's progress live",
	Long: `Follow an indexing job with a live progress bar. Updates are pushed
over the dashboard WebSocket channel; if the connection drops it is
re-established automatically with backoff.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers an ETA refresh
type tickMsg time.Time

// jobUpdateMsg carries a pushed job snapshot
type jobUpdateMsg struct {
	job models.Job
	gap bool
}

// linkMsg carries connection state changes from the stream
type linkMsg struct {
	status string
}

// etaMsg carries the server-derived time-remaining estimate
type etaMsg struct {
	eta *string
}

// watchModel is the bubbletea model for live job progress.
type watchModel struct {
	jobID    string
	job      *models.Job
	eta      *string
	link     string
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newWatchModel(jobID string) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return watchModel{
		jobID:    jobID,
		link:     "connecting",
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial commands: fetch the current snapshot and start
// the ETA ticker.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		fetchJobCmd(m.jobID),
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.job != nil && m.job.Status == models.JobStatusProcessing {
			return m, tea.Batch(fetchETACmd(m.jobID), tickCmd())
		}
		return m, tickCmd()

	case jobUpdateMsg:
		job := msg.job
		m.job = &job
		if msg.gap {
			// events were dropped upstream, the snapshot itself is current
			return m, tea.Batch(fetchETACmd(m.jobID), m.maybeFinish())
		}
		return m, m.maybeFinish()

	case etaMsg:
		m.eta = msg.eta
		return m, nil

	case linkMsg:
		m.link = msg.status
		return m, nil

	case errMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

type errMsg struct {
	err error
}

func (m *watchModel) maybeFinish() tea.Cmd {
	if m.job != nil && m.job.Status.Terminal() {
		m.done = true
		return tea.Quit
	}
	return nil
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return fmt.Sprintf("Waiting for job %s (%s)...\n", m.jobID, m.link)
	}

	var pct float64
	if m.job.TotalFiles > 0 {
		pct = float64(m.job.ProcessedFiles+m.job.FailedFiles) / float64(m.job.TotalFiles)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d files", m.job.ProcessedFiles+m.job.FailedFiles, m.job.TotalFiles)

	line := fmt.Sprintf("%s %s %s", status, progressBar, counts)
	if m.eta != nil {
		line += m.theme.hintStyle().Render(fmt.Sprintf("  ~%s left", *m.eta))
	}
	if m.job.CurrentFile != nil {
		line += "\n" + m.theme.hintStyle().Render("  "+*m.job.CurrentFile)
	}
	if m.link != "connected" {
		line += "\n" + m.theme.errorStyle().Render("  link: "+m.link)
	}

	hint := m.theme.hintStyle().Render("Press q to stop watching, the job keeps running")
	return fmt.Sprintf("%s\n%s\n", line, hint)
}

func (m watchModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'ragctl jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	if m.job == nil {
		return ""
	}

	switch m.job.Status {
	case models.JobStatusCompleted:
		out := m.theme.completedStyle().Render("✓ Completed") + "\n"
		out += fmt.Sprintf("  %d files processed", m.job.ProcessedFiles)
		if m.job.FailedFiles > 0 {
			out += fmt.Sprintf(", %d failed", m.job.FailedFiles)
		}
		return out + "\n"
	case models.JobStatusCancelled:
		return m.theme.errorStyle().Render("✗ Cancelled") + "\n"
	default:
		reason := "unknown error"
		if m.job.ErrorMessage != nil {
			reason = *m.job.ErrorMessage
		}
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Failed: %s\n", reason))
	}
}

// fetchJobCmd fetches the current job snapshot once, before any push
// arrives.
func fetchJobCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := apiClient.GetJob(ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("fetch job: %w", err)}
		}
		return jobUpdateMsg{job: *job}
	}
}

// fetchETACmd asks the server for the derived time-remaining estimate.
func fetchETACmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		progress, err := apiClient.GetProgress(ctx, id)
		if err != nil {
			return etaMsg{}
		}
		return etaMsg{eta: progress.EstimatedTimeRemaining}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(etaRefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// decodeJob converts an event payload back into a job snapshot. Data
// arrives as generic JSON when read off the wire.
func decodeJob(data any) (*models.Job, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false
	}
	if job.ID == "" {
		return nil, false
	}
	return &job, true
}

func runWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	p := tea.NewProgram(newWatchModel(jobID))

	stream := apiClient.NewStream(slog.New(slog.DiscardHandler))
	defer stream.Close()

	detachJobs := stream.On(models.EventJobUpdated, func(ev models.Event) {
		job, ok := decodeJob(ev.Data)
		if !ok || job.ID != jobID {
			return
		}
		p.Send(jobUpdateMsg{job: *job, gap: ev.Gap})
	})
	defer detachJobs()

	detachLink := stream.On(models.EventConnection, func(ev models.Event) {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		var info models.ConnectionInfo
		if err := json.Unmarshal(raw, &info); err != nil || info.Status == "pong" {
			return
		}
		p.Send(linkMsg{status: info.Status})
	})
	defer detachLink()

	stream.Connect()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
