package main

import (
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	tuiProgram   *tea.Program
	tuiMu        sync.Mutex
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...any) {
	tuiSend(StatusMsg{Text: fmt.Sprintf(format, args...)})
}

type (
	TUIReadyMsg       struct{}
	RecordingStartMsg struct{}
	FinalizingMsg     struct{}
	RecordingDoneMsg  struct{ Text string }
	RecordingTickMsg  struct{ Duration float64 }
	AudioLevelMsg     struct{ Level float64 }
	SegmentMsg        struct{ Done, Total int }
	ModeLineMsg       struct{ Text string }
	StatusMsg         struct{ Text string }
	WarningMsg        struct{ Text string }
	WarningClearMsg   struct{}
	DownloadMsg       struct{ Downloaded, Total int64 }
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	finalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	meterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type tuiModel struct {
	mode      string // idle, recording, finalizing
	modeLine  string
	duration  float64
	level     float64
	segDone   int
	segTotal  int
	lastText  string
	status    string
	warning   string
	dlCurrent int64
	dlTotal   int64
}

func NewTUIProgram() *tea.Program {
	return tea.NewProgram(tuiModel{mode: "idle"})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case RecordingStartMsg:
		m.mode = "recording"
		m.duration = 0
		m.segDone, m.segTotal = 0, 0
		m.warning = ""
	case FinalizingMsg:
		m.mode = "finalizing"
	case RecordingDoneMsg:
		m.mode = "idle"
		if msg.Text != "" {
			m.lastText = msg.Text
		}
		m.level = 0
	case RecordingTickMsg:
		m.duration = msg.Duration
	case AudioLevelMsg:
		m.level = msg.Level
	case SegmentMsg:
		m.segDone, m.segTotal = msg.Done, msg.Total
	case ModeLineMsg:
		m.modeLine = msg.Text
	case StatusMsg:
		m.status = msg.Text
	case WarningMsg:
		m.warning = msg.Text
	case WarningClearMsg:
		m.warning = ""
	case DownloadMsg:
		m.dlCurrent, m.dlTotal = msg.Downloaded, msg.Total
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("murmur") + "  " + idleStyle.Render(m.modeLine) + "\n\n")

	switch m.mode {
	case "recording":
		b.WriteString(recStyle.Render("● recording") + fmt.Sprintf("  %5.1fs  ", m.duration))
		b.WriteString(meterStyle.Render(levelMeter(m.level)) + "\n")
		if m.segTotal > 0 {
			b.WriteString(idleStyle.Render(fmt.Sprintf("  segments transcribed: %d/%d", m.segDone, m.segTotal)) + "\n")
		}
	case "finalizing":
		b.WriteString(finalStyle.Render("… finalizing") + fmt.Sprintf("  %d/%d segments (press again to discard)", m.segDone, m.segTotal) + "\n")
	default:
		b.WriteString(idleStyle.Render("◦ idle, press ctrl+shift+space to dictate") + "\n")
	}

	if m.dlTotal > 0 && m.dlCurrent < m.dlTotal {
		pct := float64(m.dlCurrent) / float64(m.dlTotal) * 100
		b.WriteString(idleStyle.Render(fmt.Sprintf("  downloading model: %.0f%%", pct)) + "\n")
	}
	if m.warning != "" {
		b.WriteString(warnStyle.Render("  ! "+m.warning) + "\n")
	}
	if m.lastText != "" {
		b.WriteString("\n" + textStyle.Render(m.lastText) + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + idleStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("q: quit") + "\n")
	return b.String()
}

func levelMeter(level float64) string {
	const width = 20
	n := int(level * 3 * width)
	if n > width {
		n = width
	}
	return "[" + strings.Repeat("|", n) + strings.Repeat(" ", width-n) + "]"
}
