package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
	"github.com/kc2g-flex-tools/nBEAT/internal/session"
)

const (
	refreshInterval = 200 * time.Millisecond
	logLines        = 8
	spectrumBars    = 48
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	logStyle    = boxStyle.Copy().Foreground(lipgloss.Color("241"))
)

// LogPane keeps the last few log lines for the TUI. It never blocks, so
// the control path can log from inside Update.
type LogPane struct {
	mu    sync.Mutex
	lines []string
}

func (l *LogPane) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.Split(strings.TrimRight(string(p), "\n"), "\n")...)
	if n := len(l.lines); n > logLines {
		l.lines = append(l.lines[:0], l.lines[n-logLines:]...)
	}
	return len(p), nil
}

func (l *LogPane) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

type keyMap struct {
	Toggle     key.Binding
	Next       key.Binding
	Prev       key.Binding
	BeatUp     key.Binding
	BeatDown   key.Binding
	BaseUp     key.Binding
	BaseDown   key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Suspend    key.Binding
	Extension  key.Binding
	Help       key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop")),
	Next:       key.NewBinding(key.WithKeys("tab", "n"), key.WithHelp("tab", "next preset")),
	Prev:       key.NewBinding(key.WithKeys("shift+tab", "p"), key.WithHelp("shift+tab", "previous preset")),
	BeatUp:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "beat +")),
	BeatDown:   key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "beat -")),
	BaseUp:     key.NewBinding(key.WithKeys("pgup", "right"), key.WithHelp("pgup", "base +")),
	BaseDown:   key.NewBinding(key.WithKeys("pgdown", "left"), key.WithHelp("pgdn", "base -")),
	VolumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume +")),
	VolumeDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume -")),
	Suspend:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "suspend/resume")),
	Extension: key.NewBinding(
		key.WithKeys("r", "w", "W", "b", "B", "c", "t", "o", "m", "f"),
		key.WithHelp("r w b c t o m f", "preset actions"),
	),
	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Next, k.BeatUp, k.BeatDown, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Next, k.Prev, k.Suspend},
		{k.BeatUp, k.BeatDown, k.BaseUp, k.BaseDown},
		{k.VolumeUp, k.VolumeDown, k.Extension, k.Quit},
	}
}

type tickMsg time.Time

type eventMsg engine.Event

type stoppedMsg struct{}

type UIModel struct {
	panel    *Panel
	ctl      *session.Controller
	logs     *LogPane
	send     func(tea.Msg)
	help     help.Model
	progress progress.Model
	status   string
}

// NewUI subscribes to controller events. Listeners run under the
// controller lock, so send must not block.
func NewUI(panel *Panel, ctl *session.Controller, logs *LogPane, send func(tea.Msg)) UIModel {
	ctl.OnEvent(func(e engine.Event) { send(eventMsg(e)) })
	return UIModel{
		panel:    panel,
		ctl:      ctl,
		logs:     logs,
		send:     send,
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m UIModel) Init() tea.Cmd {
	return tick()
}

func (m UIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.progress.Width = min(max(msg.Width-20, 10), 60)
	case tickMsg:
		return m, tick()
	case eventMsg:
		m.status = describe(engine.Event(msg))
	case stoppedMsg:
		m.status = "stopped"
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m UIModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Toggle):
		err = m.panel.Toggle(m.stopped)
	case key.Matches(msg, keys.Next):
		err = m.panel.Step(1)
	case key.Matches(msg, keys.Prev):
		err = m.panel.Step(-1)
	case key.Matches(msg, keys.BeatUp):
		m.panel.NudgeBeat(beatStep)
	case key.Matches(msg, keys.BeatDown):
		m.panel.NudgeBeat(-beatStep)
	case key.Matches(msg, keys.BaseUp):
		m.panel.NudgeBase(baseStep)
	case key.Matches(msg, keys.BaseDown):
		m.panel.NudgeBase(-baseStep)
	case key.Matches(msg, keys.VolumeUp):
		m.panel.NudgeVolume(volumeStep)
	case key.Matches(msg, keys.VolumeDown):
		m.panel.NudgeVolume(-volumeStep)
	case key.Matches(msg, keys.Suspend):
		m.panel.ToggleSuspend()
	case key.Matches(msg, keys.Extension):
		var status string
		status, err = m.panel.Extension([]rune(msg.String())[0])
		if status != "" {
			m.status = status
		}
	}
	if err != nil {
		m.status = err.Error()
	}
	return m, nil
}

// stopped runs on the control thread once a stop completes.
func (m UIModel) stopped() { m.send(stoppedMsg{}) }

func describe(e engine.Event) string {
	switch e.Kind {
	case engine.EventPhase:
		return fmt.Sprintf("phase %.0f: %s", e.Value+1, e.Detail)
	case engine.EventProtocolStage:
		return fmt.Sprintf("%s stage at %.1f Hz", strings.ToUpper(e.Detail), e.Value)
	case engine.EventBeatCycle:
		return fmt.Sprintf("%s cycle at %.0f Hz", e.Detail, e.Value)
	case engine.EventProgress:
		return fmt.Sprintf("%s progress %.0f%%", e.Detail, e.Value)
	case engine.EventFinished:
		return "journey complete"
	default:
		return e.Kind.String()
	}
}

func (m UIModel) View() string {
	s := m.ctl.Session()
	d := m.panel.Selected()

	var b strings.Builder
	b.WriteString(titleStyle.Render("nBEAT") + "  " + labelStyle.Render(string(d.Category)) + "\n\n")
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", label)) + valueStyle.Render(value) + "\n")
	}
	field("preset", fmt.Sprintf("%s (%s)", d.Name, d.ID))
	state := s.State.String()
	if m.ctl.Suspended() {
		state += ", suspended"
	}
	field("state", state)
	if s.Playing {
		field("base", fmt.Sprintf("%.2f Hz", s.BaseFrequency))
		field("beat", fmt.Sprintf("%.2f Hz", s.BeatFrequency))
		field("volume", fmt.Sprintf("%.0f%%", s.Volume*100))
		field("elapsed", m.ctl.Elapsed().Truncate(time.Second).String())
		data := m.ctl.Spectrum()
		if len(data) > 1 {
			field("peak", fmt.Sprintf("%.0f Hz", m.ctl.BinFrequency(audio.Peak(data))))
		}
		b.WriteString("\n" + m.progress.ViewAs(m.fraction()) + "\n")
		b.WriteString(m.spectrum(data) + "\n")
	} else {
		field("benefits", strings.Join(d.Benefits, ", "))
	}
	if m.status != "" {
		b.WriteString("\n" + statusStyle.Render(m.status) + "\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Render(b.String()),
		logStyle.Render(m.logs.String()),
		m.help.View(keys),
	)
}

// fraction is gateway progress when there is any, otherwise elapsed time
// against the preset's recommended duration.
func (m UIModel) fraction() float64 {
	if p := m.ctl.SessionProgress(); p > 0 {
		return float64(p) / engine.MaxProgress
	}
	rec := m.panel.Selected().RecommendedDuration()
	if rec <= 0 {
		return 0
	}
	return min(float64(m.ctl.Elapsed())/float64(rec), 1)
}

var bars = []rune(" ▁▂▃▄▅▆▇█")

// spectrum folds the analyser bins below 2 kHz into a row of bars.
func (m UIModel) spectrum(data []float64) string {
	if len(data) == 0 {
		return ""
	}
	top := len(data)
	if step := m.ctl.BinFrequency(1); step > 0 {
		top = min(int(2000/step), top)
	}
	per := max(top/spectrumBars, 1)
	var peak float64
	sums := make([]float64, 0, spectrumBars)
	for i := 0; i+per <= top && len(sums) < spectrumBars; i += per {
		var v float64
		for _, x := range data[i : i+per] {
			v = max(v, x)
		}
		sums = append(sums, v)
		peak = max(peak, v)
	}
	out := make([]rune, len(sums))
	for i, v := range sums {
		level := 0
		if peak > 0 {
			level = int(v / peak * float64(len(bars)-1))
		}
		out[i] = bars[level]
	}
	return string(out)
}
