package tui

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cropsim/internal/config"
	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/experiment"
	"github.com/san-kum/cropsim/internal/modules"
	"github.com/san-kum/cropsim/internal/sim"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var presetInfo = map[string]string{
	"summer":       "clear midsummer days",
	"cloudy":       "random daily cloud cover",
	"late_season":  "senescence and grain fill",
	"thermal_time": "degree hours only",
}

// editable lists the values offered on the config screen, in display order.
// Names missing from a scenario are skipped.
var editable = []string{
	"Leaf", "Stem", "Root", "TTc",
	"tbase", "light_use_efficiency", "specific_leaf_area", "remobilization_fraction",
}

const historyLen = 240

type screen int

const (
	screenMenu screen = iota
	screenConfig
	screenSim
)

type model struct {
	ctx     context.Context
	factory dynamo.Factory

	screen   screen
	cursor   int
	presets  []string
	scenario *config.Scenario

	paramNames  []string
	paramCursor int
	editing     bool
	editBuf     string

	exp      *experiment.Experiment
	sys      *sim.System
	x        dynamo.State
	index    int
	running  bool
	paused   bool
	speed    float64
	selected int
	history  [][]float64
	err      error

	lastFrame time.Time
	fps       float64

	width  int
	height int
}

// NewWatch returns the interactive model. A non-nil scenario skips the
// preset menu.
func NewWatch(ctx context.Context, factory dynamo.Factory, sc *config.Scenario) *model {
	m := &model{
		ctx:     ctx,
		factory: factory,
		screen:  screenMenu,
		presets: config.ListPresets(),
		speed:   1,
		width:   80,
		height:  24,
	}
	if sc != nil {
		m.scenario = sc
		m.start()
		m.screen = screenSim
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.screen == screenSim {
		return tick()
	}
	return nil
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.screen != screenSim {
			return m, nil
		}
		if m.running && !m.paused && m.sys != nil {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1.0 / dt
				}
			}
			m.lastFrame = now
			for range max(int(m.speed), 1) {
				m.step()
			}
		}
		if m.running {
			return m, tick()
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.screen {
	case screenMenu:
		return m.menuKey(msg)
	case screenConfig:
		return m.configKey(msg)
	case screenSim:
		return m.simKey(msg)
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.scenario = config.GetPreset(m.presets[m.cursor])
		m.screen = screenConfig
		m.paramCursor = 0
		m.setParamNames()
	}
	return m, nil
}

func (m model) configKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "enter":
			if v, err := strconv.ParseFloat(m.editBuf, 64); err == nil {
				m.setValue(m.paramNames[m.paramCursor], v)
			}
			m.editing = false
			m.editBuf = ""
		case "esc":
			m.editing = false
			m.editBuf = ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.-e") {
				m.editBuf += s
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.screen = screenMenu
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.paramNames)-1 {
			m.paramCursor++
		}
	case "enter":
		if len(m.paramNames) > 0 {
			m.editing = true
			m.editBuf = ""
		}
	case "left", "h":
		m.nudge(0.9)
	case "right", "l":
		m.nudge(1.1)
	case "s":
		m.start()
		m.screen = screenSim
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) simKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		m.running = false
		m.screen = screenMenu
		m.reset()
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		m.start()
		return m, tea.Batch(tea.ClearScreen, tick())
	case "c":
		m.running = false
		m.screen = screenConfig
		m.setParamNames()
		m.reset()
		return m, tea.ClearScreen
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.sys != nil && m.selected < m.sys.StateDim()-1 {
			m.selected++
		}
	case "+", "=":
		m.speed = math.Min(m.speed*2, 64)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 1)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m *model) setParamNames() {
	m.paramNames = m.paramNames[:0]
	for _, name := range editable {
		_, inState := m.scenario.InitialState[name]
		_, inParams := m.scenario.Parameters[name]
		if inState || inParams {
			m.paramNames = append(m.paramNames, name)
		}
	}
	m.paramCursor = min(m.paramCursor, max(len(m.paramNames)-1, 0))
}

func (m model) value(name string) float64 {
	if v, ok := m.scenario.InitialState[name]; ok {
		return v
	}
	return m.scenario.Parameters[name]
}

func (m *model) setValue(name string, v float64) {
	_ = m.scenario.Set(fmt.Sprintf("%s=%g", name, v))
}

func (m *model) nudge(factor float64) {
	if len(m.paramNames) == 0 {
		return
	}
	name := m.paramNames[m.paramCursor]
	v := m.value(name)
	if v == 0 {
		v = 0.1
	} else {
		v *= factor
	}
	m.setValue(name, v)
}

func (m *model) start() {
	m.reset()
	m.speed = 1
	m.lastFrame = time.Time{}

	exp, err := experiment.New(m.ctx, m.scenario, m.factory)
	if err != nil {
		m.err = err
		return
	}
	m.exp = exp
	m.sys = exp.System()
	m.x = m.sys.InitialState()
	m.history = make([][]float64, m.sys.StateDim())
	m.record()
	m.selected = min(m.selected, m.sys.StateDim()-1)
	m.running = true
	m.paused = false
}

func (m *model) reset() {
	m.exp = nil
	m.sys = nil
	m.x = nil
	m.index = 0
	m.history = nil
	m.err = nil
}

func (m *model) step() {
	if m.index >= m.sys.NumTimes()-1 {
		m.paused = true
		return
	}
	next, err := m.exp.Integrator().Step(m.sys, m.x, float64(m.index), 1)
	if err == nil && !next.IsValid() {
		err = fmt.Errorf("invalid state at index %d", m.index)
	}
	if err != nil {
		m.err = err
		m.paused = true
		return
	}
	m.x = next
	m.index++
	m.record()
}

func (m *model) record() {
	for i, v := range m.x {
		m.history[i] = append(m.history[i], v)
		if len(m.history[i]) > historyLen {
			m.history[i] = m.history[i][1:]
		}
	}
}

// clock returns the day of year and hour at the current index.
func (m model) clock() (doy, hour float64) {
	if err := m.sys.UpdateVaryingIndex(m.index); err != nil {
		return 0, 0
	}
	d, ok := m.sys.Param(sim.ParamDoyDbl)
	if !ok {
		return 0, 0
	}
	doy = math.Floor(d)
	return doy, 24 * (d - doy)
}

func (m model) View() string {
	switch m.screen {
	case screenMenu:
		return m.viewMenu()
	case screenConfig:
		return m.viewConfig()
	}
	return m.viewSim()
}

func (m model) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("           " + cyan.Render("c r o p s i m") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n\n")

	for i, name := range m.presets {
		desc := presetInfo[name]
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-14s", name)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-14s", name)) + dimmer.Render(desc) + "\n")
		}
	}

	b.WriteString("\n" + dim.Render("      ↑↓ select   enter configure   q quit") + "\n")
	return b.String()
}

func (m model) viewConfig() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("      " + cyan.Render(m.scenario.Name) + "  " + dim.Render(presetInfo[m.scenario.Name]) + "\n")
	b.WriteString(dimmer.Render("      "+strings.Repeat("─", 36)) + "\n\n")

	for i, name := range m.paramNames {
		val := fmt.Sprintf("%g", m.value(name))
		if m.editing && i == m.paramCursor {
			val = m.editBuf + "▏"
		}
		if i == m.paramCursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-24s", name)) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-24s", name)) + dim.Render(val) + "\n")
		}
	}

	b.WriteString("\n" + dim.Render("      ↑↓ select  ←→ adjust  enter edit  s start  esc back") + "\n")
	return b.String()
}

func (m model) viewSim() string {
	var b strings.Builder

	if m.sys == nil {
		b.WriteString("\n   " + red.Render("build failed") + "\n\n")
		if m.err != nil {
			for _, line := range strings.Split(m.err.Error(), "\n") {
				b.WriteString("   " + dim.Render(line) + "\n")
			}
		}
		b.WriteString("\n" + dim.Render("   c config  q menu") + "\n")
		return b.String()
	}

	statusIcon, statusText := green.Render("●"), green.Render("running")
	switch {
	case m.err != nil:
		statusIcon, statusText = red.Render("✕"), red.Render("stopped")
	case m.index >= m.sys.NumTimes()-1:
		statusIcon, statusText = cyan.Render("■"), cyan.Render("finished")
	case m.paused:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s\n",
		statusIcon, cyan.Render(m.scenario.Name), statusText, dim.Render(m.scenario.Integrator)))

	last := max(m.sys.NumTimes()-1, 1)
	progress := float64(m.index) / float64(last)
	progressWidth := 36
	filled := int(progress * float64(progressWidth))
	doy, hour := m.clock()
	clock := fmt.Sprintf("day %.0f %05.2fh  %d/%d", doy, hour, m.index, last)
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", progressWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar, dim.Render(clock), dim.Render(fmt.Sprintf("%.0ffps ×%.0f", m.fps, m.speed))))

	names := m.sys.StateNames()
	name := names[m.selected]
	if data := m.history[m.selected]; len(data) > 1 {
		plotWidth := max(m.width-20, 40)
		plotHeight := max(m.height-18, 6)
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(name))
		for _, line := range strings.Split(graph, "\n") {
			b.WriteString("   " + line + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.viewStates(names))

	if st, ok := m.exp.GrowthStats(); ok {
		line := fmt.Sprintf("   growth  evals %d  refinements %d  max steps %d", st.Evaluations, st.Refinements, st.MaxSteps)
		if st.Exhausted > 0 {
			b.WriteString(dim.Render(line) + "  " + red.Render(fmt.Sprintf("exhausted %d", st.Exhausted)) + "\n")
		} else {
			b.WriteString(dim.Render(line) + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  ↑↓ variable  ±speed  r restart  c config  q menu") + "\n")
	return b.String()
}

// viewStates lists every state variable with a sparkline of its recent
// history, marking the plotted one.
func (m model) viewStates(names []string) string {
	var b strings.Builder
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	rows := max(m.height-18, 4)
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	for i := start; i < len(names) && i < start+rows; i++ {
		label := fmt.Sprintf("%-*s", width, names[i])
		val := fmt.Sprintf("%10.4f", m.x[i])
		spark := sparkline(m.history[i], 24)
		if i == m.selected {
			b.WriteString("   " + cyan.Render("▸ "+label) + " " + white.Render(val) + " " + cyan.Render(spark) + "\n")
		} else {
			b.WriteString("     " + dim.Render(label) + " " + dim.Render(val) + " " + dimmer.Render(spark) + "\n")
		}
	}
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	minVal, maxVal := slices.Min(data), slices.Max(data)
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	var sb strings.Builder
	for _, v := range data {
		idx := int((v - minVal) / rang * 7)
		idx = min(max(idx, 0), 7)
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// RunWatch opens the interactive view. With a nil scenario it starts at the
// preset menu.
func RunWatch(ctx context.Context, sc *config.Scenario) error {
	p := tea.NewProgram(NewWatch(ctx, modules.Default(), sc), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
