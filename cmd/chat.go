package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/character"
	"github.com/chai-cli/chai-cli/internal/config"
	"github.com/chai-cli/chai-cli/internal/engine"
	"github.com/chai-cli/chai-cli/internal/store"
	"github.com/chai-cli/chai-cli/internal/theme"
)

var (
	sErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	sOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	sPrompt  = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	sFaint   = lipgloss.NewStyle().Faint(true)
	sHint    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sHintSel = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	sBar     = lipgloss.NewStyle().Faint(true)
	sLogo    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	sDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func banner(prefix string) string {
	logo := sLogo.Render(`
   ██████╗██╗  ██╗ █████╗ ██╗
  ██╔════╝██║  ██║██╔══██╗██║
  ██║     ███████║███████║██║
  ██║     ██╔══██║██╔══██║██║
  ╚██████╗██║  ██║██║  ██║██║
   ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝`)

	hints := sDim.Render(fmt.Sprintf("  v%s │ %shelp commands │ %sexit save & quit │ ↑↓ history │ Tab complete",
		character.Version, prefix, prefix))
	return logo + "\n\n" + hints
}

// --- engine output as tea messages ---

type infoMsg string
type okMsg string
type errMsg string
type chatMsg struct{ role, speaker, text string }
type streamStartMsg string
type streamChunkMsg string
type streamEndMsg struct{}
type busyMsg string
type idleMsg struct{}
type lineDoneMsg struct {
	prompt string
	quit   bool
}

// tuiOutput forwards engine output to the UI goroutine.
type tuiOutput struct {
	ch chan tea.Msg
}

func (o *tuiOutput) Info(s string)                   { o.ch <- infoMsg(s) }
func (o *tuiOutput) OK(s string)                     { o.ch <- okMsg(s) }
func (o *tuiOutput) Error(s string)                  { o.ch <- errMsg(s) }
func (o *tuiOutput) Chat(role, speaker, text string) { o.ch <- chatMsg{role, speaker, text} }
func (o *tuiOutput) StreamStart(speaker string)      { o.ch <- streamStartMsg(speaker) }
func (o *tuiOutput) StreamChunk(s string)            { o.ch <- streamChunkMsg(s) }
func (o *tuiOutput) StreamEnd()                      { o.ch <- streamEndMsg{} }

func (o *tuiOutput) Busy(label string) func() {
	o.ch <- busyMsg(label)
	return func() { o.ch <- idleMsg{} }
}

// --- input history persistence ---

func historyPath() string {
	return filepath.Join(config.ChaiDir(), "history")
}

func loadHistory() []string {
	f, err := os.Open(historyPath())
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	// keep last 500
	if len(lines) > 500 {
		lines = lines[len(lines)-500:]
	}
	return lines
}

func saveHistory(hist []string) {
	if len(hist) > 500 {
		hist = hist[len(hist)-500:]
	}
	f, err := os.Create(historyPath())
	if err != nil {
		return
	}
	defer f.Close()
	for _, line := range hist {
		fmt.Fprintln(f, line)
	}
}

// --- completions ---

func (m *model) completions() []string {
	prefix := m.eng.Prefix
	val := m.input.Value()
	if !strings.HasPrefix(val, prefix) {
		return nil
	}
	parts := strings.Fields(val)
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 && !strings.HasSuffix(val, " ") {
		var out []string
		for _, n := range m.eng.CommandNames() {
			if c := prefix + n; strings.HasPrefix(c, parts[0]) && c != parts[0] {
				out = append(out, c)
			}
		}
		return out
	}

	cmd := strings.TrimPrefix(parts[0], prefix)
	argIdx, arg := len(parts)-1, parts[len(parts)-1]
	if strings.HasSuffix(val, " ") {
		argIdx, arg = len(parts), ""
	}
	var cands []string
	switch {
	case cmd == "character" && argIdx == 1:
		cands = append(cands, character.DefaultName)
		if chars, err := m.eng.Files.ListCharacters(); err == nil {
			for _, c := range chars {
				cands = append(cands, c.Name)
			}
		}
	case cmd == "characterlist" && argIdx == 1:
		cands = []string{"remake"}
	case cmd == "setcolor" && argIdx == 1:
		cands = theme.Roles
	case cmd == "setcolor" && argIdx == 2:
		cands = theme.ColorNames()
	}
	var out []string
	for _, c := range cands {
		if strings.HasPrefix(c, arg) && c != arg {
			out = append(out, c)
		}
	}
	return out
}

func (m *model) applyCompletion() {
	comps := m.completions()
	if len(comps) == 0 {
		return
	}
	sel := comps[m.compIdx%len(comps)]
	val := m.input.Value()
	parts := strings.Fields(val)
	if len(parts) == 1 && !strings.HasSuffix(val, " ") {
		m.input.SetValue(sel + " ")
	} else {
		if !strings.HasSuffix(val, " ") {
			parts = parts[:len(parts)-1]
		}
		m.input.SetValue(strings.Join(append(parts, sel), " "))
	}
	m.input.CursorEnd()
	m.compIdx = 0
}

// --- model ---

type model struct {
	eng      *engine.Engine
	out      *tuiOutput
	theme    *theme.Theme
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	width    int
	waiting  bool
	busy     string
	prompt   string
	cancel   context.CancelFunc
	compIdx  int
	// input history
	inputHist []string
	histIdx   int
	histBuf   string
	// streaming
	streaming string
	speaker   string
}

func initialModel(eng *engine.Engine, out *tuiOutput, th *theme.Theme) model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	ti.Cursor.TextStyle = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Line

	r, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))

	return model{
		eng: eng, out: out, theme: th,
		input: ti, spinner: sp, renderer: r,
		prompt:  eng.Prompt(),
		histIdx: -1, inputHist: loadHistory(),
	}
}

// printAbove returns a tea.Cmd that prints a line above the managed View area.
func printAbove(s string) tea.Cmd {
	return tea.Println(s)
}

func (m *model) renderChat(role, speaker, text string) string {
	st := m.theme.Style(role)
	head := st.Bold(true).Render(speaker + ":")
	if role == theme.RoleAssistant && m.renderer != nil {
		if out, err := m.renderer.Render(text); err == nil {
			return head + "\n" + strings.Trim(out, "\n")
		}
	}
	return head + " " + st.Render(text)
}

func (m *model) statusBar() string {
	if comps := m.completions(); len(comps) > 0 {
		var hints []string
		for i, c := range comps {
			if i == m.compIdx%len(comps) {
				hints = append(hints, sHintSel.Render(c))
			} else {
				hints = append(hints, sHint.Render(c))
			}
		}
		return sHint.Render("Tab: ") + strings.Join(hints, sHint.Render("  "))
	}
	return sBar.Render(fmt.Sprintf("convo: %s │ sys: %s", m.eng.ConvoModel, m.eng.SysModel))
}

func setIBeamCursor() tea.Msg {
	// \033[6 q = steady I-beam terminal cursor
	fmt.Print("\033[6 q")
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.input.Cursor.SetMode(cursor.CursorStatic),
		m.spinner.Tick,
		setIBeamCursor,
		tea.Println(banner(m.eng.Prefix)),
		waitForStream(m.out.ch),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.waiting && m.cancel != nil {
				m.cancel()
				return m, nil
			}
			saveHistory(m.inputHist)
			return m, tea.Quit
		}
		if m.waiting {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyUp:
			if len(m.inputHist) > 0 {
				if m.histIdx == -1 {
					m.histBuf = m.input.Value()
					m.histIdx = len(m.inputHist) - 1
				} else if m.histIdx > 0 {
					m.histIdx--
				}
				m.input.SetValue(m.inputHist[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.histIdx != -1 {
				if m.histIdx < len(m.inputHist)-1 {
					m.histIdx++
					m.input.SetValue(m.inputHist[m.histIdx])
				} else {
					m.histIdx = -1
					m.input.SetValue(m.histBuf)
				}
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyTab:
			comps := m.completions()
			if len(comps) > 0 {
				m.compIdx = (m.compIdx + 1) % len(comps)
				m.applyCompletion()
			}
			return m, nil
		case tea.KeyShiftTab:
			comps := m.completions()
			if len(comps) > 0 {
				m.compIdx = (m.compIdx - 1 + len(comps)) % len(comps)
				m.applyCompletion()
			}
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.compIdx = 0
			m.histIdx = -1
			m.histBuf = ""
			if input == "" {
				return m, nil
			}
			m.inputHist = append(m.inputHist, input)
			echo := sPrompt.Render(m.prompt) + m.theme.Style(theme.RoleUser).Render(input)
			if strings.HasPrefix(input, m.eng.Prefix) {
				echo = sPrompt.Render(m.prompt) + m.theme.Style(theme.RoleCommand).Render(input)
			}
			ctx, cancel := context.WithCancel(context.Background())
			m.waiting = true
			m.cancel = cancel
			return m, tea.Batch(printAbove(echo), runLine(ctx, cancel, m.eng, m.out.ch, input))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case infoMsg:
		return m, tea.Batch(printAbove(m.theme.Style(theme.RoleSystem).Render(string(msg))), waitForStream(m.out.ch))

	case okMsg:
		return m, tea.Batch(printAbove(sOK.Render("✔ "+string(msg))), waitForStream(m.out.ch))

	case errMsg:
		return m, tea.Batch(printAbove(sErr.Render("✘ "+string(msg))), waitForStream(m.out.ch))

	case chatMsg:
		return m, tea.Batch(printAbove(m.renderChat(msg.role, msg.speaker, msg.text)), waitForStream(m.out.ch))

	case busyMsg:
		m.busy = string(msg)
		return m, waitForStream(m.out.ch)

	case idleMsg:
		m.busy = ""
		return m, waitForStream(m.out.ch)

	case streamStartMsg:
		m.speaker = string(msg)
		m.streaming = ""
		return m, waitForStream(m.out.ch)

	case streamChunkMsg:
		m.streaming += string(msg)
		return m, waitForStream(m.out.ch)

	case streamEndMsg:
		text := m.streaming
		m.streaming = ""
		if text == "" {
			return m, waitForStream(m.out.ch)
		}
		return m, tea.Batch(printAbove(m.renderChat(theme.RoleAssistant, m.speaker, text)), waitForStream(m.out.ch))

	case lineDoneMsg:
		m.waiting = false
		m.busy = ""
		m.cancel = nil
		m.prompt = msg.prompt
		if msg.quit {
			saveHistory(m.inputHist)
			return m, tea.Quit
		}
		return m, nil
	}

	prev := m.input.Value()
	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.input.Value() != prev {
		m.compIdx = 0
	}

	return m, tea.Batch(cmds...)
}

// wrapInput renders the textinput value with soft-wrap and a cursor.
func (m *model) wrapInput() string {
	prompt := sPrompt.Render(m.prompt)
	promptW := runewidth.StringWidth(m.prompt)
	contentW := m.width - promptW
	if contentW < 1 {
		contentW = 1
	}

	val := m.input.Value()
	pos := m.input.Position()
	runes := []rune(val)

	// Insert a cursor marker
	const cur = "\x00"
	var buf strings.Builder
	for i, r := range runes {
		if i == pos {
			buf.WriteString(cur)
		}
		buf.WriteRune(r)
	}
	if pos >= len(runes) {
		buf.WriteString(cur)
	}
	text := buf.String()

	// Split into visual lines by display width
	textRunes := []rune(text)
	var lines []string
	for len(textRunes) > 0 {
		w := 0
		end := 0
		for end < len(textRunes) {
			r := textRunes[end]
			rw := 0
			if r != '\x00' {
				rw = runewidth.RuneWidth(r)
			}
			if w+rw > contentW && w > 0 {
				break
			}
			w += rw
			end++
		}
		if end == 0 {
			end = 1
		}
		lines = append(lines, string(textRunes[:end]))
		textRunes = textRunes[end:]
	}
	if len(lines) == 0 {
		lines = []string{cur}
	}

	curStyle := lipgloss.NewStyle().Reverse(true)
	pad := strings.Repeat(" ", promptW)
	var out strings.Builder
	for i, line := range lines {
		pfx := pad
		if i == 0 {
			pfx = prompt
		}
		if strings.Contains(line, cur) {
			parts := strings.SplitN(line, cur, 2)
			ch := " "
			rest := parts[1]
			if len(rest) > 0 {
				r := []rune(rest)
				ch = string(r[0])
				rest = string(r[1:])
			}
			line = parts[0] + curStyle.Render(ch) + rest
		}
		out.WriteString(pfx + line)
		if i < len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}

func (m model) View() string {
	if m.waiting {
		label := "thinking..."
		if m.busy != "" {
			label = m.busy + "..."
		}
		if m.streaming != "" {
			return m.theme.Style(theme.RoleAssistant).Render(m.speaker+": ") + m.streaming + "\n" + m.spinner.View() + sFaint.Render(" streaming...")
		}
		return m.spinner.View() + sFaint.Render(" "+label)
	}
	return m.wrapInput() + "\n" + m.statusBar()
}

// --- run one line on the engine ---

func waitForStream(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// runLine hands line to the engine on its own goroutine; output arrives as
// messages until lineDoneMsg. Only one line runs at a time.
func runLine(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, ch chan tea.Msg, line string) tea.Cmd {
	go func() {
		defer cancel()
		err := eng.HandleLine(ctx, line)
		ch <- lineDoneMsg{prompt: eng.Prompt(), quit: errors.Is(err, engine.ErrQuit)}
	}()

	return waitForStream(ch)
}

// --- entry ---

func runChat(plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("run 'chai-cli init' to recreate the config: %w", err)
	}
	log := newLogger(cfg)
	defer log.Sync()

	files, err := openStore(cfg)
	if err != nil {
		return err
	}
	p, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	if !plain && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		plain = true
	}
	in := bufio.NewScanner(os.Stdin)
	username := resolveUsername(cfg, files, in, plain)

	th := theme.Default()
	opts := engine.Options{
		ConvoModel: cfg.ConvoModel,
		SysModel:   cfg.SysModel,
		Prefix:     cfg.CommandPrefix,
		Username:   username,
		Threshold:  cfg.SelfImprove.Threshold,
		MaxRounds:  cfg.SelfImprove.MaxRounds,
		Prober:     buildProber(cfg, p, log),
		Theme:      th,
		Log:        log.Named("engine"),
	}
	log.Info("session start", zap.String("user", username), zap.String("memory_dir", cfg.MemoryDir), zap.Bool("plain", plain))

	if plain {
		out := newPlainOutput(os.Stdout, th, isatty.IsTerminal(os.Stdout.Fd()))
		eng := engine.New(p, files, out, opts)
		return runPlain(eng, in, os.Stdout, out.tty)
	}

	out := &tuiOutput{ch: make(chan tea.Msg, 64)}
	eng := engine.New(p, files, out, opts)
	m := initialModel(eng, out, th)
	m.waiting = true
	go func() {
		eng.Start(context.Background())
		out.ch <- lineDoneMsg{prompt: eng.Prompt()}
	}()

	_, err = tea.NewProgram(m).Run()
	fmt.Print("\033[0 q") // restore default cursor
	return err
}

// resolveUsername prefers the config, then the stored name, then asks.
func resolveUsername(cfg *config.Config, files *store.Store, in *bufio.Scanner, plain bool) string {
	if cfg.Username != "" {
		return cfg.Username
	}
	if name := files.Username(); name != "" {
		return name
	}
	if !plain {
		fmt.Print("Enter your username: ")
	}
	name := "user"
	if in.Scan() {
		if s := strings.TrimSpace(in.Text()); s != "" {
			name = s
		}
	}
	if err := files.SetUsername(name); err != nil {
		fmt.Fprintln(os.Stderr, sErr.Render("✘ could not save username: "+err.Error()))
	}
	return name
}
