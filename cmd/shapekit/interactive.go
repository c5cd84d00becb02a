package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/shapekit/partial"
	"github.com/wippyai/shapekit/script"
	"github.com/wippyai/shapekit/shape"
	"github.com/wippyai/shapekit/witshape"
)

const historySize = 12

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	doc      *script.Document
	gen      *witshape.Generator
	shape    *shape.Shape
	builder  *partial.Partial
	filename string
	result   string
	history  []historyEntry
	opts     partial.Options
	input    textinput.Model
	recall   int
	state    modelState
}

type historyEntry struct {
	err  error
	text string
}

type modelState int

const (
	stateLoading modelState = iota
	stateEditing
	stateShowResult
)

func newInteractiveModel(doc *script.Document, g *witshape.Generator, opts partial.Options, filename string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "set <path> = <yaml>"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{
		doc:      doc,
		gen:      g,
		opts:     opts,
		filename: filename,
		input:    ti,
		state:    stateLoading,
	}
}

type loadedMsg struct {
	err     error
	shape   *shape.Shape
	builder *partial.Partial
}

type finalizedMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

func (m *interactiveModel) load() tea.Msg {
	s := m.shape
	if s == nil {
		var err error
		if s, err = m.doc.Shape(m.gen); err != nil {
			return loadedMsg{err: err}
		}
	}
	p, err := partial.AllocWithOptions(s, m.opts)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{shape: s, builder: p}
}

func (m *interactiveModel) finalize() tea.Msg {
	v, err := m.builder.FinalizeValue()
	if err != nil {
		return finalizedMsg{err: err}
	}
	data, err := yaml.Marshal(v.Interface())
	if err != nil {
		return finalizedMsg{err: err}
	}
	return finalizedMsg{result: string(data)}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+d":
			if m.state == stateEditing {
				return m, m.finalize
			}

		case "up":
			if m.state == stateEditing && m.recall < len(m.history) {
				m.recall++
				m.input.SetValue(m.history[len(m.history)-m.recall].text)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.state == stateEditing && m.recall > 0 {
				m.recall--
				if m.recall == 0 {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[len(m.history)-m.recall].text)
				}
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateEditing:
				m.exec(m.input.Value())
				m.input.SetValue("")
				m.recall = 0
				return m, nil
			case stateShowResult:
				m.state = stateLoading
				m.result = ""
				m.err = nil
				m.history = nil
				return m, m.load
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.shape = msg.shape
		m.builder = msg.builder
		m.state = stateEditing

	case finalizedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateEditing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// exec runs every statement on one input line; a parse error rejects the
// whole line.
func (m *interactiveModel) exec(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	stmts, err := script.Parse(line)
	if err != nil {
		m.history = append(m.history, historyEntry{text: line, err: err})
		return
	}
	for _, st := range stmts {
		st.Line = len(m.history) + 1
		m.history = append(m.history, historyEntry{text: st.Text, err: script.Exec(m.builder, st)})
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateLoading {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
	}
	if m.state == stateLoading {
		return "Compiling type..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("shapekit"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(" ")
	b.WriteString(typeStyle.Render(m.shape.String()))
	b.WriteString("\n\n")

	switch m.state {
	case stateEditing:
		start := max(0, len(m.history)-historySize)
		for i, h := range m.history[start:] {
			fmt.Fprintf(&b, "%3d  %s", start+i+1, h.text)
			if h.err != nil {
				b.WriteString("\n     ")
				b.WriteString(errorStyle.Render(h.err.Error()))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.status())
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • ↑/↓ history • ctrl+d finalize • esc quit"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter start over • esc quit"))
	}
	return b.String()
}

// status shows where the cursor is, or why the builder stopped.
func (m *interactiveModel) status() string {
	if cause := m.builder.Poisoned(); cause != nil {
		return errorStyle.Render("poisoned; ctrl+d to see the error, enter afterwards to start over")
	}
	path := "$"
	if labels := m.builder.Path(); len(labels) > 0 {
		path = "$." + strings.Join(labels, ".")
	}
	return fmt.Sprintf("%s %s  %s  frames %d",
		pathStyle.Render(path),
		typeStyle.Render(m.builder.Current().String()),
		m.builder.Mode(),
		m.builder.LiveFrames())
}

func runInteractive(doc *script.Document, g *witshape.Generator, opts partial.Options, filename string) error {
	p := tea.NewProgram(newInteractiveModel(doc, g, opts, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
