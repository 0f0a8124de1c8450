package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/kiln/internal/stream"
)

// ErrSwitcherQuit is returned by Switcher.Run when the user quit.
var ErrSwitcherQuit = errors.New("switcher closed by user")

// foregroundedMsg reports the result of switching controllers.
type foregroundedMsg struct {
	index int
	err   error
}

// backgroundedMsg reports that the foreground controller was detached.
type backgroundedMsg struct{}

// outputLineMsg carries a line of foreground output to print above the menu.
type outputLineMsg string

// switcherModel is the bubbletea model listing indefinite steps.
type switcherModel struct {
	group    *stream.Group
	names    []string
	current  int
	err      error
	quitting bool
}

func newSwitcherModel(group *stream.Group) switcherModel {
	var names []string
	for _, c := range group.Controllers() {
		names = append(names, c.Name())
	}
	return switcherModel{group: group, names: names, current: -1}
}

// Init implements tea.Model.
func (m switcherModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model. Switching runs in a command because the
// history replay goes through Program.Println, which must not be called
// from the event loop.
func (m switcherModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			group := m.group
			return m, func() tea.Msg {
				group.Background()
				return backgroundedMsg{}
			}

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(key[0] - '1')
			if idx >= len(m.names) || idx == m.current {
				return m, nil
			}
			group := m.group
			return m, func() tea.Msg {
				_, err := group.Foreground(idx)
				return foregroundedMsg{index: idx, err: err}
			}
		}

	case foregroundedMsg:
		m.current = msg.index
		m.err = msg.err

	case backgroundedMsg:
		m.current = -1
		m.err = nil

	case outputLineMsg:
		return m, tea.Println(string(msg))
	}
	return m, nil
}

// View implements tea.Model.
func (m switcherModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(MenuTitle.Render("Indefinite steps"))
	b.WriteString("\n")
	for i, name := range m.names {
		num := MenuNumber.Render(fmt.Sprintf("%d", i+1))
		if i == m.current {
			b.WriteString(MenuSelected.Render(IconArrow + " " + num + " " + name + " (showing output)"))
		} else {
			b.WriteString(MenuItem.Render(num + " " + name))
		}
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(Error.Render("output unavailable: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(Hint.Render("1-9 show output · esc hide · q quit"))
	b.WriteString("\n")
	return b.String()
}

// Switcher is an interactive menu over indefinite steps. Pressing a number
// brings that step's output to the foreground, esc sends it back and q
// quits.
type Switcher struct {
	group   *stream.Group
	lines   *stream.LineWriter
	program *tea.Program
	out     io.Writer

	mu     sync.Mutex
	exited bool
}

// NewSwitcher creates a switcher over controllers. Foreground output is
// printed above the menu so the menu is never overwritten.
func NewSwitcher(controllers []*stream.Controller, out io.Writer, opts ...tea.ProgramOption) *Switcher {
	s := &Switcher{out: out}
	s.lines = stream.NewLineWriter(s.emit)
	s.group = stream.NewGroup(s.lines)
	for _, c := range controllers {
		s.group.Add(c)
	}

	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	s.program = tea.NewProgram(newSwitcherModel(s.group), opts...)
	return s
}

// emit prints a line of foreground output. While the program runs the line
// goes through its event loop; Send gives up once the program has exited,
// so a writer never blocks on a closed menu. Afterwards lines are written
// to out directly.
func (s *Switcher) emit(line string) {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if exited {
		_, _ = io.WriteString(s.out, line+"\n")
		return
	}
	s.program.Send(outputLineMsg(line))
}

// Group returns the controller group driven by the switcher.
func (s *Switcher) Group() *stream.Group {
	return s.group
}

// Run shows the menu until the user quits or ctx is done. It returns
// ErrSwitcherQuit when the user quit.
func (s *Switcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.program.Quit)
	defer stop()

	final, err := s.program.Run()
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
	s.group.Background()
	s.lines.Flush()
	if err != nil {
		return fmt.Errorf("indefinite step switcher: %w", err)
	}
	if m, ok := final.(switcherModel); ok && m.quitting {
		return ErrSwitcherQuit
	}
	return nil
}
