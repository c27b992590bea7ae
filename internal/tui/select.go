// Package tui provides the interactive candidate picker.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/filter"
)

const (
	defaultListWidth  = 80
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// SelectionAction represents the user's action in the selection UI.
type SelectionAction int

const (
	// ActionNone indicates no action was taken.
	ActionNone SelectionAction = iota
	// ActionSelected indicates the user picked a candidate.
	ActionSelected
	// ActionCancelled indicates the user left without picking.
	ActionCancelled
)

// SelectionResult holds the result of a TUI selection.
type SelectionResult struct {
	Action    SelectionAction
	Selection *book.Candidate
}

type candidateItem struct {
	book.Candidate
}

func (i candidateItem) Title() string       { return i.Candidate.Title }
func (i candidateItem) FilterValue() string { return i.Candidate.Title }
func (i candidateItem) Description() string { return i.AuthorLine() }

type itemStyles struct {
	normal        lipgloss.Style
	selected      lipgloss.Style
	formatStyle   lipgloss.Style
	titleStyle    lipgloss.Style
	authorStyle   lipgloss.Style
	metadataStyle lipgloss.Style
}

func newItemStyles() itemStyles {
	asciiBorder := lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	container := lipgloss.NewStyle().
		Border(asciiBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Foreground(lipgloss.Color("252"))

	return itemStyles{
		normal: container,
		selected: container.Copy().
			BorderForeground(lipgloss.Color("214")).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("237")),
		formatStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("110")),
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("254")),
		authorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		metadataStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Faint(true),
	}
}

type candidateDelegate struct {
	styles itemStyles
}

func (d candidateDelegate) Height() int                         { return 4 }
func (d candidateDelegate) Spacing() int                        { return 1 }
func (d candidateDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d candidateDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	c, ok := item.(candidateItem)
	if !ok {
		return
	}
	width := m.Width() - 4

	formatLine := d.styles.formatStyle.Render(fmt.Sprintf("[%s]", c.Format))
	titleLine := d.styles.titleStyle.Render(truncate(c.Candidate.Title, width))
	authorLine := d.styles.authorStyle.Render(truncate(orDash(c.AuthorLine()), width))
	metadataLine := d.styles.metadataStyle.Render(formatMetadata(c.Candidate, width))

	content := lipgloss.JoinVertical(lipgloss.Left, formatLine, titleLine, authorLine, metadataLine)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

type model struct {
	list       list.Model
	query      string
	candidates []book.Candidate
	formats    book.FormatSet
	result     SelectionResult
}

func newModel(query string, candidates []book.Candidate) *model {
	l := list.New(nil, candidateDelegate{styles: newItemStyles()}, defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowPagination(false)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	m := &model{
		list:       l,
		query:      query,
		candidates: candidates,
		formats:    book.AllFormats,
		result:     SelectionResult{Action: ActionNone},
	}
	m.refresh()
	return m
}

// refresh re-applies the format toggles to the full candidate list.
func (m *model) refresh() {
	visible := filter.Formats(m.candidates, m.formats)
	m.list.SetItems(lo.Map(visible, func(c book.Candidate, _ int) list.Item {
		return candidateItem{Candidate: c}
	}))
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "enter":
			if selected, ok := m.list.SelectedItem().(candidateItem); ok {
				c := selected.Candidate
				m.result = SelectionResult{Action: ActionSelected, Selection: &c}
				return m, tea.Quit
			}
		case "ctrl+c", "q", "esc":
			m.result = SelectionResult{Action: ActionCancelled}
			return m, tea.Quit
		case "1", "2", "3", "4":
			f := book.SupportedFormats[key[0]-'1']
			m.formats = m.formats.Toggle(f)
			m.refresh()
			return m, nil
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-8, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	header := headerStyle.Render(fmt.Sprintf("%d results for: %s", len(m.list.Items()), m.query))
	chips := lipgloss.JoinHorizontal(lipgloss.Left, lo.Map(book.SupportedFormats, func(f book.Format, i int) string {
		style := chipOffStyle
		if m.formats.Has(f) {
			style = chipOnStyle
		}
		return style.Render(fmt.Sprintf("%d %s", i+1, f))
	})...)
	help := helpStyle.Render("Up/Down navigate | Enter download | 1-4 toggle format | q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, chips, m.list.View(), help)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			MarginBottom(1)

	chipOnStyle = lipgloss.NewStyle().
			Padding(0, 1).
			MarginRight(1).
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Bold(true)

	chipOffStyle = lipgloss.NewStyle().
			Padding(0, 1).
			MarginRight(1).
			Foreground(lipgloss.Color("244")).
			Strikethrough(true)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(lipgloss.Color("244"))
)

// Select shows the candidates and returns the user's pick. An empty list is
// reported as cancelled without starting the UI.
func Select(query string, candidates []book.Candidate) (SelectionResult, error) {
	if len(candidates) == 0 {
		return SelectionResult{Action: ActionCancelled}, nil
	}

	finalModel, err := runProgram(newModel(query, candidates))
	if err != nil {
		return SelectionResult{}, err
	}
	if typed, ok := finalModel.(*model); ok {
		return typed.result, nil
	}
	return SelectionResult{}, fmt.Errorf("unexpected program result")
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	r := []rune(value)
	if width <= 0 || len(r) <= width {
		return value
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatMetadata renders size, origin and provider on one line.
func formatMetadata(c book.Candidate, availableWidth int) string {
	parts := lo.Compact([]string{c.Size, c.Source, c.Provider.String()})
	metadata := strings.Join(parts, " | ")
	if availableWidth > 0 {
		metadata = truncate(metadata, availableWidth)
	}
	return metadata
}

func clamp(defaultValue, available, minimum int) int {
	width := defaultValue
	if available > 0 && available < defaultValue {
		width = available
	}
	if width < minimum {
		width = minimum
	}
	return width
}
