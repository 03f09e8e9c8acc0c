// Package tui provides the interactive review screen for detected patterns.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fascinih/finance-app/internal/cli"
	"github.com/fascinih/finance-app/internal/model"
)

const (
	defaultTableHeight = 12
	// Rows used by the title, status line, and help.
	chromeHeight = 6
)

// ReviewModel lists detected patterns and lets the user pick the ones to
// mark as recurring.
type ReviewModel struct {
	selected  map[int]bool
	keys      KeyMap
	patterns  []model.RecurringPattern
	help      help.Model
	table     table.Model
	confirmed bool
}

// NewReviewModel creates a review screen for patterns.
func NewReviewModel(patterns []model.RecurringPattern) ReviewModel {
	columns := []table.Column{
		{Title: " ", Width: 3},
		{Title: "Description", Width: 28},
		{Title: "Frequency", Width: 14},
		{Title: "Amount", Width: 18},
		{Title: "Conf", Width: 5},
		{Title: "Txns", Width: 4},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(min(defaultTableHeight, max(len(patterns), 1))),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(cli.SubtleColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(cli.PrimaryColor).
		Bold(true)
	t.SetStyles(s)

	m := ReviewModel{
		patterns: patterns,
		selected: make(map[int]bool, len(patterns)),
		table:    t,
		help:     help.New(),
		keys:     DefaultKeyMap(),
	}
	m.refreshRows()
	return m
}

// Init implements tea.Model.
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.table.SetHeight(max(msg.Height-chromeHeight, 3))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.confirmed = false
			return m, tea.Quit
		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			if len(m.patterns) > 0 {
				i := m.table.Cursor()
				m.selected[i] = !m.selected[i]
				m.refreshRows()
			}
			return m, nil
		case key.Matches(msg, m.keys.ToggleAll):
			all := len(m.Selected()) < len(m.patterns)
			for i := range m.patterns {
				m.selected[i] = all
			}
			m.refreshRows()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ReviewModel) View() string {
	var b strings.Builder
	b.WriteString(cli.FormatTitle(cli.RecurringIcon, "Review Recurring Patterns"))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(cli.SubtleStyle.Render(fmt.Sprintf("%d of %d selected", len(m.Selected()), len(m.patterns))))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

// Selected returns the chosen patterns in list order.
func (m ReviewModel) Selected() []model.RecurringPattern {
	var selected []model.RecurringPattern
	for i, p := range m.patterns {
		if m.selected[i] {
			selected = append(selected, p)
		}
	}
	return selected
}

// Confirmed reports whether the user accepted the selection.
func (m ReviewModel) Confirmed() bool {
	return m.confirmed
}

func (m *ReviewModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.patterns))
	for i, p := range m.patterns {
		mark := "[ ]"
		if m.selected[i] {
			mark = "[x]"
		}
		rows = append(rows, table.Row{
			mark,
			p.DescriptionPattern,
			frequencyLabel(p),
			cli.FormatAmountRange(p.AmountRange),
			fmt.Sprintf("%.0f%%", p.Confidence*100),
			strconv.Itoa(len(p.TransactionIDs)),
		})
	}
	m.table.SetRows(rows)
}

func frequencyLabel(p model.RecurringPattern) string {
	if p.FrequencyType == model.FrequencyIrregular {
		return fmt.Sprintf("%s ~%dd", p.FrequencyType, p.FrequencyDays)
	}
	return string(p.FrequencyType)
}

// Review runs the review screen and returns the patterns the user confirmed.
// Cancelling returns no patterns and no error.
func Review(ctx context.Context, patterns []model.RecurringPattern, opts ...tea.ProgramOption) ([]model.RecurringPattern, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewReviewModel(patterns), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run review: %w", err)
	}

	m, ok := final.(ReviewModel)
	if !ok || !m.Confirmed() {
		return nil, nil
	}
	return m.Selected(), nil
}
