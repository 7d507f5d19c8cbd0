// Package tui is the interactive migration screen.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marshallshelly/procuredb/pkg/migration"
)

// Mode is the screen the model shows.
type Mode int

const (
	ModeList Mode = iota
	ModeConfirm
	ModeExecuting
	ModeComplete
	ModeError
)

// Runner applies and reverts single migrations. *migration.Executor
// satisfies it.
type Runner interface {
	Apply(ctx context.Context, m migration.Migration, dryRun bool) error
	Rollback(ctx context.Context, m migration.Migration, dryRun bool) error
}

// MigrateModel lists migrations and runs a batch ending at the selected one.
// Going up it applies every pending migration up to and including the
// selection; going down it reverts every applied migration from the newest
// back to the selection.
type MigrateModel struct {
	mode         Mode
	action       string
	list         list.Model
	confirmation ConfirmationDialog
	progress     ProgressView
	logs         LogView
	err          error
	width        int
	height       int

	runner     Runner
	migrations map[string]migration.Migration
	status     []migration.MigrationRecord
	batch      []migration.Migration
}

// NewMigrateModel builds the model. status must be ordered oldest first.
func NewMigrateModel(action string, runner Runner, migrations []migration.Migration, status []migration.MigrationRecord) MigrateModel {
	byVersion := make(map[string]migration.Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	items := make([]list.Item, len(status))
	for i, s := range status {
		appliedAt := ""
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		items[i] = MigrationItem{Version: s.Version, Name: s.Name, Status: string(s.Status), AppliedAt: appliedAt}
	}

	l := list.New(items, MigrationItemDelegate{}, 0, 0)
	l.Title = "procuredb migrations (" + action + ")"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return MigrateModel{
		mode:       ModeList,
		action:     action,
		list:       l,
		logs:       NewLogView(10),
		runner:     runner,
		migrations: byVersion,
		status:     status,
	}
}

// Init implements tea.Model.
func (m MigrateModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

type migrationExecutedMsg struct {
	version string
	err     error
}

func (m MigrateModel) execute(mig migration.Migration) tea.Cmd {
	runner, action := m.runner, m.action
	return func() tea.Msg {
		var err error
		if action == "up" {
			err = runner.Apply(context.Background(), mig, false)
		} else {
			err = runner.Rollback(context.Background(), mig, false)
		}
		return migrationExecutedMsg{version: mig.Version, err: err}
	}
}

// batchFor returns the migrations a selection at idx runs, in execution
// order.
func (m MigrateModel) batchFor(idx int) []migration.Migration {
	var out []migration.Migration
	if m.action == "up" {
		for _, s := range m.status[:idx+1] {
			if s.Status != migration.StatusApplied {
				out = append(out, m.migrations[s.Version])
			}
		}
		return out
	}
	for _, s := range m.status[idx:] {
		if s.Status == migration.StatusApplied {
			out = append(out, m.migrations[s.Version])
		}
	}
	slices.Reverse(out)
	return out
}

// Update implements tea.Model.
func (m MigrateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case confirmedMsg:
		if !msg.yes {
			m.mode = ModeList
			return m, nil
		}
		m.mode = ModeExecuting
		m.progress = ProgressView{Total: len(m.batch), Message: progressMessage(m.batch[0])}
		return m, m.execute(m.batch[0])

	case migrationExecutedMsg:
		if msg.err != nil {
			m.mode = ModeError
			m.err = msg.err
			m.logs.AddLog(dangerStyle.Render("Failed: " + msg.version + " - " + msg.err.Error()))
			return m, nil
		}
		m.logs.AddLog(successStyle.Render("✓ Completed: " + msg.version))
		m.progress.Current++
		if m.progress.Current >= m.progress.Total {
			m.mode = ModeComplete
			return m, nil
		}
		next := m.batch[m.progress.Current]
		m.progress.Message = progressMessage(next)
		return m, m.execute(next)

	case tea.KeyMsg:
		switch m.mode {
		case ModeList:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "enter", " ":
				if len(m.status) == 0 {
					return m, nil
				}
				idx := m.list.Index()
				m.batch = m.batchFor(idx)
				if len(m.batch) == 0 {
					return m, nil
				}
				m.confirmation = NewConfirmationDialog(
					fmt.Sprintf("Confirm migrate %s", m.action),
					fmt.Sprintf("Run %d migration(s) %s through:\n%s - %s",
						len(m.batch), m.action, m.status[idx].Version, m.status[idx].Name),
				)
				m.mode = ModeConfirm
				return m, nil
			}

		case ModeConfirm:
			switch msg.String() {
			case "ctrl+c", "q", "esc":
				m.mode = ModeList
				return m, nil
			default:
				return m, m.confirmation.Update(msg)
			}

		case ModeComplete, ModeError:
			switch msg.String() {
			case "ctrl+c", "q", "enter":
				return m, tea.Quit
			}
		}
	}

	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func progressMessage(mig migration.Migration) string {
	return fmt.Sprintf("Executing: %s - %s", mig.Version, mig.Name)
}

// View implements tea.Model.
func (m MigrateModel) View() string {
	center := func(s string) string {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
	}
	switch m.mode {
	case ModeList:
		help := helpStyle.Render(strings.Join([]string{
			FormatKey("↑/↓", "navigate"),
			FormatKey("enter", "run through selection"),
			FormatKey("q", "quit"),
		}, " • "))
		return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), help)
	case ModeConfirm:
		return center(m.confirmation.View())
	case ModeExecuting:
		return center(lipgloss.JoinVertical(lipgloss.Left, m.progress.View(), "\n", m.logs.View()))
	case ModeComplete:
		return center(boxStyle.Render(titleStyle.Render("Migration complete") + "\n\n" +
			successStyle.Render(fmt.Sprintf("Executed %d migration(s)", m.progress.Total)) + "\n\n" +
			helpStyle.Render(FormatKey("enter/q", "exit"))))
	case ModeError:
		return center(boxStyle.Render(titleStyle.Render("Migration failed") + "\n\n" +
			dangerStyle.Render(m.err.Error()) + "\n\n" +
			m.logs.View() + "\n" +
			helpStyle.Render(FormatKey("enter/q", "exit"))))
	}
	return "unknown mode"
}

// Err returns the error that stopped the batch, if any.
func (m MigrateModel) Err() error { return m.err }

// RunMigrateUI runs the interactive screen until the user quits and returns
// the error of a failed batch.
func RunMigrateUI(action string, runner Runner, migrations []migration.Migration, status []migration.MigrationRecord) error {
	final, err := tea.NewProgram(NewMigrateModel(action, runner, migrations, status)).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(MigrateModel); ok {
		return fm.Err()
	}
	return nil
}
