package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/handwrite/pkg/fonts"
)

// fontsCommand creates the fonts command.
func (c *CLI) fontsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fonts",
		Short: "Inspect the font catalog",
	}

	cmd.AddCommand(c.fontsListCommand())
	cmd.AddCommand(c.fontsPickCommand())

	return cmd
}

// fontsListCommand creates the "fonts list" subcommand.
func (c *CLI) fontsListCommand() *cobra.Command {
	var namesOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available fonts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			list, err := fonts.NewCatalog(cfg.Fonts.Dir).List()
			if err != nil {
				return err
			}
			if namesOnly {
				for _, f := range list {
					fmt.Println(f.Name)
				}
				return nil
			}
			fmt.Println(fontTable(list))
			printDetail("Directory: %s", cfg.Fonts.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&namesOnly, "names", false, "print names only, one per line")
	return cmd
}

// fontsPickCommand creates the "fonts pick" subcommand.
func (c *CLI) fontsPickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Choose a font interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			list, err := fonts.NewCatalog(cfg.Fonts.Dir).List()
			if err != nil {
				return err
			}

			final, err := tea.NewProgram(NewFontListModel(list), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}
			m, ok := final.(FontListModel)
			if !ok || m.Selected == nil {
				printInfo("No font selected")
				return nil
			}

			printSuccess("Selected %s", StyleHighlight.Render(m.Selected.Name))
			printNextStep("Render with it", fmt.Sprintf("handwrite render --font %q FILE", m.Selected.Name))
			return nil
		},
	}
}

func fontSource(f fonts.Font) string {
	if f.Builtin() {
		return "built-in"
	}
	return f.Path
}

func fontTable(list []fonts.Font) string {
	rows := make([][]string, len(list))
	for i, f := range list {
		rows[i] = []string{f.Name, fontSource(f)}
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Font", "Source").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 1 {
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		}).
		Render()
}

// =============================================================================
// FontListModel - Interactive font selection
// =============================================================================

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// FontListModel is the bubbletea model for interactive font selection.
type FontListModel struct {
	Fonts    []fonts.Font
	Cursor   int
	Offset   int
	Height   int
	Selected *fonts.Font
}

// NewFontListModel creates a new font list model.
func NewFontListModel(list []fonts.Font) FontListModel {
	return FontListModel{Fonts: list, Height: 15}
}

func (m FontListModel) Init() tea.Cmd {
	return nil
}

func (m FontListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Fonts)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Fonts) == 0 {
				return m, tea.Quit
			}
			f := m.Fonts[m.Cursor]
			m.Selected = &f
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(5, msg.Height-6)
	}
	return m, nil
}

func (m FontListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Font"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Fonts))
	for i := m.Offset; i < end; i++ {
		f := m.Fonts[i]
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render("▸ " + f.Name))
		} else {
			b.WriteString(listNormalStyle.Render("  " + f.Name))
		}
		b.WriteString(" " + listDimStyle.Render(fontSource(f)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", min(m.Cursor+1, len(m.Fonts)), len(m.Fonts))))
	return b.String()
}
