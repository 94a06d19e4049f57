package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
)

// emit writes v as indented JSON with --json and calls text otherwise.
func emit(cmd *cobra.Command, v interface{}, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// printTable renders rows under headers, or the empty message when there
// are no rows.
func printTable(w io.Writer, empty string, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render(empty))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

// printFields renders key/value pairs of a single entity.
func printFields(w io.Writer, fields [][2]string) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f[0])+1)
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%-*s  %s\n", width, f[0]+":", f[1])
	}
}

func printResult(cmd *cobra.Command, result *domain.TransactionResult) error {
	return emit(cmd, result, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%d rows affected)\n", result.Message, result.AffectedRows)
	})
}

func printDeleted(cmd *cobra.Command, entity domain.EntityType, id string) error {
	return emit(cmd, map[string]interface{}{"id": id, "deleted": true}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %s %s\n", strings.ToLower(entity.Title()), id)
	})
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return config.FormatDate(*t)
}

func fmtDateTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func fmtMinutes(m *int) string {
	if m == nil {
		return "-"
	}
	return strconv.Itoa(*m) + "m"
}

func fmtProgress(p int) string {
	return strconv.Itoa(p) + "%"
}

// parseDate reads a --date flag. Date-only values follow config.ParseDate:
// local midnight, or 23:59 local time when endOfDay is set. RFC 3339
// timestamps are taken as is.
func parseDate(flag, value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := config.ParseDate(value, endOfDay)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid --%s %q: expected YYYY-MM-DD or RFC 3339", flag, value)).
			WithDetail("field", flag)
	}
	return t, nil
}

// optionalString returns a pointer to the flag value when the flag was set.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func optionalInt(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// confirm asks before a destructive action. Without a terminal the action
// needs --yes.
func confirm(message string, yes bool) error {
	if yes {
		return nil
	}
	if !isTerminal(os.Stdin) {
		return domain.NewBadRequestError("confirmation required: re-run with --yes")
	}
	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message}, &ok); err != nil {
		return err
	}
	if !ok {
		return domain.NewBadRequestError("aborted")
	}
	return nil
}

// renderMarkdown formats note content for a terminal. Content is printed
// unchanged when stdout is not a terminal.
func renderMarkdown(content string) string {
	if !isTerminal(os.Stdout) || strings.TrimSpace(content) == "" {
		return content
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = min(w, 120)
	}
	style := styles.LightStyle
	if lipgloss.HasDarkBackground() {
		style = styles.DarkStyle
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
