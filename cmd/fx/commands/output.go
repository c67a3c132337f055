package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints v as JSON with --json, otherwise the styled message.
func printResult(w io.Writer, v interface{}, message string) error {
	if jsonOutput {
		return printJSON(w, v)
	}
	_, err := fmt.Fprintln(w, successStyle.Render("✓")+" "+message)
	return err
}

// printSection prints a title and the sorted key/value pairs of m.
func printSection(w io.Writer, title string, m map[string]interface{}) {
	fmt.Fprintln(w, titleStyle.Render(title))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %s\n", keyStyle.Render(k+":"), formatValue(m[k]))
	}
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return mutedStyle.Render("<none>")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// printTable prints rows under a bold header with padded columns.
func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(w, titleStyle.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}

// PrintError prints err with its hint. Classified errors print as JSON
// when --json is set.
func PrintError(w io.Writer, err error) {
	var fe *engine.FxError
	if !errors.As(err, &fe) {
		fmt.Fprintln(w, errorStyle.Render("✗")+" "+err.Error())
		return
	}
	if jsonOutput {
		_ = printJSON(w, fe)
		return
	}
	kind := "error"
	if fe.Kind == engine.ErrorKindUser {
		kind = "user error"
	}
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗ "+kind), fe.Error())
	if fe.Hint != "" {
		fmt.Fprintln(w, "  "+hintStyle.Render("hint: "+fe.Hint))
	}
	if fe.HelpLink != "" {
		fmt.Fprintln(w, "  "+mutedStyle.Render(fe.HelpLink))
	}
}
