package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/buildhub/tui/theme"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	helpMaxWidth = 72
	helpMinWidth = 40
)

// helpWidth is the terminal width clamped to a readable range.
func helpWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil:
		return helpMaxWidth
	case width < helpMinWidth:
		return helpMinWidth
	case width > helpMaxWidth:
		return helpMaxWidth
	}
	return width
}

// SetStyledHelp installs the themed help renderer on cmd. Subcommands
// inherit it.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		newHelpRenderer(c.OutOrStdout(), helpWidth()).render(c)
	})
}

// splitExamples separates an "Examples:" block from a long description.
func splitExamples(long string) (description, examples string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if idx := strings.Index(long, marker); idx != -1 {
			return strings.TrimSpace(long[:idx]), strings.TrimSpace(long[idx+len(marker):])
		}
	}
	return strings.TrimSpace(long), ""
}

// inlineChoices splits usage like "Format: toml, yaml, or json" into the
// label and its choices. Fewer than three choices are left inline.
func inlineChoices(usage string) (string, []string) {
	label, list, ok := strings.Cut(usage, ": ")
	if !ok {
		return usage, nil
	}
	parts := strings.Split(list, ", ")
	if len(parts) < 3 {
		return usage, nil
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.TrimPrefix(p, "or "))
	}
	return label + ":", parts
}

type helpRenderer struct {
	w     io.Writer
	t     *theme.Theme
	width int

	section lipgloss.Style
	name    lipgloss.Style
	flag    lipgloss.Style
}

func newHelpRenderer(w io.Writer, width int) *helpRenderer {
	t := theme.DefaultTheme
	return &helpRenderer{
		w:       w,
		t:       t,
		width:   width,
		section: lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Orange),
		name:    lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Blue),
		flag:    lipgloss.NewStyle().Foreground(t.Colors.Violet),
	}
}

func (h *helpRenderer) render(cmd *cobra.Command) {
	description, examples := splitExamples(cmd.Long)
	if cmd.Example != "" {
		examples = cmd.Example
	}

	fmt.Fprintln(h.w, h.section.Render(strings.ToUpper(cmd.CommandPath())))
	if cmd.Short != "" {
		h.paragraph(h.t.Italic.Render(cmd.Short))
	}
	if description != "" && description != cmd.Short {
		fmt.Fprintln(h.w)
		h.paragraph(description)
	}

	h.usage(cmd)
	h.commands(cmd)
	h.flags(cmd)
	if examples != "" {
		h.heading("EXAMPLES")
		h.examples(examples, strings.Fields(cmd.CommandPath())[0])
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(h.w)
		fmt.Fprintln(h.w, h.t.Muted.Render(fmt.Sprintf("Run '%s <command> --help' for details.", cmd.CommandPath())))
	}
}

func (h *helpRenderer) heading(title string) {
	fmt.Fprintln(h.w)
	fmt.Fprintln(h.w, h.section.Render(title))
}

// paragraph word-wraps text to the renderer width, indented by two spaces.
func (h *helpRenderer) paragraph(text string) {
	wrapped := lipgloss.NewStyle().Width(h.width - 2).Render(text)
	for _, line := range strings.Split(wrapped, "\n") {
		fmt.Fprintln(h.w, "  "+strings.TrimRight(line, " "))
	}
}

func (h *helpRenderer) usage(cmd *cobra.Command) {
	if !cmd.Runnable() && !cmd.HasSubCommands() {
		return
	}
	h.heading("USAGE")
	if cmd.Runnable() {
		fmt.Fprintln(h.w, "  "+cmd.UseLine())
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(h.w, "  %s <command>\n", cmd.CommandPath())
	}
}

func (h *helpRenderer) commands(cmd *cobra.Command) {
	var subs []*cobra.Command
	width := 0
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			subs = append(subs, sub)
			width = max(width, len(sub.Name()))
		}
	}
	if len(subs) == 0 {
		return
	}
	h.heading("COMMANDS")
	for _, sub := range subs {
		fmt.Fprintf(h.w, "  %s  %s\n", h.name.Render(fmt.Sprintf("%-*s", width, sub.Name())), sub.Short)
	}
}

func flagLabel(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return "    --" + f.Name
}

func (h *helpRenderer) flags(cmd *cobra.Command) {
	var local, inherited []*pflag.Flag
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			local = append(local, f)
		}
	})
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			inherited = append(inherited, f)
		}
	})

	if len(local) > 0 {
		h.heading("FLAGS")
		h.flagTable(local)
	}
	if len(inherited) > 0 && !cmd.HasAvailableSubCommands() {
		names := make([]string, len(inherited))
		for i, f := range inherited {
			names[i] = "--" + f.Name
		}
		fmt.Fprintln(h.w)
		fmt.Fprintln(h.w, h.t.Muted.Render("Global flags: "+strings.Join(names, " ")))
	}
}

func (h *helpRenderer) flagTable(flags []*pflag.Flag) {
	width := 0
	for _, f := range flags {
		width = max(width, len(flagLabel(f)))
	}
	for _, f := range flags {
		usage, choices := inlineChoices(f.Usage)
		switch f.DefValue {
		case "", "false", "[]", "0":
		default:
			usage += h.t.Muted.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
		}
		fmt.Fprintf(h.w, "  %s  %s\n", h.flag.Render(fmt.Sprintf("%-*s", width, flagLabel(f))), usage)
		for _, choice := range choices {
			fmt.Fprintf(h.w, "  %*s    %s\n", width, "", h.t.Muted.Render("- "+choice))
		}
	}
}

// examples renders comment lines muted and highlights the program name and
// flags on command lines.
func (h *helpRenderer) examples(text, program string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			fmt.Fprintln(h.w)
		case strings.HasPrefix(line, "#"):
			fmt.Fprintln(h.w, "  "+h.t.Muted.Render(line))
		default:
			words := strings.Fields(line)
			for i, word := range words {
				switch {
				case i == 0 && word == program:
					words[i] = h.name.Render(word)
				case strings.HasPrefix(word, "-"):
					words[i] = h.flag.Render(word)
				}
			}
			fmt.Fprintln(h.w, "  "+strings.Join(words, " "))
		}
	}
}
