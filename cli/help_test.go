package cli

import (
	"bytes"
	"testing"

	"github.com/grovetools/buildhub/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestSplitExamples(t *testing.T) {
	desc, examples := splitExamples("Builds a target.\n\nExamples:\n  buildhub build App")
	assert.Equal(t, "Builds a target.", desc)
	assert.Equal(t, "buildhub build App", examples)

	desc, examples = splitExamples("No examples here.")
	assert.Equal(t, "No examples here.", desc)
	assert.Empty(t, examples)
}

func TestInlineChoices(t *testing.T) {
	label, choices := inlineChoices("Operation: once, watch, or stop")
	assert.Equal(t, "Operation:", label)
	assert.Equal(t, []string{"once", "watch", "stop"}, choices)

	label, choices = inlineChoices("Output format (toml or yaml)")
	assert.Equal(t, "Output format (toml or yaml)", label)
	assert.Nil(t, choices)

	label, choices = inlineChoices("Format: toml, yaml")
	assert.Equal(t, "Format: toml, yaml", label)
	assert.Nil(t, choices)
}

func TestStyledHelpRendersSections(t *testing.T) {
	root := NewStandardCommand("buildhub", "Build daemon")
	build := &cobra.Command{
		Use:   "build <target>",
		Short: "Build a target",
		Long:  "Build a target of the open project.\n\nExamples:\n  # once\n  buildhub build App --watch",
		Run:   func(*cobra.Command, []string) {},
	}
	build.Flags().String("configuration", "Debug", "Build configuration")
	build.Flags().String("op", "", "Operation: once, watch, or stop")
	root.AddCommand(build)

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"build", "--help"})
	assert.NoError(t, root.Execute())

	out := buf.String()
	assert.Contains(t, out, "BUILDHUB BUILD")
	assert.Contains(t, out, "Build a target of the open project.")
	assert.Contains(t, out, "FLAGS")
	assert.Contains(t, out, "--configuration")
	assert.Contains(t, out, "(default: Debug)")
	assert.Contains(t, out, "- watch")
	assert.Contains(t, out, "EXAMPLES")
	assert.Contains(t, out, "--watch")
	assert.Contains(t, out, "Global flags:")

	buf.Reset()
	root.SetArgs([]string{"--help"})
	assert.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "COMMANDS")
	assert.Contains(t, buf.String(), "Run 'buildhub <command> --help'")
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &ErrorHandler{Out: &buf}

	err := errors.ProjectNotFound("/src/app")
	assert.Equal(t, err, h.Handle(err))
	assert.Contains(t, buf.String(), "not registered")
	assert.Contains(t, buf.String(), "buildhub open")

	buf.Reset()
	h.Handle(errors.New(errors.ErrCodeState, "daemon down").WithDetail("socket", "/tmp/d.sock"))
	assert.Contains(t, buf.String(), "buildhub daemon start")

	buf.Reset()
	h.Verbose = true
	h.Handle(errors.ProcessFailed([]string{"xcodebuild", "build"}, assert.AnError))
	assert.Contains(t, buf.String(), "xcodebuild build")
	assert.Contains(t, buf.String(), "PROCESS_ERROR")

	assert.NoError(t, h.Handle(nil))
}
