package project

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/grovetools/buildhub/errors"
)

// Generator identifies the tool that produces the Xcode project.
type Generator string

const (
	GeneratorNone     Generator = "none"
	GeneratorXcodeGen Generator = "xcodegen"
	GeneratorTuist    Generator = "tuist"
)

// Generator config file names.
const (
	XcodeGenSpec  = "project.yml"
	TuistManifest = "Project.swift"
)

// GeneratorCommands holds the command lines used to regenerate projects.
// The first element is resolved on PATH.
type GeneratorCommands struct {
	XcodeGen []string `yaml:"xcodegen" toml:"xcodegen"`
	Tuist    []string `yaml:"tuist" toml:"tuist"`
}

// DefaultGeneratorCommands returns the stock generator invocations.
func DefaultGeneratorCommands() GeneratorCommands {
	return GeneratorCommands{
		XcodeGen: []string{"xcodegen", "generate", "-c"},
		Tuist:    []string{"tuist", "generate", "--no-open"},
	}
}

// DetectGenerator inspects root for a generator config file.
func DetectGenerator(root string) Generator {
	if fileExists(filepath.Join(root, XcodeGenSpec)) {
		return GeneratorXcodeGen
	}
	if fileExists(filepath.Join(root, TuistManifest)) {
		return GeneratorTuist
	}
	return GeneratorNone
}

// IsGeneratorFile reports whether path names a generator config file.
func IsGeneratorFile(path string) bool {
	name := filepath.Base(path)
	return name == XcodeGenSpec || name == TuistManifest
}

// ConfigFiles returns the files whose edits require regeneration.
func (g Generator) ConfigFiles() []string {
	switch g {
	case GeneratorXcodeGen:
		return []string{XcodeGenSpec}
	case GeneratorTuist:
		return []string{TuistManifest}
	default:
		return nil
	}
}

// Command returns the regeneration command for root, or nil when the
// project has no generator.
func (g Generator) Command(root string, cmds GeneratorCommands) (*exec.Cmd, error) {
	var argv []string
	switch g {
	case GeneratorXcodeGen:
		argv = cmds.XcodeGen
	case GeneratorTuist:
		argv = cmds.Tuist
	default:
		return nil, nil
	}
	if len(argv) == 0 {
		return nil, errors.ConfigInvalid("empty command for generator " + string(g))
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, errors.ProcessFailed(argv, err).WithDetail("generator", string(g))
	}
	cmd := exec.Command(bin, argv[1:]...)
	cmd.Dir = root
	return cmd, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
