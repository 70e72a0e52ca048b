// Package project holds per-project metadata and the build tool
// invocations made on a project's behalf.
package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/grovetools/buildhub/pkg/process"
	"github.com/grovetools/buildhub/util/sanitize"
	"gopkg.in/yaml.v3"
)

// Hub is the subset of a broadcast hub the project reports through.
type Hub interface {
	Consume(ctx context.Context, cmd *exec.Cmd, opts ...process.Option) (<-chan bool, error)
	NotifyInfo(format string, args ...interface{})
	NotifyError(format string, args ...interface{})
	LogInfo(format string, args ...interface{})
	LogError(format string, args ...interface{})
	Event(name, target string, success *bool)
}

// Settings carries the daemon configuration a project needs.
type Settings struct {
	BuildTool     string
	ExtraArgs     []string
	CacheDir      string
	ServerCommand []string
	Generators    GeneratorCommands
	Ignore        []string
}

func (s Settings) withDefaults() Settings {
	if s.BuildTool == "" {
		s.BuildTool = "xcodebuild"
	}
	if s.CacheDir == "" {
		s.CacheDir = filepath.Join(paths.CacheDir(), "builds")
	}
	if len(s.ServerCommand) == 0 {
		s.ServerCommand = []string{"xcode-build-server"}
	}
	defaults := DefaultGeneratorCommands()
	if len(s.Generators.XcodeGen) == 0 {
		s.Generators.XcodeGen = defaults.XcodeGen
	}
	if len(s.Generators.Tuist) == 0 {
		s.Generators.Tuist = defaults.Tuist
	}
	return s
}

// Target is a buildable product declared by the project.
type Target struct {
	Name     string `json:"name" yaml:"-"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Platform string `json:"platform,omitempty" yaml:"platform"`
}

// Project is an open project root.
type Project struct {
	Root      string
	Generator Generator
	settings  Settings

	mu      sync.RWMutex
	name    string
	targets map[string]Target
}

// xcodegenSpec is the part of project.yml the daemon reads.
type xcodegenSpec struct {
	Name    string            `yaml:"name"`
	Targets map[string]Target `yaml:"targets"`
}

// Load reads project metadata from root.
func Load(root string, settings Settings) (*Project, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.IO(err, "stat", root)
	}
	if !info.IsDir() {
		return nil, errors.InvalidInput("project root is not a directory: " + root)
	}

	p := &Project{
		Root:      root,
		Generator: DetectGenerator(root),
		settings:  settings.withDefaults(),
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload refreshes the project name and targets from disk.
func (p *Project) Reload() error {
	name := filepath.Base(p.Root)
	targets := map[string]Target{}

	if xcodeproj := p.xcodeprojPath(); xcodeproj != "" {
		name = strings.TrimSuffix(filepath.Base(xcodeproj), ".xcodeproj")
	}

	if p.Generator == GeneratorXcodeGen {
		spec, err := readXcodeGenSpec(filepath.Join(p.Root, XcodeGenSpec))
		if err != nil {
			return err
		}
		if spec.Name != "" {
			name = spec.Name
		}
		for k, t := range spec.Targets {
			t.Name = k
			targets[k] = t
		}
	}

	p.mu.Lock()
	p.name = name
	p.targets = targets
	p.mu.Unlock()
	return nil
}

// Name returns the project display name.
func (p *Project) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Targets returns declared target names in sorted order.
func (p *Project) Targets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.targets))
	for k := range p.targets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Target looks up a declared target.
func (p *Project) Target(name string) (Target, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.targets[name]
	return t, ok
}

// Ignore returns extra watch ignore patterns configured for the project.
func (p *Project) Ignore() []string {
	return p.settings.Ignore
}

// CacheRoot is the SYMROOT used for builds of this project.
func (p *Project) CacheRoot() string {
	sum := sha256.Sum256([]byte(p.Root))
	name := sanitize.ForFilename(filepath.Base(p.Root))
	return filepath.Join(p.settings.CacheDir, name+"-"+hex.EncodeToString(sum[:])[:12])
}

// Regenerate runs the project generator through hub. It returns a nil
// channel when the project has no generator.
func (p *Project) Regenerate(ctx context.Context, hub Hub) (<-chan bool, error) {
	cmd, err := p.Generator.Command(p.Root, p.settings.Generators)
	if err != nil || cmd == nil {
		return nil, err
	}

	hub.NotifyInfo("Regenerating %s", p.Name())
	done, err := hub.Consume(ctx, cmd)
	if err != nil {
		return nil, err
	}

	result := make(chan bool, 1)
	go func() {
		ok := <-done
		if ok {
			if err := p.Reload(); err != nil {
				hub.LogError("Failed to reload project: %v", err)
				ok = false
			}
		}
		hub.Event(models.EventProjectReloaded, "", &ok)
		result <- ok
	}()
	return result, nil
}

// Refresh regenerates the project and, when that succeeds, rebuilds the
// compile database so new sources get flags. The outcome is the
// regeneration's; compile database failures are reported on hub by
// UpdateCompileDatabase. Like Regenerate, it returns a nil channel when
// the project has no generator.
func (p *Project) Refresh(ctx context.Context, hub Hub) (<-chan bool, error) {
	done, err := p.Regenerate(ctx, hub)
	if err != nil || done == nil {
		return done, err
	}

	result := make(chan bool, 1)
	go func() {
		ok := <-done
		if ok {
			_, _ = p.UpdateCompileDatabase(ctx, hub)
		}
		result <- ok
	}()
	return result, nil
}

func (p *Project) xcodeprojPath() string {
	matches, _ := filepath.Glob(filepath.Join(p.Root, "*.xcodeproj"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

func readXcodeGenSpec(path string) (*xcodegenSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(err, "read", path)
	}
	var spec xcodegenSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse "+XcodeGenSpec).
			WithDetail("path", path)
	}
	return &spec, nil
}
