package project

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
)

// BuildArgs returns the build tool arguments for s. extra is appended
// before the SYMROOT override.
func (p *Project) BuildArgs(s models.BuildSettings, extra ...string) []string {
	args := []string{"build"}
	args = append(args, s.Arguments()...)
	args = append(args, p.settings.ExtraArgs...)
	args = append(args, extra...)
	return append(args, "SYMROOT="+p.CacheRoot())
}

// Build starts a build of s streaming through hub. The returned arguments
// are what the build tool was invoked with.
func (p *Project) Build(ctx context.Context, hub Hub, s models.BuildSettings, extra ...string) (<-chan bool, []string, error) {
	args := p.BuildArgs(s, extra...)
	done, err := hub.Consume(ctx, p.command(args...))
	if err != nil {
		return nil, args, err
	}
	return done, args, nil
}

// ProductDir returns the directory the build tool places products in.
func (p *Project) ProductDir(s models.BuildSettings, device string) string {
	configuration := s.Configuration
	if configuration == "" {
		configuration = "Debug"
	}
	if device != "" {
		configuration += "-iphonesimulator"
	}
	return filepath.Join(p.CacheRoot(), configuration)
}

func (p *Project) command(args ...string) *exec.Cmd {
	cmd := exec.Command(p.settings.BuildTool, args...)
	cmd.Dir = p.Root
	return cmd
}

// Runner builds and launches one target, keeping at most one instance of
// the product running.
type Runner struct {
	project  *Project
	hub      Hub
	settings models.BuildSettings
	device   string

	mu   sync.Mutex
	stop context.CancelFunc
}

// NewRunner creates a runner for s on device. An empty device launches the
// product on the host.
func (p *Project) NewRunner(hub Hub, s models.BuildSettings, device string) *Runner {
	return &Runner{project: p, hub: hub, settings: s, device: device}
}

// Args returns the build arguments the runner uses.
func (r *Runner) Args() []string {
	return r.project.BuildArgs(r.settings, r.deviceArgs()...)
}

// Run stops a previous launch, builds and launches the product. The
// channel yields true once the product has been launched.
func (r *Runner) Run(ctx context.Context) (<-chan bool, error) {
	r.Stop()

	done, _, err := r.project.Build(ctx, r.hub, r.settings, r.deviceArgs()...)
	if err != nil {
		return nil, err
	}

	result := make(chan bool, 1)
	go func() {
		if !<-done {
			result <- false
			return
		}
		result <- r.launch(ctx)
	}()
	return result, nil
}

// Stop terminates the running product, if any.
func (r *Runner) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (r *Runner) launch(ctx context.Context) bool {
	target := r.settings.Target
	app := filepath.Join(r.project.ProductDir(r.settings, r.device), target+".app")

	var launch *exec.Cmd
	if r.device == "" {
		launch = exec.Command(hostExecutable(r.project.ProductDir(r.settings, ""), target))
	} else {
		install := exec.Command("xcrun", "simctl", "install", r.device, app)
		installed, err := r.hub.Consume(ctx, install)
		if err != nil || !<-installed {
			r.hub.LogError("[%s] Failed to install %s on %s", target, app, r.device)
			return false
		}
		bundleID, err := bundleIdentifier(app)
		if err != nil {
			r.hub.LogError("[%s] %v", target, err)
			return false
		}
		launch = exec.Command("xcrun", "simctl", "launch", "--console-pty", "--terminate-running-process", r.device, bundleID)
	}
	launch.Dir = r.project.Root

	lctx, cancel := context.WithCancel(ctx)
	exited, err := r.hub.Consume(lctx, launch)
	if err != nil {
		cancel()
		r.hub.LogError("[%s] %v", target, err)
		return false
	}

	r.mu.Lock()
	r.stop = cancel
	r.mu.Unlock()

	go func() {
		<-exited
		cancel()
		r.hub.LogInfo("[%s] Exited", target)
	}()
	return true
}

func (r *Runner) deviceArgs() []string {
	if r.device == "" {
		return nil
	}
	return []string{"-sdk", "iphonesimulator", "-destination", "id=" + r.device}
}

// hostExecutable locates the binary of a host product, preferring an app
// bundle.
func hostExecutable(dir, target string) string {
	bundled := filepath.Join(dir, target+".app", "Contents", "MacOS", target)
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}
	return filepath.Join(dir, target)
}

func bundleIdentifier(app string) (string, error) {
	args := []string{"read", filepath.Join(app, "Info"), "CFBundleIdentifier"}
	out, err := exec.Command("defaults", args...).Output()
	if err != nil {
		return "", errors.ProcessFailed(append([]string{"defaults"}, args...), err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", errors.New(errors.ErrCodeProcess, "no bundle identifier in "+app)
	}
	return id, nil
}
