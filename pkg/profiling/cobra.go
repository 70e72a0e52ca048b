package profiling

import (
	"os"
	"runtime/pprof"

	"github.com/grovetools/buildhub/errors"
	"github.com/spf13/cobra"
)

// CobraProfiler adds --timing and --cpu-profile to a command tree.
type CobraProfiler struct {
	timing     bool
	cpuPath    string
	cpuProfile *os.File
}

// NewCobraProfiler creates a profiler for a command tree.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags registers the profiling flags on cmd.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&p.timing, "timing", false, "Print request timings on exit")
	cmd.PersistentFlags().StringVar(&p.cpuPath, "cpu-profile", "", "Write a CPU profile to file")
	_ = cmd.PersistentFlags().MarkHidden("cpu-profile")
}

// PreRun is a PersistentPreRunE hook.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	if p.timing {
		Enable()
	}
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return errors.IO(err, "create", p.cpuPath)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "start CPU profile")
	}
	p.cpuProfile = f
	return nil
}

// PostRun is a PersistentPostRun hook.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	if p.cpuProfile != nil {
		pprof.StopCPUProfile()
		p.cpuProfile.Close()
		p.cpuProfile = nil
	}
	if p.timing {
		Summarize(cmd.ErrOrStderr())
	}
}
