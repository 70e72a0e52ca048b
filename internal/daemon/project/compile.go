package project

import (
	"context"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/compile"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/process"
)

// CompileArgs returns the arguments of the clean build whose transcript
// feeds the compile database.
func (p *Project) CompileArgs() []string {
	args := []string{"clean", "build", "-alltargets"}
	args = append(args, p.settings.ExtraArgs...)
	return append(args, "SYMROOT="+p.CacheRoot())
}

// UpdateCompileDatabase runs a clean build through hub and rewrites
// .compile from its transcript. The database is left untouched when the
// build fails.
func (p *Project) UpdateCompileDatabase(ctx context.Context, hub Hub) (compile.Commands, error) {
	collector := &compile.Collector{}
	observe := process.WithObserver(func(out process.Output) {
		if out.Stream == models.Stdout {
			collector.Add(out.Text)
		}
	})

	hub.NotifyInfo("[%s] Updating compile database", p.Name())
	args := p.CompileArgs()
	done, err := hub.Consume(ctx, p.command(args...), observe)
	if err != nil {
		hub.NotifyError("[%s] Failed to update compile database", p.Name())
		return nil, err
	}

	ok := <-done
	if !ok {
		hub.NotifyError("[%s] Failed to update compile database, checkout logs", p.Name())
		hub.Event(models.EventCompileUpdated, "", &ok)
		return nil, errors.New(errors.ErrCodeProcess, "compile database build failed").
			WithDetail("args", args)
	}

	cmds, err := compile.Update(p.Root, collector.Lines())
	if err != nil {
		ok = false
		hub.NotifyError("[%s] Failed to write compile database", p.Name())
		hub.Event(models.EventCompileUpdated, "", &ok)
		return nil, err
	}

	hub.NotifyInfo("[%s] Compile database updated (%d commands)", p.Name(), len(cmds))
	hub.Event(models.EventCompileUpdated, "", &ok)
	return cmds, nil
}
