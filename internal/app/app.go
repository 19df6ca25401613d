package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/briantomko/OpenMDAO/internal/builder"
	"github.com/briantomko/OpenMDAO/internal/config"
	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/fsutil"
	"github.com/briantomko/OpenMDAO/internal/problem"
	"github.com/briantomko/OpenMDAO/internal/recorder"
	"github.com/briantomko/OpenMDAO/internal/registry"
)

// App encapsulates one run of the tool.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
}

// NewApp builds an App with its own isolated logger and registry.
func NewApp(outW io.Writer, logW io.Writer, cfg *Config) *App {
	return &App{
		outW:     outW,
		logger:   newLogger(cfg.LogLevel, cfg.LogFormat, logW),
		cfg:      cfg,
		registry: registry.New(),
	}
}

// Registry returns the app's component registry so callers can add kinds
// before Run.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Run loads the model, sets up and evaluates the problem, prints the filtered
// snapshot, and answers the derivative query if one was requested.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	files, err := fsutil.FindModelFiles(a.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("resolving model path: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no .hcl model files under '%s'", a.cfg.ModelPath)
	}

	group, err := config.Load(ctx, files...)
	if err != nil {
		return err
	}
	root, err := builder.Build(ctx, group, a.registry)
	if err != nil {
		return err
	}

	p := problem.New(root)
	if err := p.Setup(ctx); err != nil {
		return err
	}
	if err := p.Run(ctx); err != nil {
		return err
	}

	snap, err := p.Snapshot(&recorder.Filter{Includes: a.cfg.Include, Excludes: a.cfg.Exclude})
	if err != nil {
		return err
	}
	a.printSnapshot(snap)

	if a.cfg.Mode == "" {
		return nil
	}
	return a.printGradient(ctx, p)
}

func (a *App) printSnapshot(snap *recorder.Snapshot) {
	for _, sec := range []struct {
		title   string
		entries []recorder.Entry
	}{
		{"unknowns", snap.Unknowns},
		{"resids", snap.Resids},
	} {
		if len(sec.entries) == 0 {
			continue
		}
		fmt.Fprintf(a.outW, "%s:\n", sec.title)
		for _, e := range sec.entries {
			fmt.Fprintf(a.outW, "  %s = %v\n", e.Name, e.Val)
		}
	}
}

func (a *App) printGradient(ctx context.Context, p *problem.Problem) error {
	var grad map[string]map[string]*deriv.Block
	var err error

	switch a.cfg.Mode {
	case "fd":
		grad, err = p.CalcGradientFD(ctx, a.cfg.Params, a.cfg.Unknowns)
	default:
		if err := p.Linearize(ctx); err != nil {
			return err
		}
		grad, err = p.CalcGradient(ctx, a.cfg.Params, a.cfg.Unknowns, deriv.Mode(a.cfg.Mode))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.outW, "derivatives (%s):\n", a.cfg.Mode)
	for _, un := range a.cfg.Unknowns {
		for _, pn := range a.cfg.Params {
			b := grad[un][pn]
			if b == nil {
				continue
			}
			fmt.Fprintf(a.outW, "  d %s / d %s = %v\n", un, pn, b.Data)
		}
	}
	return nil
}
