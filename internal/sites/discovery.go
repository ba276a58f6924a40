package sites

import (
	"context"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
)

// ServiceController applies an action to a named service
type ServiceController interface {
	Apply(ctx context.Context, name, action string) error
}

// Options configures a discovery run
type Options struct {
	Root      string
	MaxDepth  int
	VhostDir  string
	HostsFile string
	HostAddr  string
	HookShell string

	// Webserver is reloaded after vhosts are regenerated; empty skips it
	Webserver       string
	WebserverAction string
}

// Discoverer runs the whole site discovery step
type Discoverer struct {
	Runner   runner.Runner
	Services ServiceController
	Options  Options
}

// NewDiscoverer creates a discoverer
func NewDiscoverer(r runner.Runner, svc ServiceController, opts Options) *Discoverer {
	return &Discoverer{Runner: r, Services: svc, Options: opts}
}

// Run executes init hooks, then rescans so descriptors created by hooks are
// picked up, regenerates vhost configs and reconciles the host file.
func (d *Discoverer) Run(ctx context.Context) ([]models.StepResult, error) {
	opts := d.Options

	hooks, err := Scan(ctx, opts.Root, opts.MaxDepth, KindInitHook)
	if err != nil {
		return nil, models.NewError(models.ErrSiteDiscovery, opts.Root, err)
	}
	logrus.Infof("Found %d init hooks under %s", len(hooks), opts.Root)

	results, err := RunHooks(ctx, d.Runner, opts.HookShell, hooks)
	if err != nil {
		return results, err
	}

	descs, err := Scan(ctx, opts.Root, opts.MaxDepth, KindVhost, KindHosts)
	if err != nil {
		return results, models.NewError(models.ErrSiteDiscovery, opts.Root, err)
	}

	vhostResults, err := SyncVhosts(opts.Root, opts.VhostDir, descs)
	results = append(results, vhostResults...)
	if err != nil {
		return results, err
	}

	if opts.Webserver != "" && d.Services != nil {
		action := opts.WebserverAction
		if action == "" {
			action = "restart"
		}
		step := "webserver " + action
		if err := d.Services.Apply(ctx, opts.Webserver, action); err != nil {
			logrus.Errorf("Failed to %s %s: %v", action, opts.Webserver, err)
			results = append(results, models.ToolError(step, err))
		} else {
			results = append(results, models.Success(step, opts.Webserver))
		}
	}

	hostResults, err := SyncHosts(ctx, opts.HostsFile, opts.HostAddr, descs)
	results = append(results, hostResults...)
	if err != nil {
		return results, err
	}

	return results, nil
}
