package sites

import (
	"context"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
)

// DefaultHookShell interprets init hooks
const DefaultHookShell = "bash"

// RunHooks executes every init hook with shell, inside the hook's own
// directory. A failing hook is recorded and the remaining hooks still run.
func RunHooks(ctx context.Context, r runner.Runner, shell string, descs []Descriptor) ([]models.StepResult, error) {
	if shell == "" {
		shell = DefaultHookShell
	}
	program, args, err := runner.Split(shell)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "hook_shell", err)
	}

	var results []models.StepResult
	for _, d := range Filter(descs, KindInitHook) {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		step := "init " + d.Path
		logrus.Infof("Running init hook %s", d.Path)

		hookArgs := append(append([]string(nil), args...), d.Path)
		if _, err := r.Run(ctx, program, hookArgs, runner.WithWorkingDir(d.Dir), runner.WithStreaming()); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			logrus.Errorf("Init hook %s failed: %v", d.Path, err)
			results = append(results, models.ToolError(step, err))
			continue
		}
		results = append(results, models.Success(step, ""))
	}

	return results, nil
}
