// Package configsync copies configuration templates over their live
// locations and restarts the services that own them. Copies always
// overwrite; directories are mirrored exactly.
package configsync

import (
	"context"
	"fmt"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// ServiceController applies an action to a named service
type ServiceController interface {
	Apply(ctx context.Context, name, action string) error
}

// Syncer syncs service configuration
type Syncer struct {
	Services ServiceController
}

// NewSyncer creates a syncer
func NewSyncer(services ServiceController) *Syncer {
	return &Syncer{Services: services}
}

// SyncAll syncs every service in order
func (s *Syncer) SyncAll(ctx context.Context, specs []models.ServiceSpec) []models.StepResult {
	var results []models.StepResult
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.Sync(ctx, spec)...)
	}
	return results
}

// Sync copies the files and mirrors the directories of one service, then
// restarts or reloads it. A missing template skips that entry only.
func (s *Syncer) Sync(ctx context.Context, spec models.ServiceSpec) []models.StepResult {
	var results []models.StepResult
	step := "config " + spec.Name

	for _, f := range spec.Files {
		results = append(results, syncEntry(step, f.Source, f.Dest, utils.CopyFile))
	}
	for _, d := range spec.Dirs {
		results = append(results, syncEntry(step, d.Source, d.Dest, utils.MirrorDir))
	}

	if s.Services == nil || spec.Name == "" {
		return results
	}

	action := spec.Action
	if action == "" {
		action = "restart"
	}
	if err := s.Services.Apply(ctx, spec.Name, action); err != nil {
		logrus.Warnf("Failed to %s %s: %v", action, spec.Name, err)
		results = append(results, models.ToolError("service "+spec.Name, err))
	} else {
		results = append(results, models.Success("service "+spec.Name, action))
	}

	return results
}

func syncEntry(step, src, dst string, copyFn func(src, dst string) error) models.StepResult {
	exists, err := utils.Exists(src)
	if err != nil {
		return models.ToolError(step, models.NewError(models.ErrFileOp, src, err))
	}
	if !exists {
		logrus.Warnf("Template %s not found, skipping", src)
		return models.SkippedMissingFile(step, src)
	}

	if err := copyFn(src, dst); err != nil {
		return models.ToolError(step, models.NewError(models.ErrFileOp, dst, err))
	}

	logrus.Infof("Synced %s -> %s", src, dst)
	return models.Success(step, fmt.Sprintf("%s -> %s", src, dst))
}
