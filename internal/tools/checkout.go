package tools

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// Checkout clones the repository when its destination has no checkout yet,
// otherwise fast-forwards it. Being already up to date is a success.
func Checkout(ctx context.Context, tool models.CheckoutTool) (string, error) {
	cloned, err := utils.Exists(filepath.Join(tool.Dest, ".git"))
	if err != nil {
		return "", err
	}
	if !cloned {
		opts := &git.CloneOptions{URL: tool.URL}
		if tool.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(tool.Branch)
			opts.SingleBranch = true
		}

		logrus.Infof("Cloning %s into %s", tool.URL, tool.Dest)
		if _, err := git.PlainCloneContext(ctx, tool.Dest, false, opts); err != nil {
			return "", err
		}
		return "cloned " + tool.URL, nil
	}

	repo, err := git.PlainOpen(tool.Dest)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}

	opts := &git.PullOptions{RemoteName: git.DefaultRemoteName}
	if tool.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(tool.Branch)
		opts.SingleBranch = true
	}

	logrus.Debugf("Pulling %s", tool.Dest)
	err = wt.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "already up to date", nil
	}
	if err != nil {
		return "", err
	}
	return "updated " + tool.Dest, nil
}
