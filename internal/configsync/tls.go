package configsync

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// EnsureCertificate generates the self-signed key, CSR and certificate the
// webserver uses. Each file is only generated when it is absent, so an
// existing certificate is never replaced.
func EnsureCertificate(ctx context.Context, r runner.Runner, cfg models.TLSConfig) []models.StepResult {
	if cfg.Key == "" || cfg.CSR == "" || cfg.Cert == "" {
		return nil
	}

	days := cfg.Days
	if days <= 0 {
		days = 365
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "/CN=vvv.test"
	}

	steps := []struct {
		name string
		out  string
		args []string
	}{
		{"tls key", cfg.Key, []string{"genrsa", "-out", cfg.Key, "2048"}},
		{"tls csr", cfg.CSR, []string{"req", "-new", "-batch", "-subj", subject, "-key", cfg.Key, "-out", cfg.CSR}},
		{"tls cert", cfg.Cert, []string{"x509", "-req", "-days", strconv.Itoa(days), "-in", cfg.CSR, "-signkey", cfg.Key, "-out", cfg.Cert}},
	}

	var results []models.StepResult
	for _, s := range steps {
		exists, err := utils.Exists(s.out)
		if err != nil {
			results = append(results, models.ToolError(s.name, err))
			return results
		}
		if exists {
			logrus.Debugf("%s already exists, not regenerating", s.out)
			results = append(results, models.Success(s.name, "exists"))
			continue
		}

		if err := utils.EnsureDir(filepath.Dir(s.out)); err != nil {
			results = append(results, models.ToolError(s.name, err))
			return results
		}
		logrus.Infof("Generating %s", s.out)
		if _, err := r.Run(ctx, "openssl", s.args); err != nil {
			// Later steps depend on this output
			results = append(results, models.ToolError(s.name, fmt.Errorf("openssl %s: %w", s.args[0], err)))
			return results
		}
		results = append(results, models.Success(s.name, "generated "+s.out))
	}

	return results
}
