package sites

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// HostsMarker tags host-file lines owned by the provisioner
const HostsMarker = "# vvv-auto"

// DefaultHostAddr is the address generated entries map to
const DefaultHostAddr = "127.0.0.1"

// ReadHostsList returns the hostnames in a hosts list: every non-empty line
// whose first character is not '#', trimmed
func ReadHostsList(r io.Reader) ([]string, error) {
	var hosts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, scanner.Err()
}

// IsManaged reports whether a host-file line carries the marker comment
func IsManaged(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t\r"), HostsMarker)
}

// mappedHosts returns the hostnames a host-file line maps
func mappedHosts(line string) []string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// ReconcileHosts rewrites host-file content: every managed line is dropped,
// all other lines are kept in order, then one managed entry is appended for
// each hostname not already mapped. It is a pure function of its inputs.
func ReconcileHosts(content string, hostnames []string, addr string) string {
	if addr == "" {
		addr = DefaultHostAddr
	}

	lines := strings.Split(content, "\n")
	// A trailing newline leaves an empty last element
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	mapped := make(map[string]bool)
	var kept []string
	for _, line := range lines {
		if IsManaged(line) {
			continue
		}
		kept = append(kept, line)
		for _, h := range mappedHosts(line) {
			mapped[h] = true
		}
	}

	for _, h := range hostnames {
		if mapped[h] {
			continue
		}
		mapped[h] = true
		kept = append(kept, fmt.Sprintf("%s %s %s", addr, h, HostsMarker))
	}

	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}

// CollectHostnames reads every hosts list descriptor in order
func CollectHostnames(descs []Descriptor) ([]string, []models.StepResult) {
	var hosts []string
	var results []models.StepResult
	for _, d := range Filter(descs, KindHosts) {
		f, err := os.Open(d.Path)
		if err != nil {
			results = append(results, models.ToolError("hosts "+d.Path, err))
			continue
		}
		list, err := ReadHostsList(f)
		f.Close()
		if err != nil {
			results = append(results, models.ToolError("hosts "+d.Path, err))
			continue
		}
		hosts = append(hosts, list...)
	}
	return hosts, results
}

// SyncHosts loads the host file, reconciles it against the hosts list
// descriptors and writes it back when it changed
func SyncHosts(ctx context.Context, hostsFile, addr string, descs []Descriptor) ([]models.StepResult, error) {
	const step = "hosts"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hostnames, results := CollectHostnames(descs)

	perm := os.FileMode(0644)
	old, err := os.ReadFile(hostsFile)
	if err != nil && !os.IsNotExist(err) {
		return results, models.NewError(models.ErrFileOp, hostsFile, err)
	}
	if info, statErr := os.Stat(hostsFile); statErr == nil {
		perm = info.Mode().Perm()
	}

	updated := ReconcileHosts(string(old), hostnames, addr)
	if bytes.Equal(old, []byte(updated)) {
		logrus.Infof("Host file %s already up to date", hostsFile)
		return append(results, models.Success(step, "unchanged")), nil
	}

	// Written in place: /etc/hosts is often a bind mount that can't be renamed over
	if err := utils.WriteFile(hostsFile, []byte(updated), perm); err != nil {
		return results, models.NewError(models.ErrFileOp, hostsFile, err)
	}

	logrus.Infof("Updated %s with %d project hostnames", hostsFile, len(hostnames))
	return append(results, models.Success(step, fmt.Sprintf("%d hostnames", len(hostnames)))), nil
}
