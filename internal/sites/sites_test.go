package sites

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestVhostName(t *testing.T) {
	name := VhostName("/srv/www", "/srv/www/projects/site1/vvv-nginx.conf")
	assert.Regexp(t, regexp.MustCompile(`^vvv-auto-projects-site1-[0-9a-f]{8}\.conf$`), name)

	// Deterministic
	assert.Equal(t, name, VhostName("/srv/www", "/srv/www/projects/site1/vvv-nginx.conf"))

	// Template directly in the root
	assert.Regexp(t, regexp.MustCompile(`^vvv-auto-root-[0-9a-f]{8}\.conf$`), VhostName("/srv/www", "/srv/www/vvv-nginx.conf"))
}

func TestVhostNameDistinctForSameNamedProjects(t *testing.T) {
	a := VhostName("/srv/www", "/srv/www/a/site/vvv-nginx.conf")
	b := VhostName("/srv/www", "/srv/www/b/site/vvv-nginx.conf")
	c := VhostName("/srv/www", "/srv/www/a-site/vvv-nginx.conf")

	assert.NotEqual(t, a, b)
	// Same mangled stem, the fingerprint still tells them apart
	assert.True(t, strings.HasPrefix(a, "vvv-auto-a-site-"))
	assert.True(t, strings.HasPrefix(c, "vvv-auto-a-site-"))
	assert.NotEqual(t, a, c)
}

func TestRenderVhost(t *testing.T) {
	out := RenderVhost("server_name {vvv_path_to_folder};\nroot {vvv_path_to_folder}/public;", "/srv/www/projects/site1")
	assert.Equal(t, "server_name /srv/www/projects/site1;\nroot /srv/www/projects/site1/public;", out)
}

func TestScanRespectsDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vvv-hosts"), "top.test")
	writeFile(t, filepath.Join(root, "a", "vvv-nginx.conf"), "")
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "vvv-init.sh"), "")
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "e", "vvv-hosts"), "")
	writeFile(t, filepath.Join(root, "a", "unrelated.txt"), "")

	descs, err := Scan(context.Background(), root, DefaultScanDepth)
	require.NoError(t, err)

	var found []string
	for _, d := range descs {
		rel, _ := filepath.Rel(root, d.Path)
		found = append(found, rel)
	}
	sort.Strings(found)
	assert.Equal(t, []string{
		filepath.Join("a", "b", "c", "d", "vvv-init.sh"),
		filepath.Join("a", "vvv-nginx.conf"),
		"vvv-hosts",
	}, found)

	hooks, err := Scan(context.Background(), root, DefaultScanDepth, KindInitHook)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, KindInitHook, hooks[0].Kind)
	assert.Equal(t, filepath.Join(root, "a", "b", "c", "d"), hooks[0].Dir)
}

func TestFilterKeepsOrder(t *testing.T) {
	descs := []Descriptor{
		{Path: "/www/b/vvv-hosts", Kind: KindHosts},
		{Path: "/www/a/vvv-nginx.conf", Kind: KindVhost},
		{Path: "/www/a/vvv-hosts", Kind: KindHosts},
	}

	hosts := Filter(descs, KindHosts)
	require.Len(t, hosts, 2)
	assert.Equal(t, "/www/b/vvv-hosts", hosts[0].Path)
	assert.Equal(t, "/www/a/vvv-hosts", hosts[1].Path)
	assert.Empty(t, Filter(descs, KindInitHook))
}

func TestBuildVhostsIgnoresOtherKinds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "vvv-nginx.conf"), "root {vvv_path_to_folder};")
	writeFile(t, filepath.Join(root, "a", "vvv-hosts"), "a.test")

	descs, err := Scan(context.Background(), root, DefaultScanDepth)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	vhosts, err := BuildVhosts(root, "/etc/nginx/custom-sites", descs)
	require.NoError(t, err)
	require.Len(t, vhosts, 1)
	assert.Equal(t, "root "+filepath.Join(root, "a")+";", vhosts[0].Content)
}

func TestReadHostsList(t *testing.T) {
	list, err := ReadHostsList(strings.NewReader("# comment\n\n  a.test  \nb.test\n#c.test\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.test", "b.test"}, list)
}

func TestReconcileHosts(t *testing.T) {
	old := "127.0.0.1 localhost\n127.0.0.1 a.test\n"
	out := ReconcileHosts(old, []string{"a.test", "b.test"}, "")

	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 a.test\n127.0.0.1 b.test # vvv-auto\n", out)
	assert.Equal(t, 1, strings.Count(out, "a.test"))
}

func TestReconcileHostsDropsStaleManagedLines(t *testing.T) {
	old := "127.0.0.1 localhost\n127.0.0.1 gone.test # vvv-auto\n10.0.0.1 db # internal\n"
	out := ReconcileHosts(old, []string{"new.test", "new.test"}, "127.0.0.1")

	assert.NotContains(t, out, "gone.test")
	assert.Contains(t, out, "10.0.0.1 db # internal\n")
	assert.Equal(t, 1, strings.Count(out, "new.test"))

	// Applying the transform to its own output changes nothing
	assert.Equal(t, out, ReconcileHosts(out, []string{"new.test"}, "127.0.0.1"))
}

func TestSyncHostsWritesOnlyOnChange(t *testing.T) {
	dir := t.TempDir()
	hostsFile := filepath.Join(dir, "hosts")
	writeFile(t, hostsFile, "127.0.0.1 localhost\n")
	writeFile(t, filepath.Join(dir, "p", "vvv-hosts"), "p.test\n")

	descs := []Descriptor{{Path: filepath.Join(dir, "p", "vvv-hosts"), Dir: filepath.Join(dir, "p"), Kind: KindHosts}}

	results, err := SyncHosts(context.Background(), hostsFile, "", descs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1 hostnames", results[0].Detail)

	results, err = SyncHosts(context.Background(), hostsFile, "", descs)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", results[0].Detail)

	data, err := os.ReadFile(hostsFile)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 p.test # vvv-auto\n", string(data))
}

func TestRunHooksContinuesAfterFailure(t *testing.T) {
	fake := runner.NewFake().On("bash /www/a/vvv-init.sh", "", 1)
	descs := []Descriptor{
		{Path: "/www/a/vvv-init.sh", Dir: "/www/a", Kind: KindInitHook},
		{Path: "/www/b/vvv-init.sh", Dir: "/www/b", Kind: KindInitHook},
	}

	results, err := RunHooks(context.Background(), fake, "", descs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.StatusToolError, results[0].Status)
	assert.Equal(t, models.StatusSuccess, results[1].Status)

	require.Len(t, fake.Calls, 2)
	assert.Equal(t, "/www/a", fake.Calls[0].Dir)
	assert.Equal(t, "/www/b", fake.Calls[1].Dir)
}

func TestRunHooksCustomShell(t *testing.T) {
	fake := runner.NewFake()
	descs := []Descriptor{{Path: "/www/a/vvv-init.sh", Dir: "/www/a", Kind: KindInitHook}}

	_, err := RunHooks(context.Background(), fake, "bash -e", descs)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash -e /www/a/vvv-init.sh"}, fake.Commands())
}

type recordingServices struct {
	calls []string
}

func (r *recordingServices) Apply(ctx context.Context, name, action string) error {
	r.calls = append(r.calls, name+" "+action)
	return nil
}

func newDiscovery(t *testing.T) (string, string, string, *Discoverer, *recordingServices) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "www")
	vhostDir := filepath.Join(base, "sites-enabled")
	hostsFile := filepath.Join(base, "hosts")
	require.NoError(t, os.MkdirAll(root, 0755))
	writeFile(t, hostsFile, "127.0.0.1 localhost\n")

	svc := &recordingServices{}
	d := NewDiscoverer(runner.NewFake(), svc, Options{
		Root:      root,
		MaxDepth:  DefaultScanDepth,
		VhostDir:  vhostDir,
		HostsFile: hostsFile,
		Webserver: "nginx",
	})
	return root, vhostDir, hostsFile, d, svc
}

func TestDiscoveryEndToEnd(t *testing.T) {
	root, vhostDir, hostsFile, d, svc := newDiscovery(t)
	writeFile(t, filepath.Join(root, "projects", "site1", "vvv-nginx.conf"), "server_name {vvv_path_to_folder};")
	writeFile(t, filepath.Join(root, "projects", "site1", "vvv-hosts"), "site1.test\n")

	results, err := d.Run(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.OK(), r.String())
	}
	assert.Equal(t, []string{"nginx restart"}, svc.calls)

	names := listDir(t, vhostDir)
	require.Len(t, names, 1)
	assert.Regexp(t, regexp.MustCompile(`^vvv-auto-projects-site1-[0-9a-f]{8}\.conf$`), names[0])

	data, err := os.ReadFile(filepath.Join(vhostDir, names[0]))
	require.NoError(t, err)
	assert.Equal(t, "server_name "+filepath.Join(root, "projects", "site1")+";", string(data))

	hosts, err := os.ReadFile(hostsFile)
	require.NoError(t, err)
	assert.Contains(t, string(hosts), "127.0.0.1 site1.test # vvv-auto\n")
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	root, vhostDir, hostsFile, d, _ := newDiscovery(t)
	writeFile(t, filepath.Join(root, "one", "vvv-nginx.conf"), "root {vvv_path_to_folder};")
	writeFile(t, filepath.Join(root, "one", "vvv-hosts"), "one.test\n")

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	firstNames := listDir(t, vhostDir)
	firstHosts, err := os.ReadFile(hostsFile)
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstNames, listDir(t, vhostDir))
	secondHosts, err := os.ReadFile(hostsFile)
	require.NoError(t, err)
	assert.Equal(t, string(firstHosts), string(secondHosts))
}

func TestDiscoveryRemovesOnlyDeletedProject(t *testing.T) {
	root, vhostDir, _, d, _ := newDiscovery(t)
	writeFile(t, filepath.Join(root, "one", "vvv-nginx.conf"), "one")
	writeFile(t, filepath.Join(root, "two", "vvv-nginx.conf"), "two")
	writeFile(t, filepath.Join(vhostDir, "default"), "hand written")

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, listDir(t, vhostDir), 3)

	require.NoError(t, os.Remove(filepath.Join(root, "two", "vvv-nginx.conf")))
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	names := listDir(t, vhostDir)
	require.Len(t, names, 2)
	assert.Contains(t, names, "default")
	assert.Contains(t, names, VhostName(root, filepath.Join(root, "one", "vvv-nginx.conf")))
}

func TestDiscoveryPicksUpDescriptorsCreatedByHooks(t *testing.T) {
	root, vhostDir, _, d, _ := newDiscovery(t)
	hookDir := filepath.Join(root, "generated")
	writeFile(t, filepath.Join(hookDir, "vvv-init.sh"), "#!/bin/bash")

	fake := runner.NewFake()
	fake.Hook = func(c runner.Call) {
		// Stands in for a hook that writes its own vhost template
		writeFile(t, filepath.Join(c.Dir, "vvv-nginx.conf"), "created")
	}
	d.Runner = fake

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bash " + filepath.Join(hookDir, "vvv-init.sh")}, fake.Commands())
	assert.Equal(t, []string{VhostName(root, filepath.Join(hookDir, "vvv-nginx.conf"))}, listDir(t, vhostDir))
}
