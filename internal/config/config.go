// Package config loads the provisioning manifest. A TOML file is decoded
// over the built-in defaults, which describe the stock VM layout.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/services"
	"github.com/ralt/vvvprov/internal/sites"
	"github.com/sirupsen/logrus"
)

// Default locations of the stock VM layout
const (
	DefaultConfigDir    = "/srv/config"
	DefaultProjectsRoot = "/srv/www"
	DefaultDatabaseDir  = "/srv/database"
)

// Default returns the manifest for the stock VM
func Default() *models.Manifest {
	cfg := DefaultConfigDir
	return &models.Manifest{
		ConfigDir:    cfg,
		ProjectsRoot: DefaultProjectsRoot,
		ScanDepth:    sites.DefaultScanDepth,
		Probe: models.ProbeConfig{
			URL:      "http://google.com",
			Attempts: 3,
			Timeout:  5 * time.Second,
			Delay:    time.Second,
		},
		PackageManager: "apt",
		Packages: []string{
			"imagemagick", "subversion", "git-core", "zip", "unzip", "ngrep", "curl",
			"make", "vim", "colordiff", "postfix", "gettext", "graphviz", "dos2unix",
			"g++", "nodejs", "nginx", "memcached", "mysql-server",
			"php5-fpm", "php5-cli", "php5-common", "php5-dev", "php5-memcache",
			"php5-imagick", "php5-mcrypt", "php5-mysql", "php5-imap", "php5-curl",
			"php-pear", "php5-gd",
		},
		Services: []models.ServiceSpec{
			{
				Name: "nginx",
				Files: []models.FileSync{
					{Source: filepath.Join(cfg, "nginx-config", "nginx.conf"), Dest: "/etc/nginx/nginx.conf"},
					{Source: filepath.Join(cfg, "nginx-config", "nginx-wp-common.conf"), Dest: "/etc/nginx/nginx-wp-common.conf"},
				},
				Dirs: []models.DirSync{
					{Source: filepath.Join(cfg, "nginx-config", "sites"), Dest: "/etc/nginx/custom-sites"},
				},
			},
			{
				Name: "php5-fpm",
				Files: []models.FileSync{
					{Source: filepath.Join(cfg, "php5-fpm-config", "php5-fpm.conf"), Dest: "/etc/php5/fpm/php5-fpm.conf"},
					{Source: filepath.Join(cfg, "php5-fpm-config", "www.conf"), Dest: "/etc/php5/fpm/pool.d/www.conf"},
					{Source: filepath.Join(cfg, "php5-fpm-config", "php-custom.ini"), Dest: "/etc/php5/fpm/conf.d/php-custom.ini"},
					{Source: filepath.Join(cfg, "php5-fpm-config", "opcache.ini"), Dest: "/etc/php5/fpm/conf.d/opcache.ini"},
					{Source: filepath.Join(cfg, "php5-fpm-config", "xdebug.ini"), Dest: "/etc/php5/mods-available/xdebug.ini"},
				},
			},
			{
				Name: "memcached",
				Files: []models.FileSync{
					{Source: filepath.Join(cfg, "memcached-config", "memcached.conf"), Dest: "/etc/memcached.conf"},
				},
			},
			{
				Name: "mysql",
				Files: []models.FileSync{
					{Source: filepath.Join(cfg, "mysql-config", "my.cnf"), Dest: "/etc/mysql/my.cnf"},
				},
			},
		},
		TLS: models.TLSConfig{
			Key:     "/etc/nginx/server.key",
			CSR:     "/etc/nginx/server.csr",
			Cert:    "/etc/nginx/server.crt",
			Subject: "/CN=vvv.test",
			Days:    365,
		},
		Database: models.DatabaseConfig{
			Service:      "mysql",
			Client:       "mysql -u root -proot",
			InitScript:   filepath.Join(DefaultDatabaseDir, "init.sql"),
			CustomScript: filepath.Join(DefaultDatabaseDir, "init-custom.sql"),
			BackupsDir:   filepath.Join(DefaultDatabaseDir, "backups"),
		},
		Tools: models.ToolsConfig{
			Binaries: []models.BinaryTool{{
				Name:        "wp-cli",
				URL:         "https://raw.githubusercontent.com/wp-cli/builds/gh-pages/phar/wp-cli.phar",
				Path:        "/usr/local/bin/wp",
				VersionArgs: []string{"--allow-root", "--version"},
			}},
			Archives: []models.ArchiveTool{{
				Name: "phpmyadmin",
				URL:  "https://files.phpmyadmin.net/phpMyAdmin/4.9.11/phpMyAdmin-4.9.11-english.tar.gz",
				Dest: filepath.Join(DefaultProjectsRoot, "default", "database-admin"),
			}},
			Checkouts: []models.CheckoutTool{{
				Name: "webgrind",
				URL:  "https://github.com/jokkedk/webgrind.git",
				Dest: filepath.Join(DefaultProjectsRoot, "default", "webgrind"),
			}},
		},
		Sites: models.SitesConfig{
			VhostDir:        "/etc/nginx/custom-sites",
			HostsFile:       "/etc/hosts",
			HostAddr:        sites.DefaultHostAddr,
			HookShell:       sites.DefaultHookShell,
			Webserver:       "nginx",
			WebserverAction: services.ActionRestart,
		},
	}
}

// Load decodes the manifest at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*models.Manifest, error) {
	m := Default()
	if path == "" {
		return m, Validate(m)
	}

	meta, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, models.NewError(models.ErrInvalidConfig, path,
			fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
	}

	logrus.Debugf("Loaded manifest from %s", path)
	return m, Validate(m)
}

// Validate fills derived defaults and rejects invalid values
func Validate(m *models.Manifest) error {
	invalid := func(subject string, format string, args ...interface{}) error {
		return models.NewError(models.ErrInvalidConfig, subject, fmt.Errorf(format, args...))
	}

	if m.ProjectsRoot == "" {
		return invalid("projects_root", "must not be empty")
	}
	if m.ScanDepth == 0 {
		m.ScanDepth = sites.DefaultScanDepth
	}
	if m.ScanDepth < 0 {
		return invalid("scan_depth", "must be positive, got %d", m.ScanDepth)
	}

	switch m.PackageManager {
	case "":
		m.PackageManager = "apt"
	case "apt", "dnf":
	default:
		return invalid("package_manager", "unsupported package manager %q", m.PackageManager)
	}

	if m.Probe.URL != "" {
		u, err := url.Parse(m.Probe.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("probe.url", "must be an http(s) URL, got %q", m.Probe.URL)
		}
	}
	if m.Probe.Attempts <= 0 {
		m.Probe.Attempts = 3
	}
	if m.Probe.Timeout <= 0 {
		m.Probe.Timeout = 5 * time.Second
	}

	for _, key := range m.SigningKeys {
		if key.Name == "" || key.URL == "" {
			return invalid("signing_keys", "every key needs a name and a url")
		}
	}

	for _, spec := range m.Services {
		if spec.Name == "" {
			return invalid("services", "service without a name")
		}
		switch spec.Action {
		case "", services.ActionRestart, services.ActionReload:
		default:
			return invalid("services."+spec.Name, "unsupported action %q", spec.Action)
		}
	}

	switch m.Sites.WebserverAction {
	case "":
		m.Sites.WebserverAction = services.ActionRestart
	case services.ActionRestart, services.ActionReload:
	default:
		return invalid("sites.webserver_action", "unsupported action %q", m.Sites.WebserverAction)
	}
	if m.Sites.HookShell == "" {
		m.Sites.HookShell = sites.DefaultHookShell
	}
	if m.Sites.HostAddr == "" {
		m.Sites.HostAddr = sites.DefaultHostAddr
	}
	if m.TLS.Days <= 0 {
		m.TLS.Days = 365
	}

	for _, tool := range m.Tools.Binaries {
		if tool.Name == "" || tool.URL == "" || tool.Path == "" {
			return invalid("tools.binaries", "every binary needs a name, url and path")
		}
	}
	for _, tool := range m.Tools.Archives {
		if tool.Name == "" || tool.URL == "" || tool.Dest == "" {
			return invalid("tools.archives", "every archive needs a name, url and dest")
		}
	}
	for _, tool := range m.Tools.Checkouts {
		if tool.Name == "" || tool.URL == "" || tool.Dest == "" {
			return invalid("tools.checkouts", "every checkout needs a name, url and dest")
		}
	}

	return nil
}
