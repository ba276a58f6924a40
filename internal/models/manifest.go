package models

import "time"

// Manifest describes everything a provisioning run needs to know about the
// target machine. It is decoded from TOML over the built-in defaults.
type Manifest struct {
	// Layout
	ConfigDir    string `toml:"config_dir"`    // Source tree of configuration templates
	ProjectsRoot string `toml:"projects_root"` // Root scanned for per-project descriptors
	ScanDepth    int    `toml:"scan_depth"`

	// Offline forces every network-gated step down the skip branch
	Offline bool `toml:"offline"`

	Probe ProbeConfig `toml:"probe"`

	// Packages
	PackageManager string       `toml:"package_manager"` // apt or dnf
	Packages       []string     `toml:"packages"`
	PackageDir     string       `toml:"package_dir"` // Optional directory of local .deb/.rpm files
	KeyringDir     string       `toml:"keyring_dir"`
	SigningKeys    []SigningKey `toml:"signing_keys"`
	SourceLists    []FileSync   `toml:"source_lists"`

	Services []ServiceSpec  `toml:"services"`
	TLS      TLSConfig      `toml:"tls"`
	Database DatabaseConfig `toml:"database"`
	Tools    ToolsConfig    `toml:"tools"`
	Sites    SitesConfig    `toml:"sites"`
}

// ProbeConfig controls the connectivity check
type ProbeConfig struct {
	URL      string        `toml:"url"`
	Attempts int           `toml:"attempts"`
	Timeout  time.Duration `toml:"timeout"`
	Delay    time.Duration `toml:"delay"`
}

// SigningKey is a package repository key fetched over HTTP
type SigningKey struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// FileSync copies a single template over its live location
type FileSync struct {
	Source string `toml:"source"`
	Dest   string `toml:"dest"`
}

// DirSync mirrors a template directory onto its live location
type DirSync struct {
	Source string `toml:"source"`
	Dest   string `toml:"dest"`
}

// ServiceSpec groups the configuration owned by one service
type ServiceSpec struct {
	Name   string     `toml:"name"`
	Action string     `toml:"action"` // restart (default) or reload
	Files  []FileSync `toml:"files"`
	Dirs   []DirSync  `toml:"dirs"`
}

// TLSConfig describes the self-signed certificate generated once per machine
type TLSConfig struct {
	Key     string `toml:"key"`
	CSR     string `toml:"csr"`
	Cert    string `toml:"cert"`
	Subject string `toml:"subject"`
	Days    int    `toml:"days"`
}

// DatabaseConfig describes the database bootstrap
type DatabaseConfig struct {
	Service      string `toml:"service"`
	Client       string `toml:"client"` // Command line of the SQL client, split shell-style
	InitScript   string `toml:"init_script"`
	CustomScript string `toml:"custom_script"`
	BackupsDir   string `toml:"backups_dir"`
}

// ToolsConfig lists the network-installed developer tools
type ToolsConfig struct {
	Binaries  []BinaryTool   `toml:"binaries"`
	Archives  []ArchiveTool  `toml:"archives"`
	Checkouts []CheckoutTool `toml:"checkouts"`
}

// BinaryTool is a single downloadable executable
type BinaryTool struct {
	Name        string   `toml:"name"`
	URL         string   `toml:"url"`
	Path        string   `toml:"path"`
	MinVersion  string   `toml:"min_version"`
	VersionArgs []string `toml:"version_args"`

	// Optional detached signature checked against Keyring before install
	SignatureURL string `toml:"signature_url"`
	Keyring      string `toml:"keyring"`
}

// ArchiveTool is an archive unpacked into a directory
type ArchiveTool struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
	Dest string `toml:"dest"`
}

// CheckoutTool is a git repository kept checked out
type CheckoutTool struct {
	Name   string `toml:"name"`
	URL    string `toml:"url"`
	Dest   string `toml:"dest"`
	Branch string `toml:"branch"`
}

// SitesConfig controls site discovery
type SitesConfig struct {
	VhostDir  string `toml:"vhost_dir"`
	HostsFile string `toml:"hosts_file"`
	HostAddr  string `toml:"host_addr"`
	HookShell string `toml:"hook_shell"`
	Webserver string `toml:"webserver"`

	// WebserverAction is "restart" (default) or "reload"
	WebserverAction string `toml:"webserver_action"`
}
