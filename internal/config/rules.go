package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules is the routing and caching rule set loaded from YAML.
type Rules struct {
	// AppOrigin is the application's own origin, e.g. "https://app.linecheck.io".
	AppOrigin string `yaml:"appOrigin"`

	API struct {
		// Hosts is the allow-list of data-API hosts the engine may
		// intercept cross-origin.
		Hosts []string `yaml:"hosts"`
		// Prefix is the data-API path prefix, served Network-First.
		Prefix string `yaml:"prefix"`
		// SyncEndpoint receives replayed offline actions via POST.
		SyncEndpoint string `yaml:"syncEndpoint"`
		// ProbeURL is polled to detect connectivity.
		ProbeURL string `yaml:"probeURL"`
	} `yaml:"api"`

	// DenyHosts are never intercepted or cached (analytics, tracking).
	DenyHosts []string `yaml:"denyHosts"`

	// StaticExts are path extensions served Cache-First.
	StaticExts []string `yaml:"staticExts"`

	// Seeds are pre-populated into the static namespace at install.
	Seeds []string `yaml:"seeds"`

	Generations struct {
		Static  string `yaml:"static"`
		Runtime string `yaml:"runtime"`
	} `yaml:"generations"`

	// ProbeInterval is how often connectivity is checked, e.g. "30s".
	ProbeInterval string `yaml:"probeInterval"`

	probeDur time.Duration
}

// LoadRules reads and validates the YAML rules file.
func LoadRules(path string) (Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	if r.AppOrigin == "" {
		return Rules{}, fmt.Errorf("appOrigin is required")
	}
	r.AppOrigin = strings.TrimRight(r.AppOrigin, "/")
	if r.API.SyncEndpoint == "" {
		return Rules{}, fmt.Errorf("api.syncEndpoint is required")
	}

	if r.API.Prefix == "" {
		r.API.Prefix = "/api/"
	}
	if r.API.ProbeURL == "" {
		r.API.ProbeURL = r.API.SyncEndpoint
	}
	if len(r.StaticExts) == 0 {
		r.StaticExts = []string{".css", ".js", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".woff", ".woff2"}
	}
	if r.Generations.Static == "" {
		r.Generations.Static = "static-v1"
	}
	if r.Generations.Runtime == "" {
		r.Generations.Runtime = "runtime-v1"
	}

	r.probeDur = 30 * time.Second
	if r.ProbeInterval != "" {
		d, err := time.ParseDuration(r.ProbeInterval)
		if err != nil {
			return Rules{}, fmt.Errorf("probeInterval: %w", err)
		}
		r.probeDur = d
	}
	return r, nil
}

// ProbeEvery returns the parsed connectivity probe interval.
func (r Rules) ProbeEvery() time.Duration { return r.probeDur }
