package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// remotesFileEnv names a remotes file to use instead of the default under
// the user's state directory.
const remotesFileEnv = "SB_REMOTES_FILE"

// RemotesConfig holds all named board servers and tracks which one is active.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named board server.
type Remote struct {
	URL         string `toml:"url"`
	Description string `toml:"description,omitempty"`
}

// normalizeRemoteURL checks that raw addresses a board server and returns
// its base URL: no trailing slash and no /v1 API prefix, since the client
// adds routes itself.
func normalizeRemoteURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("remote url must be http(s)://host[:port], got %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("remote url must not carry a query or fragment, got %q", raw)
	}
	p := strings.TrimSuffix(u.Path, "/")
	p = strings.TrimSuffix(p, "/v1")
	u.Path = strings.TrimSuffix(p, "/")
	u.RawPath = ""
	return u.String(), nil
}

func validRemoteName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("remote name %q must be non-empty and contain no spaces or slashes", name)
	}
	return nil
}

// add inserts or replaces a remote and returns the stored entry.
func (c *RemotesConfig) add(name, rawURL, description string) (Remote, error) {
	if err := validRemoteName(name); err != nil {
		return Remote{}, err
	}
	u, err := normalizeRemoteURL(rawURL)
	if err != nil {
		return Remote{}, err
	}
	r := Remote{URL: u, Description: strings.TrimSpace(description)}
	c.Remotes[name] = r
	return r, nil
}

// remove deletes a remote, clearing it as the active one.
func (c *RemotesConfig) remove(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

func (c *RemotesConfig) use(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	c.Active = name
	return nil
}

// lookup returns the named remote, or the active one when name is empty.
func (c RemotesConfig) lookup(name string) (string, Remote, error) {
	if name == "" {
		name = c.Active
	}
	if name == "" {
		return "", Remote{}, errors.New("no active remote; specify a name or run 'sb remote use <name>'")
	}
	r, ok := c.Remotes[name]
	if !ok {
		return "", Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return name, r, nil
}

// names returns the remote names in sorted order.
func (c RemotesConfig) names() []string {
	out := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// validate applies the same rules as add to a loaded file.
func (c RemotesConfig) validate() error {
	var errs []error
	for _, name := range c.names() {
		if err := validRemoteName(name); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := normalizeRemoteURL(c.Remotes[name].URL); err != nil {
			errs = append(errs, fmt.Errorf("remote %q: %w", name, err))
		}
	}
	if c.Active != "" {
		if _, ok := c.Remotes[c.Active]; !ok {
			errs = append(errs, fmt.Errorf("active remote %q is not defined", c.Active))
		}
	}
	return errors.Join(errs...)
}

func remoteConfigPath() (string, error) {
	if p := os.Getenv(remotesFileEnv); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return "", err
		}
		return p, nil
	}
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "shoutboard")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

func loadRemotesConfig() (RemotesConfig, error) {
	path, err := remoteConfigPath()
	if err != nil {
		return RemotesConfig{}, err
	}
	var cfg RemotesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return RemotesConfig{Remotes: map[string]Remote{}}, nil
		}
		return RemotesConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	if err := cfg.validate(); err != nil {
		return RemotesConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// saveRemotesConfig replaces the remotes file in one rename, so a reader
// never sees a half-written file.
func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".remotes-*.toml")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Active remote URL, loaded once per process.
var (
	remoteOnce      sync.Once
	cachedRemoteURL string
)

func activeRemoteURL() string {
	remoteOnce.Do(func() {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return
		}
		if _, r, err := cfg.lookup(""); err == nil {
			cachedRemoteURL = r.URL
		}
	})
	return cachedRemoteURL
}
