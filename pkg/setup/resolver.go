package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// DefaultTrainingVersion is the training version used when none is given.
const DefaultTrainingVersion = "v0003.2"

// Placeholders substituted in search root templates.
const (
	VersionPlaceholder = "{training_version}"
	SetupPlaceholder   = "{setup}"
)

// DefaultSearchRoots are the historic setup locations, in lookup order.
var DefaultSearchRoots = []string{
	"/nrs/cosem/cosem/training/{training_version}/{setup}",
	"/nearline/cosem/cosem/training/{training_version}/FROM_NRS/{setup}",
	"/nearline/cosem/cosem/training/{training_version}/{setup}",
}

// DefaultConfigNames are the configuration file names looked for in a setup
// directory, in preference order.
var DefaultConfigNames = []string{"unet_template.yaml", "unet_template.yml", "unet_template.json"}

// ErrSetupNotFound indicates no search root holds the requested setup.
var ErrSetupNotFound = errors.New("setup not found")

// Location is where a setup was found.
type Location struct {
	Setup      string `json:"setup"`
	Dir        string `json:"dir"`
	ConfigPath string `json:"config_path"`

	// Root is the index of the search root that matched.
	Root int `json:"root"`
}

// Resolver finds setups under an ordered list of search roots.
type Resolver struct {
	roots       []string
	configNames []string
	logger      *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfigNames overrides DefaultConfigNames.
func WithConfigNames(names ...string) Option {
	return func(r *Resolver) {
		if len(names) > 0 {
			r.configNames = names
		}
	}
}

// NewResolver returns a resolver over roots. Each root is a path template
// containing {setup} and optionally {training_version}; a root without
// {setup} has the setup name appended as a path element. Empty roots fall
// back to DefaultSearchRoots.
func NewResolver(roots []string, opts ...Option) *Resolver {
	if len(roots) == 0 {
		roots = DefaultSearchRoots
	}
	r := &Resolver{
		roots:       normalizeRoots(roots),
		configNames: DefaultConfigNames,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roots returns the search root templates in lookup order.
func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Find returns the first search root whose setup directory holds a
// configuration file.
func (r *Resolver) Find(setupName, trainingVersion string) (*Location, error) {
	if err := validateName(setupName); err != nil {
		return nil, err
	}
	trainingVersion = versionOrDefault(trainingVersion)

	for i, tmpl := range r.roots {
		dir := expand(tmpl, trainingVersion, setupName)
		for _, name := range r.configNames {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			r.logger.Debug("Resolved setup",
				zap.String("setup", setupName),
				zap.String("training_version", trainingVersion),
				zap.String("config", path))
			return &Location{Setup: setupName, Dir: dir, ConfigPath: path, Root: i}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (training version %s, %d search roots)", ErrSetupNotFound, setupName, trainingVersion, len(r.roots))
}

// Load finds and loads a setup's configuration.
func (r *Resolver) Load(setupName, trainingVersion string) (*Config, error) {
	loc, err := r.Find(setupName, trainingVersion)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(loc.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Name = setupName
	return cfg, nil
}

// Is8nm reports whether a setup consumes 8nm input.
func (r *Resolver) Is8nm(setupName, trainingVersion string) (bool, error) {
	cfg, err := r.Load(setupName, trainingVersion)
	if err != nil {
		return false, err
	}
	return cfg.Is8nm(), nil
}

// Labels returns a setup's labels.
func (r *Resolver) Labels(setupName, trainingVersion string) ([]Label, error) {
	cfg, err := r.Load(setupName, trainingVersion)
	if err != nil {
		return nil, err
	}
	return cfg.Labels, nil
}

// RawDatasets returns the raw datasets a setup predicts on.
func (r *Resolver) RawDatasets(setupName, trainingVersion string) ([]string, error) {
	cfg, err := r.Load(setupName, trainingVersion)
	if err != nil {
		return nil, err
	}
	return cfg.RawDatasets(), nil
}

// List returns every setup reachable for a training version, sorted by
// name. A setup present under several roots is reported at the first one,
// matching Find.
func (r *Resolver) List(trainingVersion string) ([]*Location, error) {
	trainingVersion = versionOrDefault(trainingVersion)

	found := make(map[string]*Location)
	for i, tmpl := range r.roots {
		for _, name := range r.configNames {
			pattern := filepath.Join(expand(tmpl, trainingVersion, "*"), name)
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("list setups under %s: %w", tmpl, err)
			}
			for _, path := range matches {
				if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
					continue
				}
				dir := filepath.Dir(path)
				setupName := filepath.Base(dir)
				if _, ok := found[setupName]; ok {
					continue
				}
				found[setupName] = &Location{Setup: setupName, Dir: dir, ConfigPath: path, Root: i}
			}
		}
	}

	out := make([]*Location, 0, len(found))
	for _, loc := range found {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Setup < out[j].Setup })
	return out, nil
}

func expand(tmpl, version, setupName string) string {
	s := strings.ReplaceAll(tmpl, VersionPlaceholder, version)
	return filepath.Clean(strings.ReplaceAll(s, SetupPlaceholder, setupName))
}

func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, SetupPlaceholder) {
			r = filepath.Join(r, SetupPlaceholder)
		}
		out = append(out, r)
	}
	return out
}

func versionOrDefault(v string) string {
	if v == "" {
		return DefaultTrainingVersion
	}
	return v
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid setup name %q", name)
	}
	return nil
}
