package agentspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kaivest/internal/logger"
)

// Profile describes one debate participant as presented to the user:
// who they are, what perspective they argue from, and the JSON Schema
// their structured result card is expected to satisfy.
type Profile struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Role        string         `yaml:"role"`
	Perspective string         `yaml:"perspective"`
	CardSchema  map[string]any `yaml:"card_schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig maps the agents.yaml roster file.
type FileConfig struct {
	Agents map[string]Profile `yaml:"agents"`
}

// Snapshot is the immutable roster view handed to readers.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Agents   map[string]Profile
}

// ChangeListener fires after a successful hot reload.
type ChangeListener func(Snapshot)

// Registry loads the agent roster and keeps it fresh while the file
// changes on disk.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// defaultRoster ships the three specialists plus the orchestrator so a
// missing roster file still renders a usable debate.
const defaultRoster = `
agents:
  fundamental:
    name: Fundamental Analyst
    role: specialist
    perspective: balance sheets, earnings quality, cash flow
  sentiment:
    name: Sentiment Analyst
    role: specialist
    perspective: news flow, positioning, crowd behaviour
  valuation:
    name: Valuation Analyst
    role: specialist
    perspective: multiples, discounted cash flow, relative value
  kai:
    name: Kai
    role: orchestrator
    perspective: moderates the debate and issues the final call
`

// NewRegistry loads the roster at path and watches it for updates.
// An empty path loads the built-in default roster with no watching.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		cfg, err := parseRoster([]byte(defaultRoster))
		if err != nil {
			return nil, err
		}
		r.install(cfg)
		return r, nil
	}

	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read agent roster failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("agent roster reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current roster.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Lookup returns the profile for a worker id.
func (r *Registry) Lookup(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Agents[strings.TrimSpace(id)]
	return p, ok
}

// Subscribe registers a listener for roster reloads.
func (r *Registry) Subscribe(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// ValidateCard checks an agent_complete card against the agent's
// declared schema. Agents without a schema accept anything.
func (r *Registry) ValidateCard(id string, card []byte) error {
	p, ok := r.Lookup(id)
	if !ok || p.schemaCompiled == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(card, &doc); err != nil {
		return fmt.Errorf("card is not valid JSON: %w", err)
	}
	return p.schemaCompiled.Validate(doc)
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read agent roster failed: %w", err)
	}
	cfg, err := parseRoster(raw)
	if err != nil {
		return err
	}
	r.install(cfg)
	logger.Infof("agent roster loaded %d profiles from %s", len(cfg.Agents), filepath.Base(r.path))
	return nil
}

func (r *Registry) install(cfg FileConfig) {
	agents := make(map[string]Profile, len(cfg.Agents))
	for name, p := range cfg.Agents {
		norm := normalizeProfile(name, p)
		agents[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Agents:   agents,
	}
	r.mu.Unlock()
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("agent roster listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func parseRoster(raw []byte) (FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse agent roster failed: %w", err)
	}
	return cfg, nil
}

func normalizeProfile(name string, p Profile) Profile {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = p.ID
	}
	if len(p.CardSchema) > 0 {
		compiled, err := compileSchema(p.CardSchema)
		if err != nil {
			logger.Errorf("agent card schema compile failed id=%s: %v", p.ID, err)
		} else {
			p.schemaCompiled = compiled
		}
	}
	return p
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("card_schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("card_schema.json")
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Agents:   make(map[string]Profile, len(src.Agents)),
	}
	for id, p := range src.Agents {
		dst.Agents[id] = p
	}
	return dst
}
