package rules

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the persistence backend for the rules config. It is nil when no
// database is configured, in which case the file is the only source.
type Store interface {
	LoadConfig() (map[string]interface{}, error)
	SaveConfig(map[string]interface{}) error
}

// Service owns the cached rule config and its two sources: a config file
// and an optional database row. File entries win on key collision.
type Service struct {
	mu       sync.RWMutex
	cache    Config
	filePath string
	store    Store
}

// NewService creates an empty service; call Bootstrap before use.
func NewService(filePath string, store Store) *Service {
	return &Service{
		cache:    make(Config),
		filePath: filePath,
		store:    store,
	}
}

// Bootstrap loads the initial config. With a store configured it merges the
// file config over the persisted one (file wins), validates the result,
// writes it back, and caches it. Without a store the file is authoritative.
func (s *Service) Bootstrap() error {
	fileCfg, fileErr := s.loadFile()
	if fileErr != nil {
		log.Printf("rules: config file unavailable: %v", fileErr)
	}

	if s.store == nil {
		if fileErr != nil {
			return fileErr
		}
		s.setCache(fileCfg)
		log.Printf("rules: loaded %d rules from file", len(fileCfg))
		return nil
	}

	persistedRaw, err := s.store.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load persisted config: %w", err)
	}
	persisted, err := Validate(persistedRaw)
	if err != nil {
		log.Printf("rules: persisted config invalid, ignoring: %v", err)
		persisted = make(Config)
	}

	merged := make(Config, len(persisted)+len(fileCfg))
	for name, rule := range persisted {
		merged[name] = rule
	}
	for name, rule := range fileCfg {
		merged[name] = rule
	}

	if err := s.store.SaveConfig(ToRaw(merged)); err != nil {
		return fmt.Errorf("failed to persist merged config: %w", err)
	}

	s.setCache(merged)
	log.Printf("rules: loaded %d rules (%d persisted, %d from file)",
		len(merged), len(persisted), len(fileCfg))
	return nil
}

// Lookup returns the rule for an alert name from the cached config.
func (s *Service) Lookup(name string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.cache[name]
	return r, ok
}

// Snapshot returns a copy of the cached config.
func (s *Service) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Config, len(s.cache))
	for name, rule := range s.cache {
		out[name] = rule
	}
	return out
}

// ReloadFromFile re-reads and validates the config file. On any error the
// cache is left untouched. Returns the number of entries loaded.
func (s *Service) ReloadFromFile() (int, error) {
	cfg, err := s.loadFile()
	if err != nil {
		return 0, err
	}
	s.setCache(cfg)
	log.Printf("rules: reloaded %d rules from file", len(cfg))
	return len(cfg), nil
}

// Push validates a config document, persists it when a store is configured,
// and then updates the cache. Validation failure leaves both untouched.
func (s *Service) Push(raw map[string]interface{}) error {
	cfg, err := Validate(raw)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.SaveConfig(ToRaw(cfg)); err != nil {
			return fmt.Errorf("failed to persist config: %w", err)
		}
	}

	s.setCache(cfg)
	log.Printf("rules: pushed config with %d rules", len(cfg))
	return nil
}

func (s *Service) setCache(cfg Config) {
	s.mu.Lock()
	s.cache = cfg
	s.mu.Unlock()
}

// loadFile reads and validates the config file. The file is parsed as YAML
// which also accepts JSON documents.
func (s *Service) loadFile() (Config, error) {
	if s.filePath == "" {
		return make(Config), nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, invalidf("config file is not valid YAML/JSON: %v", err)
	}

	return Validate(raw)
}
