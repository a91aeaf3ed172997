// Package provider defines the pluggable sources of the caller's public IP
// address and the immutable registry that maps short keys to them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v2"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

// ErrUnknownProvider is returned by Registry.Get for keys that were never registered.
var ErrUnknownProvider = errors.New("provider not found")

// Result is the outcome of a single fetch. A Result without an IP is a failed
// lookup; Err carries the reason for logging only.
type Result struct {
	IP  string
	Err error
}

// OK reports whether the fetch produced an IP address.
func (r Result) OK() bool {
	return r.IP != "" && r.Err == nil
}

// failure builds a failed Result from a formatted reason.
func failure(format string, args ...any) Result {
	return Result{Err: fmt.Errorf(format, args...)}
}

// Provider fetches the current external IP address from a third-party endpoint.
// Fetch never returns an error: every failure is folded into a non-OK Result.
type Provider interface {
	// Name is the human readable provider name reported to clients, e.g. "ip-api.com".
	Name() string
	// Kind is the provider type used in configuration, e.g. "ip-api".
	Kind() string
	Fetch(ctx context.Context) Result
}

// Factory builds a provider from its configuration entry.
type Factory func(logger *zap.Logger, client *http.Client, cfg config.ProviderConfig) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory associates a provider kind with a factory. It panics on empty
// or duplicate kinds since registration happens from init functions.
func RegisterFactory(kind string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if kind == "" {
		panic("provider factory kind cannot be empty")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("provider factory for '%s' is already registered", kind))
	}
	factories[kind] = factory
}

func getFactory(kind string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// Registry is the fixed key → provider mapping built at startup. It is never
// mutated after BuildRegistry returns, so concurrent reads need no locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry wraps an already built key → provider mapping.
func NewRegistry(providers map[string]Provider) *Registry {
	copied := make(map[string]Provider, len(providers))
	for k, p := range providers {
		copied[k] = p
	}
	return &Registry{providers: copied}
}

// BuildRegistry creates every enabled provider from configuration.
func BuildRegistry(logger *zap.Logger, client *http.Client, configurations []config.ProviderConfig) (*Registry, error) {
	providers := make(map[string]Provider, len(configurations))
	for _, configuration := range configurations {
		if !configuration.IsEnabled() {
			continue
		}
		if configuration.Name == "" {
			return nil, errors.New("provider name cannot be empty")
		}
		if _, exists := providers[configuration.Name]; exists {
			return nil, fmt.Errorf("provider '%s' is defined more than once", configuration.Name)
		}

		factory, ok := getFactory(configuration.Type)
		if !ok {
			return nil, fmt.Errorf("provider '%s' is of unknown type '%s'", configuration.Name, configuration.Type)
		}

		p, err := factory(logger.With(zap.String("provider_key", configuration.Name), zap.String("provider_type", configuration.Type)), client, configuration)
		if err != nil {
			return nil, fmt.Errorf("could not build provider '%s' of type '%s': %w", configuration.Name, configuration.Type, err)
		}
		providers[configuration.Name] = p
	}
	return &Registry{providers: providers}, nil
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[key]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewHTTPClient returns the client shared by all providers. The timeout bounds
// the whole exchange including reading the body.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// decodeSettings marshals the untyped settings map into target using YAML.
func decodeSettings(settings map[string]any, target any) error {
	if settings == nil {
		return nil
	}
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, target)
}
