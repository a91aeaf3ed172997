package provider

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

const (
	IpApiKind     = "ip-api"
	IpApiName     = "ip-api.com"
	IpApiEndpoint = "http://ip-api.com/json/"
)

func init() {
	RegisterFactory(IpApiKind, newIpApiFromConfig)
}

// Settings configures a built-in provider instance.
type Settings struct {
	// URL overrides the provider's fixed endpoint.
	URL string `yaml:"url"`
}

// NewIpApiSource returns the ip-api.com provider, which reports the caller's
// address in the "query" field.
func NewIpApiSource(logger *zap.Logger, client *http.Client, url string) Provider {
	if url == "" {
		url = IpApiEndpoint
	}
	return &jsonFieldSource{
		name:   IpApiName,
		kind:   IpApiKind,
		url:    url,
		field:  "query",
		client: client,
		logger: logger,
	}
}

func newIpApiFromConfig(logger *zap.Logger, client *http.Client, cfg config.ProviderConfig) (Provider, error) {
	var settings Settings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return NewIpApiSource(logger, client, settings.URL), nil
}
