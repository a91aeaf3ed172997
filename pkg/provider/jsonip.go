package provider

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

const (
	JsonIpKind     = "jsonip"
	JsonIpName     = "jsonip.com"
	JsonIpEndpoint = "https://jsonip.com/"
)

func init() {
	RegisterFactory(JsonIpKind, newJsonIpFromConfig)
}

// NewJsonIpSource returns the jsonip.com provider, which reports the caller's
// address in the "ip" field.
func NewJsonIpSource(logger *zap.Logger, client *http.Client, url string) Provider {
	if url == "" {
		url = JsonIpEndpoint
	}
	return &jsonFieldSource{
		name:   JsonIpName,
		kind:   JsonIpKind,
		url:    url,
		field:  "ip",
		client: client,
		logger: logger,
	}
}

func newJsonIpFromConfig(logger *zap.Logger, client *http.Client, cfg config.ProviderConfig) (Provider, error) {
	var settings Settings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return NewJsonIpSource(logger, client, settings.URL), nil
}
