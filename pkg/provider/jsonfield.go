package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// maxBodySize caps how much of a provider response is read.
const maxBodySize = 64 << 10

// jsonFieldSource fetches a JSON document from a fixed URL and extracts the IP
// address from one top-level string field. Both built-in provider kinds are
// instances of it that differ only in URL, field and name.
type jsonFieldSource struct {
	name   string
	kind   string
	url    string
	field  string
	client *http.Client
	logger *zap.Logger
}

func (s *jsonFieldSource) Name() string { return s.name }
func (s *jsonFieldSource) Kind() string { return s.kind }

// Fetch performs the outbound request. Transport errors, non-2xx statuses,
// undecodable bodies and missing or invalid fields all yield a failed Result.
func (s *jsonFieldSource) Fetch(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return failure("build request for %s: %w", s.url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return failure("request %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return failure("read response from %s: %w", s.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure("invalid response from %s: %s", s.url, resp.Status)
	}

	var document map[string]any
	if err := json.Unmarshal(body, &document); err != nil {
		return failure("decode response from %s: %w", s.url, err)
	}

	raw, ok := document[s.field].(string)
	if !ok {
		return failure("response from %s has no string field %q", s.url, s.field)
	}
	raw = strings.TrimSpace(raw)

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return failure("field %q from %s is not an IP address: %w", s.field, s.url, err)
	}

	s.logger.Debug("provider returned address", zap.String("ip", addr.String()))
	return Result{IP: addr.String()}
}
