package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mindvault/internal/logging"
)

// ModeSettings is the slice of the settings layer the resolver reads.
type ModeSettings interface {
	GetString(key string) string
}

// Resolver picks a client per the llm.mode setting:
//
//	local: local server only, error when unreachable
//	api:   hosted API only
//	auto:  probe the local server, fall back to the hosted API
//
// Settings are re-read on every Resolve so mode changes apply without a
// restart.
type Resolver struct {
	settings ModeSettings
	events   *logging.EventLogger
}

// NewResolver builds the client resolver.
func NewResolver(settings ModeSettings, events *logging.EventLogger) *Resolver {
	return &Resolver{settings: settings, events: events}
}

// Resolve returns the client for the current configuration.
func (r *Resolver) Resolve(ctx context.Context) (Client, error) {
	mode := r.settings.GetString("llm.mode")
	local := NewOllamaClient(r.settings.GetString("llm.local_url"), r.settings.GetString("llm.local_model"))
	hosted := NewOpenAIClient(
		r.settings.GetString("llm.api_url"),
		r.settings.GetString("llm.api_key"),
		r.settings.GetString("llm.api_model"),
	)

	switch mode {
	case "local":
		if !local.Healthy(ctx) {
			return nil, fmt.Errorf("llm.mode=local but local model server is unreachable")
		}
		return local, nil
	case "api":
		return hosted, nil
	default: // auto
		if local.Healthy(ctx) {
			return local, nil
		}
		r.events.Event(logging.EventLLMFallback, "", map[string]any{
			"from": local.Name(), "to": hosted.Name(),
		})
		r.events.Zap().Info("local model unreachable, using hosted API",
			zap.String("client", hosted.Name()))
		return hosted, nil
	}
}
