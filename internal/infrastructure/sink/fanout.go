package sink

import (
	"fmt"
	"log/slog"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// FromConfig instantiates the enabled sinks in configuration order. An
// empty sink set is a configuration error: distribution with nowhere to
// write must fail loudly at startup, not report success per job.
func FromConfig(cfg config.SinksConfig, logger *slog.Logger) ([]ports.Sink, error) {
	if len(cfg.Enabled) == 0 {
		return nil, fmt.Errorf("no sinks enabled")
	}

	sinks := make([]ports.Sink, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		switch name {
		case "airtable":
			sinks = append(sinks, NewAirtableSink(cfg.Airtable, logger))
		case "archive":
			sinks = append(sinks, NewArchiveSink(cfg.Archive, logger))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}
