package substack

import (
	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
	"github.com/bindstack/bindstack/internal/config"
)

// Factory builds clients from service-wide settings plus per-job publication
// and credential. It implements job.ClientFactory.
type Factory struct {
	cfg    config.SubstackConfig
	logger *zap.Logger
}

// NewFactory constructs a Factory.
func NewFactory(cfg config.SubstackConfig, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// New returns a client bound to one publication.
func (f *Factory) New(publication, sessionCookie string) binder.ContentClient {
	return New(Config{
		Publication:   publication,
		SessionCookie: sessionCookie,
		UserAgent:     f.cfg.UserAgent,
		BatchSize:     f.cfg.BatchSize,
		BatchDelay:    f.cfg.BatchDelay(),
		MaxRetries:    f.cfg.MaxRetries,
		Timeout:       f.cfg.Timeout(),
		ImageTimeout:  f.cfg.ImageTimeout(),
	}, f.logger.Named("substack").With(zap.String("publication", publication)))
}
