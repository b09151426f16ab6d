package external

import (
	"pagenotify/internal/cms"
	"pagenotify/internal/config"
	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// Registry holds the external collaborators the engine needs: the host
// platform adapter and the resolved mail transport. It is the single point
// of access for the rest of the application to talk to the outside world.
type Registry struct {
	Platform cms.Platform

	// Transport is nil when transport resolution failed; TransportErr then
	// carries the resolution error. The dispatch engine surfaces it per
	// rule instead of failing the whole process, so a misconfigured mailer
	// still produces a run report.
	Transport    mailer.Transport
	TransportErr error
}

// NewRegistry initializes the external collaborators. In the "local"
// environment the registry is populated with stub implementations that log
// actions without requiring real credentials. Otherwise the platform HTTP
// adapter and the configured mail provider transport are built.
func NewRegistry(cfg *config.Config, logger types.Logger) (*Registry, error) {
	if cfg.Environment == "local" {
		logger.Info("initializing external clients in STUB mode")
		stub := NewStubPlatform(logger.With("mode", "stub"))
		return &Registry{
			Platform: cms.Platform{
				Renderer:   stub,
				Membership: stub,
				Users:      stub,
			},
			Transport: NewStubTransport(logger.With("mode", "stub")),
		}, nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
		"mailer_provider", cfg.Mailer.Provider,
	)

	platform, err := NewCMSAPIClient(cfg.Platform, logger)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		Platform: cms.Platform{
			Renderer:   platform,
			Membership: platform,
			Users:      platform,
		},
	}

	// Transport misconfiguration is non-fatal here: the scheduler reports
	// it per rule and the events server does not need a transport at all.
	conf, err := cfg.Mailer.Conf()
	if err != nil {
		reg.TransportErr = err
		return reg, nil
	}
	spec, err := mailer.ResolveTransport(cfg.Mailer.Provider, conf)
	if err != nil {
		reg.TransportErr = err
		return reg, nil
	}
	transport, err := NewTransport(spec, logger)
	if err != nil {
		reg.TransportErr = err
		return reg, nil
	}
	reg.Transport = transport
	return reg, nil
}
