package config

import (
	"fmt"
	"net/mail"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
)

// Validate checks a configuration after defaults were applied.
func Validate(cfg *Config) error {
	if cfg.Notifications.ProductionDomain == "" {
		return dherrors.ConfigRequired("notifications.production_domain")
	}
	if cfg.Notifications.FromAddress == "" {
		return dherrors.ConfigRequired("notifications.from_address")
	}
	if _, err := mail.ParseAddress(cfg.Notifications.FromAddress); err != nil {
		return dherrors.ValidationFailed("notifications.from_address", err.Error())
	}
	if cfg.Notifications.WebhookRate < 0 {
		return dherrors.ValidationFailed("notifications.webhook_rate", "must not be negative")
	}

	switch cfg.Mail.Backend {
	case MailBackendOutbox:
	case MailBackendSMTP:
		if cfg.Mail.Host == "" {
			return dherrors.ConfigRequired("mail.host")
		}
		if cfg.Mail.Port <= 0 || cfg.Mail.Port > 65535 {
			return dherrors.ValidationFailed("mail.port", fmt.Sprintf("invalid port %d", cfg.Mail.Port))
		}
	default:
		return dherrors.ValidationFailed("mail.backend", fmt.Sprintf("unsupported backend %q", cfg.Mail.Backend))
	}

	if cfg.NATS.Enabled && cfg.NATS.Subject == "" {
		return dherrors.ConfigRequired("nats.subject")
	}
	if err := cfg.NATS.Retry.Validate(); err != nil {
		return dherrors.ValidationFailed("nats.retry", err.Error())
	}
	if cfg.Builds.SweepInterval > cfg.Builds.InactiveTimeout {
		return dherrors.ValidationFailed("builds.sweep_interval", "must not exceed builds.inactive_timeout")
	}
	return nil
}
