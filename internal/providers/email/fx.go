package email

import (
	"github.com/smallbiznis/reachway/internal/config"
	"go.uber.org/fx"
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.SMTP.Host == "" {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)
