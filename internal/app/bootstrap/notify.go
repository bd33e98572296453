package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// BuildEmailSender prefers SendGrid, then SES, and otherwise logs emails.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		logger.Info("email via sendgrid", "from", cfg.SendGridFromEmail)
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" && awsCfg != nil {
		logger.Info("email via ses", "from", cfg.SESFromEmail)
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	logger.Warn("no email provider configured; confirmation emails are logged only")
	return notify.NewStubEmailSender(logger)
}

// BuildSink fans notifications out to the log and any extra sinks.
func BuildSink(logger *logging.Logger, extra ...notify.Sink) notify.Sink {
	sinks := notify.MultiSink{notify.NewLogSink(logger)}
	for _, s := range extra {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	return sinks
}
