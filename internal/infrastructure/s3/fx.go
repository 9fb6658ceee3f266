package s3

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
)

// Module provides the S3/MinIO client for fx DI
var Module = fx.Module("s3",
	fx.Provide(NewClientFx),
)

// NewClientFx creates the S3 client. It returns nil when S3 is not configured,
// and consumers skip off-host backups in that case.
func NewClientFx(lc fx.Lifecycle, s3Cfg *config.S3Config, logger zerolog.Logger) (*Client, error) {
	if !s3Cfg.Enabled() {
		logger.Info().Msg("S3 endpoint not configured, backups stay local")
		return nil, nil
	}

	client, err := NewClient(&Config{
		Endpoint:  s3Cfg.Endpoint,
		AccessKey: s3Cfg.AccessKey,
		SecretKey: s3Cfg.SecretKey,
		Bucket:    s3Cfg.Bucket,
		UseSSL:    s3Cfg.UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info().Msg("initializing S3/MinIO client...")
			if err := client.EnsureBucket(ctx); err != nil {
				// Backups are optional; a missing bucket must not block startup
				logger.Warn().Err(err).Msg("S3 bucket check failed")
				return nil
			}
			logger.Info().Msg("S3/MinIO client initialized successfully")
			return nil
		},
	})

	return client, nil
}
