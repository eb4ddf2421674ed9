package graph

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/driver"
)

type Kind string

const (
	KindDisabled Kind = "disabled"
	KindLocal    Kind = "local"
	KindManaged  Kind = "managed"
)

// Selection is the graph backend chosen at startup. Adapter is nil when Kind is disabled.
type Selection struct {
	Kind    Kind
	Adapter Adapter
}

func (s Selection) Enabled() bool { return s.Adapter != nil }

// Choose decides the backend from configuration alone.
func Choose(cfg config.GraphConfig) Kind {
	switch {
	case !cfg.Enabled:
		return KindDisabled
	case cfg.ManagedHost != "":
		return KindManaged
	default:
		return KindLocal
	}
}

// Select connects the chosen backend.
func Select(ctx context.Context, cfg config.GraphConfig, log *zap.Logger) (Selection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	kind := Choose(cfg)
	if kind == KindDisabled {
		log.Info("graph augmentation disabled")
		return Selection{Kind: KindDisabled}, nil
	}

	ns, err := NewNamespace(cfg.EnvPrefix)
	if err != nil {
		return Selection{}, err
	}

	var adapter Adapter
	switch kind {
	case KindManaged:
		creds, err := managedCredentials(ctx, cfg)
		if err != nil {
			return Selection{}, err
		}
		adapter, err = NewManaged(ManagedOptions{
			Endpoint:    cfg.ManagedHost,
			Port:        cfg.ManagedPort,
			Region:      cfg.ManagedRegion,
			Credentials: creds,
			Insecure:    cfg.ManagedInsecure,
		}, ns, log)
		if err != nil {
			return Selection{}, err
		}
	case KindLocal:
		drv, err := driver.NewBoltDriver(ctx, cfg.URI, cfg.User, cfg.Password, log)
		if err != nil {
			return Selection{}, fmt.Errorf("connect local graph: %w", err)
		}
		adapter, err = NewLocal(ctx, drv, ns, log)
		if err != nil {
			_ = drv.Close(ctx)
			return Selection{}, err
		}
	}

	log.Info("graph backend selected", zap.String("kind", string(kind)), zap.String("env_prefix", ns.Prefix()))
	return Selection{Kind: kind, Adapter: adapter}, nil
}

func managedCredentials(ctx context.Context, cfg config.GraphConfig) (aws.CredentialsProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.ManagedRegion)}
	if cfg.ManagedAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ManagedAccessKey, cfg.ManagedSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg.Credentials, nil
}
