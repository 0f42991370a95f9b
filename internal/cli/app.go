package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/internal/config"
	"github.com/mgpai22/equibasket/internal/logger"
	"github.com/mgpai22/equibasket/internal/service"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
)

// app is the wired process: configuration, logger, ledger snapshot, audit
// trail and builder.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	snapshot *ledger.Snapshot
	audit    *audit.Recorder
	builder  *txbuilder.Builder
	svc      *service.Service
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openAudit returns a recorder that continues the stored sequence when a
// LevelDB path is configured.
func openAudit(cfg *config.Config, log *zap.Logger) (*audit.Recorder, error) {
	opts := []audit.Option{audit.WithRetention(cfg.Audit.Retention)}
	if cfg.Audit.Path != "" {
		sink, err := audit.OpenLevelDB(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		last, err := sink.LastSeq()
		if err != nil {
			sink.Close()
			return nil, err
		}
		opts = append(opts, audit.WithSink(sink), audit.WithStartSeq(last))
	}
	return audit.NewRecorder(log, opts...), nil
}

func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	builderCfg, err := cfg.BuilderConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid builder configuration: %w", err)
	}
	snapshot, err := ledger.LoadSnapshot(cfg.Ledger.SnapshotPath, log)
	if err != nil {
		return nil, err
	}
	rec, err := openAudit(cfg, log)
	if err != nil {
		return nil, err
	}
	b, err := txbuilder.New(builderCfg, snapshot, rec, log,
		txbuilder.WithBasketCacheSize(cfg.Protocol.BasketCacheSize))
	if err != nil {
		rec.Close()
		return nil, err
	}
	svc := service.New(b, service.RetryPolicy{
		MaxTries:        cfg.Submit.MaxTries,
		InitialInterval: cfg.Submit.InitialInterval,
		MaxInterval:     cfg.Submit.MaxInterval,
	}, log)
	return &app{cfg: cfg, logger: log, snapshot: snapshot, audit: rec, builder: b, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("Failed to close audit store", zap.Error(err))
	}
	a.logger.Sync()
}
