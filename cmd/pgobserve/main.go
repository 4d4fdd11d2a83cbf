package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ovoronin/pgobserve/internal/audit"
	"github.com/ovoronin/pgobserve/internal/collector"
	"github.com/ovoronin/pgobserve/internal/config"
	"github.com/ovoronin/pgobserve/internal/handler"
	"github.com/ovoronin/pgobserve/internal/history"
	models "github.com/ovoronin/pgobserve/internal/model"
	"github.com/ovoronin/pgobserve/internal/osmetrics"
)

// setupAudit wires the cycle audit pipeline when any audit destination is
// configured. Returns nil when auditing is off.
func setupAudit(cfg *config.CollectorConfig, logger *zap.SugaredLogger) audit.CycleLogger {
	if cfg.AuditFile == "" && cfg.AuditURL == "" {
		return nil
	}

	source := make(chan models.CycleEvent, 16)
	var subs []chan<- models.CycleEvent
	if cfg.AuditFile != "" {
		fileChan := make(chan models.CycleEvent, 16)
		subs = append(subs, fileChan)
		go audit.FileSubscriber(fileChan, cfg.AuditFile, logger)
	}
	if cfg.AuditURL != "" {
		urlChan := make(chan models.CycleEvent, 16)
		subs = append(subs, urlChan)
		go audit.URLSubscriber(urlChan, cfg.AuditURL, logger)
	}
	go audit.Broadcaster(source, subs...)

	return audit.NewCycleLogger(cfg.DBKey, source, logger)
}

func serverVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version;").Scan(&version); err != nil {
		return "", err
	}
	// "14.5 (Ubuntu 14.5-1)" -> "14.5"
	if i := strings.IndexByte(version, ' '); i > 0 {
		version = version[:i]
	}
	return version, nil
}

// runCycle drives one full observation cycle. The statistics reset inside
// CollectTableRecords is the last read-affecting operation, so every other
// collection runs before it.
func runCycle(ctx context.Context, c *collector.Collector, cfg *config.CollectorConfig, logger *zap.SugaredLogger) (*models.Summary, error) {
	summary := &models.Summary{
		DBKey:          cfg.DBKey,
		OrganizationID: cfg.OrganizationID,
		Version:        c.Version(),
	}

	knobs, err := c.CollectKnobs(ctx)
	if err != nil {
		return nil, err
	}
	summary.Knobs = knobs

	rowStats, err := c.CollectRowStats(ctx)
	if err != nil {
		return nil, err
	}
	summary.RowStats = rowStats

	if !cfg.DisableTableStats {
		tables, err := c.TargetTables(ctx, cfg.NumTablesToCollect)
		if err != nil {
			return nil, err
		}
		summary.TableMetrics, err = c.CollectTableMetrics(ctx, tables)
		if err != nil {
			return nil, err
		}
		if !cfg.DisableIndexStats {
			// index stats failing must not abort table stats collected in
			// the same cycle
			indexMetrics, err := c.CollectIndexMetrics(ctx, tables, cfg.NumIndexesToCollect)
			if err != nil {
				logger.Errorf("failed to collect index metrics: %v", err)
			} else {
				summary.IndexMetrics = indexMetrics
			}
		}
	}

	records, err := c.CollectTableRecords(ctx)
	if err != nil {
		return nil, err
	}
	summary.Metrics = append(records, osmetrics.Collect(logger))

	return summary, nil
}

func main() {
	cfg, err := config.NewCollectorConfig()
	if err != nil {
		log.Fatal("Failed to parse configuration: ", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("failed to open database connection: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("failed to ping database: %v", err)
	}

	version, err := serverVersion(ctx, db)
	if err != nil {
		logger.Fatalf("failed to read server version: %v", err)
	}
	logger.Infof("connected to postgres %s", version)

	c := collector.New(collector.NewCatalogQuery(db), version, logger)
	observations := history.NewLog(cfg.HistoryLimit)
	auditor := setupAudit(cfg, logger)

	go func() {
		// cycles are strictly sequential: the ticker goroutine is the only
		// place a cycle ever starts
		for {
			start := time.Now()
			summary, err := runCycle(ctx, c, cfg, logger)
			if err != nil {
				logger.Errorf("collection cycle failed: %v", err)
			} else {
				observations.Add(summary)
				if auditor != nil {
					auditor.Log(len(summary.Metrics), time.Since(start))
				}
				logger.Infow("collection cycle finished", "records", len(summary.Metrics))
			}
			time.Sleep(time.Duration(cfg.CollectInterval) * time.Second)
		}
	}()

	go func() {
		if err := http.ListenAndServe(cfg.Address, handler.Router(observations, db, logger)); err != nil {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	// Block until signal received
	<-sigChan
	logger.Info("Shutting down...")
}
