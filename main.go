package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/eventanalytics/analytics"
	"hermannm.dev/eventanalytics/api"
	"hermannm.dev/eventanalytics/config"
	"hermannm.dev/eventanalytics/cost"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/eventanalytics/db/bigquery"
	"hermannm.dev/eventanalytics/db/clickhouse"
	"hermannm.dev/wrap"
)

func main() {
	conf, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}

	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: conf.LogLevel.SlogLevel()})
	slog.SetDefault(slog.New(logHandler))

	warehouse, err := initializeWarehouse(context.Background(), conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize warehouse")
		os.Exit(1)
	}

	tables, err := configuredTables(conf.Tables())
	if err != nil {
		log.ErrorCause(err, "invalid table configuration")
		os.Exit(1)
	}

	if verifier, ok := warehouse.(db.TableVerifier); ok {
		if err := verifyTables(context.Background(), verifier, tables); err != nil {
			log.ErrorCause(err, "table verification failed")
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tracker := cost.NewTracker(conf.Query.BudgetBytes, cost.NewMetrics(registry))
	client := analytics.NewClient(warehouse, tables, tracker, analytics.Options{
		PreflightEstimate: conf.Query.PreflightEstimate,
		MaxBytesBilled:    conf.Query.MaxBytesBilled,
	})

	analysisAPI := api.NewAnalysisAPI(client, registry, http.NewServeMux(), conf.API)

	log.Infof("listening on port %s", conf.API.Port)
	if err := analysisAPI.ListenAndServe(); err != nil {
		log.ErrorCause(err, "server stopped")
		os.Exit(1)
	}
}

func initializeWarehouse(ctx context.Context, conf config.Config) (analytics.Warehouse, error) {
	switch conf.DB {
	case config.DBBigQuery:
		log.Infof("connecting to BigQuery project %s", conf.BigQuery.ProjectID)
		return bigquery.NewBigQueryDB(ctx, conf.BigQuery)
	case config.DBClickHouse:
		log.Infof("connecting to ClickHouse at %s", conf.ClickHouse.Address)
		return clickhouse.NewClickHouseDB(conf.ClickHouse)
	default:
		return nil, wrap.Errorf(db.ErrNoWarehouse, "unsupported database '%s'", conf.DB)
	}
}

// configuredTables returns a table for each scope with a configured reference.
func configuredTables(conf config.Tables) ([]db.Table, error) {
	var tables []db.Table

	for _, table := range []struct {
		scope     db.TableScope
		reference string
	}{
		{db.ScopeEvents, conf.Events},
		{db.ScopeGKG, conf.GKG},
		{db.ScopeMentions, conf.Mentions},
	} {
		if table.reference == "" {
			continue
		}

		configured, err := db.NewTable(table.scope, table.reference, conf.TimeColumn)
		if err != nil {
			return nil, wrap.Errorf(err, "invalid %v table", table.scope)
		}
		tables = append(tables, configured)
	}

	return tables, nil
}

// verifyTables fails if a table or its time column is missing in the warehouse, and warns about
// other allow-listed columns that do not match, since queries on those fail at execution.
func verifyTables(ctx context.Context, verifier db.TableVerifier, tables []db.Table) error {
	for _, table := range tables {
		mismatched, err := verifier.VerifyTable(ctx, table)
		if err != nil {
			return wrap.Errorf(err, "failed to verify %v table '%s'", table.Scope, table.Reference)
		}

		if len(mismatched) != 0 {
			log.Warnf(
				"%v table '%s' does not match allow-listed columns: %s",
				table.Scope,
				table.Reference,
				strings.Join(mismatched, ", "),
			)
		} else {
			log.Debugf("verified %v table '%s'", table.Scope, table.Reference)
		}
	}

	return nil
}
