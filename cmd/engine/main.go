package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/rawblock/muletrace-engine/internal/alerts"
	"github.com/rawblock/muletrace-engine/internal/api"
	"github.com/rawblock/muletrace-engine/internal/config"
	"github.com/rawblock/muletrace-engine/internal/db"
	"github.com/rawblock/muletrace-engine/internal/graphstore"
	"github.com/rawblock/muletrace-engine/internal/pipeline"
	"github.com/rawblock/muletrace-engine/internal/stream"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

func main() {
	// Local development loads settings from a .env file; in production the
	// environment is injected by the orchestrator and the file is absent.
	_ = godotenv.Load()

	log.Println("Starting RawBlock Mule Trace Engine (Microservice: txn-graph-mule-analytics)...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}

	pipe, err := pipeline.New(cfg.Caps,
		pipeline.WithParseWorkers(cfg.ParseWorkers),
		pipeline.WithSuppression(cfg.Suppression),
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to build pipeline: %v", err)
	}

	// Optional persistence. The engine analyzes fine without a database; it
	// just loses run history across restarts.
	var dbConn *db.PostgresStore
	if cfg.DatabaseURL != "" {
		dbConn, err = db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting run history. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set, run history persistence disabled")
	}

	// Optional investigator graph export.
	var exporter *graphstore.Exporter
	if cfg.Graph.URI != "" {
		client, err := graphstore.NewNeo4jClient(context.Background(), graphstore.Options{
			URI:            cfg.Graph.URI,
			Database:       cfg.Graph.Database,
			Username:       cfg.Graph.Username,
			Password:       cfg.Graph.Password,
			MaxConnections: cfg.Graph.MaxConnections,
		})
		if err != nil {
			log.Printf("Warning: Failed to connect to graph store, continuing without graph export. Error: %v", err)
		} else {
			defer client.Close(context.Background())
			exporter = graphstore.NewExporter(client)
		}
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	alertMgr := alerts.NewManager(cfg.Alerts.RiskThreshold, wsHub.BroadcastAlert)
	if cfg.Alerts.WebhookURL != "" {
		alertMgr.RegisterWebhook("default", cfg.Alerts.WebhookURL, cfg.Alerts.MinSeverity, nil)
	}

	// Every completed run, batch or streamed, flows through here.
	onResult := func(result *models.Result) {
		wsHub.BroadcastResult(result)
		alertMgr.EmitFromResult(result)

		if dbConn != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := dbConn.SaveRun(ctx, result); err != nil {
					log.Printf("Failed to save analysis run to DB: %v", err)
				}
			}()
		}

		if exporter != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				defer cancel()
				if err := exporter.ExportRun(ctx, result); err != nil {
					log.Printf("Failed to export run to graph store: %v", err)
				}
			}()
		}
	}

	runner := stream.NewRunner(pipe, cfg.FlushInterval, onResult)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	limiter := api.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)

	// Setup the Gin Router
	r := api.SetupRouter(pipe, runner, dbConn, alertMgr, wsHub, limiter)

	// Start the server
	log.Printf("Engine running on :%s (API Node: txn-graph-mule-analytics)\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
