package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pvchain/config"
	"pvchain/internal/messaging/consumer"
	"pvchain/internal/messaging/producer"
	ledger "pvchain/ledger/client"
	worker "pvchain/processing"
	"pvchain/storage/store"
)

const anchordConfigPath = "./config/anchord.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[ANCHORD] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Anchor Engine...")

	// 1. Load engine config
	cfg, err := config.LoadAnchordConfig(anchordConfigPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load anchord configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize dependencies
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MinConnections, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	logger.Println("Initializing ledger client using configuration files...")
	ledgerClient, err := ledger.NewLedgerClientFromFile(cfg.LedgerClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	// 3. Initialize the task queue. A mock broker address selects the
	// in-process queue, which keeps local development Kafka-free.
	var taskConsumer consumer.Consumer
	var taskProducer producer.Producer
	if len(cfg.KafkaConsumer.Brokers) > 0 && cfg.KafkaConsumer.Brokers[0] != "mock://local" {
		logger.Println("Initializing Kafka task queue...")
		kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.KafkaConsumer, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize Kafka consumer: %v", err)
		}
		taskConsumer = kafkaConsumer

		kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize Kafka producer: %v", err)
		}
		taskProducer = kafkaProducer
	} else {
		logger.Println("Initializing in-process task queue...")
		mock := consumer.NewMockConsumer(logger, 0)
		taskConsumer = mock
		taskProducer = consumer.NewMockProducer(mock)
	}
	defer taskConsumer.Close()
	defer taskProducer.Close()

	// 4. Create the worker and run the startup backfill scan
	w := worker.New(cfg.Worker, logger, dbStore, taskConsumer, taskProducer, ledgerClient)
	if err := w.Backfill(ctx, cfg.BackfillLimit); err != nil {
		logger.Printf("Warning: backfill scan failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	logger.Println("Anchor Engine started. Press Ctrl+C to stop.")

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	<-done
	logger.Println("Anchor Engine shut down gracefully.")
}
