package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pvchain/approval"
	"pvchain/cas"
	"pvchain/config"
	core "pvchain/gateway/service/core"
	httphandler "pvchain/gateway/service/http"
	"pvchain/internal/events"
	"pvchain/internal/messaging/producer"
	ledger "pvchain/ledger/client"
	"pvchain/storage/store"
	"pvchain/verify"
)

const gatewayConfigPath = "./config/gateway.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Report Gateway...")

	// 1. Load gateway configuration
	cfg, err := config.LoadGatewayConfig(gatewayConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load gateway configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize dependencies
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MinConnections, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	logger.Println("Initializing snapshot store client...")
	casClient, err := cas.NewMinioClient(cas.MinioOptions{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		UseSSL:    cfg.ObjectStore.UseSSL,
		Bucket:    cfg.ObjectStore.Bucket,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize snapshot store client: %v", err)
	}
	defer casClient.Close()

	logger.Println("Initializing ledger client...")
	ledgerClient, err := ledger.NewLedgerClientFromFile(cfg.LedgerClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	// The anchor retry queue is optional: without it, failed anchors rely on
	// the manual retry endpoint and the engine's backfill scan.
	var taskProducer producer.Producer
	if len(cfg.KafkaProducer.Brokers) > 0 {
		logger.Println("Initializing Kafka producer...")
		kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer kafkaProducer.Close()
		taskProducer = kafkaProducer
	} else {
		logger.Println("kafka_producer.brokers not configured, anchor retries will not be enqueued.")
	}

	// 3. Assemble services
	storageTimeout, err := time.ParseDuration(cfg.Approval.StorageTimeout)
	if err != nil {
		logger.Fatalf("Invalid approval.storage_timeout: %v", err)
	}
	anchorTimeout, err := time.ParseDuration(cfg.Approval.AnchorTimeout)
	if err != nil {
		logger.Fatalf("Invalid approval.anchor_timeout: %v", err)
	}

	pipeline := approval.New(approval.Options{
		Store:          dbStore,
		CAS:            casClient,
		Ledger:         ledgerClient,
		Producer:       taskProducer,
		Emitter:        events.NewLogEmitter(logger),
		Logger:         logger,
		StorageTimeout: storageTimeout,
		AnchorTimeout:  anchorTimeout,
	})
	verifier := verify.NewEngine(dbStore, ledgerClient, logger, 0)
	coreService := core.NewService(dbStore, logger)
	handler := httphandler.NewHandler(coreService, pipeline, verifier, logger)

	// 4. HTTP server
	mux := http.NewServeMux()
	handler.Register(mux)

	readTimeout := cfg.HttpServer.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}
	writeTimeout := cfg.HttpServer.WriteTimeout
	if writeTimeout == 0 {
		// Approvals wait for ledger confirmation, so the write timeout must
		// exceed the anchor timeout.
		writeTimeout = anchorTimeout + 15*time.Second
	}
	idleTimeout := cfg.HttpServer.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	maxHeaderBytes := cfg.HttpServer.MaxHeaderBytes
	if maxHeaderBytes == 0 {
		maxHeaderBytes = 1 << 20 // 1 MB
	}

	httpServer := &http.Server{
		Addr:           cfg.HttpListenAddr,
		Handler:        mux,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server startup failed: %v", err)
		}
		logger.Println("HTTP server stopped listening.")
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, starting graceful shutdown of Report Gateway...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown failed: %v", err)
	} else {
		logger.Println("HTTP server shutdown.")
	}

	wg.Wait()
	logger.Println("Report Gateway shutdown.")
}
