package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yonalabs/commerce-relay/internal/server"
	"github.com/yonalabs/commerce-relay/pkg/client"
	"github.com/yonalabs/commerce-relay/pkg/configuration"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if conf.Database.Enabled {
		poolCtx, cancel := context.WithTimeout(ctx, time.Second*5)
		p, err := pgxpool.New(poolCtx, conf.Database.Opts)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("failed to create database pool, event log disabled")
		} else {
			pool = p
			defer pool.Close()
		}
	}

	coreService, err := client.NewCoreService(client.Options{
		URL:     conf.CoreService.URL,
		APIKey:  conf.CoreService.APIKey,
		Timeout: conf.CoreService.Timeout,
		Logger:  logger.WithField("component", "core-client"),
	})
	if err != nil {
		log.Fatalf("failed to create core service client: %v", err)
	}

	srv, pipeline, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Pool:          pool,
		CoreService:   coreService,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	go func() {
		if err := pipeline.Run(ctx, logger); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("pipeline stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("server shutdown failed")
		}
	}()

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := srv.Start(conf.SocketAddress); err != nil {
		logger.WithError(err).Info("server stopped")
	}
}
