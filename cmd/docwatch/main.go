// Command docwatch prints the live state of a document or collection stored
// in a NATS KV bucket.
//
//	NATS_URL=nats://localhost:4222 BUCKET=docstream PATH_TO_WATCH=users MODE=collection docwatch
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewandler/docstream-go/adapters/nats"
	"github.com/codewandler/docstream-go/adapters/prometheus"
	"github.com/codewandler/docstream-go/core/path"
	"github.com/codewandler/docstream-go/core/result"
	"github.com/codewandler/docstream-go/core/service"
	"github.com/codewandler/docstream-go/core/stream"
)

// === Config ===

// NOTE: run nats: docker run --net=host nats:latest -js

var (
	bucket      = getEnv("BUCKET", "docstream")
	pathToWatch = getEnv("PATH_TO_WATCH", "")
	mode        = getEnv("MODE", "document")
	logLevel    = getEnv("LOG_LEVEL", "info")
	compress    = getEnvBool("COMPRESS", false)
	metricsAddr = getEnv("METRICS_ADDR", "")
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Doc is an untyped document.
type Doc = map[string]any

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))

	if err := run(log); err != nil {
		log.Error("docwatch failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	if pathToWatch == "" {
		return errors.New("PATH_TO_WATCH is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := nats.NewStore(nats.StoreConfig{
		Connect:  nats.ConnectDefault(),
		Bucket:   bucket,
		Compress: compress,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer func() { _ = store.Close() }()

	opts := []service.Option{service.WithLogger(log)}
	if metricsAddr != "" {
		reg := promclient.NewRegistry()
		opts = append(opts, service.WithMetrics(prometheus.NewServiceMetrics(reg)))
		go serveMetrics(ctx, log, reg)
	}
	svc := service.New(store, opts...)

	onError := func(err *result.DecodeError) {
		log.Warn("decode failed", slog.String("kind", err.Kind.String()), slog.Any("error", err))
	}

	var sub stream.Subscription
	switch mode {
	case "document":
		p, err := path.ParseDoc[Doc](pathToWatch)
		if err != nil {
			return err
		}
		sub, err = result.IfPresentHandlingErrors(service.ObserveDocument(svc, p), onError).
			Subscribe(ctx, func(doc *Doc) {
				if doc == nil {
					log.Info("document absent", slog.String("path", p.Render()))
					return
				}
				log.Info("document", slog.String("path", p.Render()), slog.Any("value", *doc))
			})
		if err != nil {
			return err
		}
	case "collection":
		p, err := path.ParseColl[Doc](pathToWatch)
		if err != nil {
			return err
		}
		sub, err = result.IfPresentHandlingErrors(service.ObserveCollection(svc, p), onError).
			Subscribe(ctx, func(docs *map[string]Doc) {
				if docs == nil {
					log.Info("collection empty", slog.String("path", p.Render()))
					return
				}
				log.Info("collection", slog.String("path", p.Render()), slog.Int("count", len(*docs)))
				for id, doc := range *docs {
					log.Info("item", slog.String("id", id), slog.Any("value", doc))
				}
			})
		if err != nil {
			return err
		}
	case "changes":
		p, err := path.ParseColl[Doc](pathToWatch)
		if err != nil {
			return err
		}
		sub, err = service.ObserveChanges(svc, p).Subscribe(ctx, func(c service.Change[Doc]) {
			if c.Err != nil {
				onError(c.Err)
				return
			}
			log.Info("change", slog.String("kind", c.Kind.String()), slog.String("id", c.ID), slog.Any("value", c.Value))
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown MODE %q (document, collection, changes)", mode)
	}
	defer sub.Cancel()

	log.Info("watching", slog.String("path", pathToWatch), slog.String("mode", mode), slog.String("bucket", bucket))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func serveMetrics(ctx context.Context, log *slog.Logger, reg *promclient.Registry) {
	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Info("serving metrics", slog.String("addr", metricsAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", slog.Any("error", err))
	}
}
