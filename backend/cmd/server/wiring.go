package main

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/discord"
	"pizza-phone-agent/backend/internal/graph"
	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/sink"
	"pizza-phone-agent/backend/pkg/config"
)

// sinkSet is the order hand-off chain plus the handles main needs to keep.
type sinkSet struct {
	Fanout *sink.Fanout
	Graph  *graph.Repository

	closers []func()
}

// Close releases sink connections in reverse order of creation.
func (s *sinkSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildMenuProvider(ctx context.Context, cfg *config.Config, log *zap.Logger) menu.Provider {
	if cfg.MenuSheetURL == "" {
		log.Info("No menu sheet configured, serving built-in menu")
		return menu.NewStaticProvider(nil)
	}
	provider := menu.NewCachedProvider(
		menu.NewSheetSource(cfg.MenuSheetURL, nil),
		time.Duration(cfg.MenuCacheTTL)*time.Second,
		time.Duration(cfg.MenuFetchTimeout)*time.Second,
		nil,
		log.With(zap.String("component", "menu")),
	)
	go provider.Warm(ctx)
	return provider
}

// buildSinks assembles the fan-out. The spreadsheet and POS are required
// when configured; the customer graph and kitchen channel are best-effort.
// With no required sink the order is written to the log so it is never lost
// silently.
func buildSinks(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sinkSet, error) {
	set := &sinkSet{Fanout: sink.NewFanout(log)}
	required := 0

	if cfg.GoogleSheetsID != "" {
		creds, err := sink.SheetsCredentials(cfg)
		if err != nil {
			return nil, err
		}
		sheets, err := sink.NewSheetsSink(ctx, sink.SheetsOptions{
			SpreadsheetID: cfg.GoogleSheetsID,
			Range:         cfg.GoogleSheetsRange,
			ClientOptions: []option.ClientOption{option.WithCredentialsJSON(creds)},
		}, log)
		if err != nil {
			return nil, err
		}
		if err := sheets.EnsureHeaders(ctx); err != nil {
			log.Warn("Could not write sheet headers", zap.Error(err))
		}
		set.Fanout.Add(sheets, true)
		required++
	}

	if cfg.POSWebhookURL != "" {
		set.Fanout.Add(sink.NewPOSSink(cfg.POSWebhookURL, cfg.POSAPIKey, nil, log), true)
		required++
	}

	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			return nil, err
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Warn("Neo4j unreachable, customer graph disabled", zap.Error(err))
			_ = driver.Close(ctx)
		} else {
			repo := graph.NewRepository(driver)
			if err := repo.EnsureSchema(ctx); err != nil {
				log.Warn("Failed to ensure graph schema", zap.Error(err))
			}
			set.Graph = repo
			set.Fanout.Add(repo, false)
			set.closers = append(set.closers, func() { _ = repo.Close() })
		}
	}

	if cfg.DiscordBotToken != "" && cfg.DiscordOrdersChannelID != "" {
		dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
		if err != nil {
			return nil, err
		}
		set.Fanout.Add(discord.NewKitchen(dg, cfg.DiscordOrdersChannelID, log), false)
	}

	if required == 0 {
		log.Warn("No order sink configured, orders will only be logged")
		set.Fanout.Add(sink.NewLogSink(log), true)
	}
	return set, nil
}

// buildCallLog opens Postgres when configured and falls back to an
// in-memory log otherwise.
func buildCallLog(ctx context.Context, cfg *config.Config, log *zap.Logger) (calllog.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, call log kept in memory")
		return calllog.NewMemoryStore(), func() {}
	}

	store, err := calllog.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to open call log", zap.Error(err))
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate call log", zap.Error(err))
	}
	return store, store.Close
}
