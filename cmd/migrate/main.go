package main

import (
	"context"
	"flag"

	"classattend/internal/config"
	"classattend/internal/logger"
	"classattend/internal/store"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db, err := store.NewDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	m, err := store.NewMigrator(db.Client, cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("migrator init failed")
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatal().Err(err).Msg("read schema version")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations done")
}
