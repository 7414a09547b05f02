package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/admin"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/observability"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "parleyd.toml", "path to the server config file")
	writeConfig := flag.Bool("write-config", false, "write a starter config to -config and exit")
	force := flag.Bool("force", false, "overwrite an existing config with -write-config")
	flag.Parse()

	if *writeConfig {
		if err := config.WriteTemplate(*configPath, *force); err != nil {
			fmt.Fprintf(os.Stderr, "parleyd: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "parleyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.Name, observability.ProfileRuntime)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	chatCfg := chat.Config{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		SweepInterval:    cfg.SweepInterval(),
		WriteTimeout:     cfg.WriteTimeout(),
		StoreTimeout:     cfg.StoreTimeout(),
	}.WithDefaults()

	chatSrv := chat.NewServer(chatCfg, st)
	if err := chatSrv.Serve(cfg.ChatAddr); err != nil {
		return err
	}
	defer chatSrv.Shutdown()

	var validator auth.Validator
	if cfg.AdminToken != "" {
		validator = auth.StaticToken{Token: cfg.AdminToken}
	}
	adminSrv := admin.New(cfg.Name, chatSrv, cfg.CorsOrigins, validator)
	go func() {
		if err := adminSrv.Serve(cfg.AdminAddr); err != nil {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	return nil
}

func openStore(cfg config.ServerConfig) (store.Store, func(), error) {
	if cfg.DBPath == "" {
		log.Info().Msg("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", cfg.DBPath, err)
	}
	log.Info().Str("path", cfg.DBPath).Msg("using sqlite store")
	return st, func() { _ = st.Close() }, nil
}
