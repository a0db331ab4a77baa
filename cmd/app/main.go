package main

import (
	"flag"
	"log"
	"os"

	"ModelHub/internal/di"
	"ModelHub/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config; MODELHUB_* env vars override it")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("modelhub: load config: %v", err)
	}
	log.Printf("modelhub: env=%s store=%s redis=%t kafka=%t",
		cfg.Environment, cfg.Store.Driver, cfg.Redis.Enabled, cfg.Kafka.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("modelhub: init: %v", err)
	}
	// blocks until SIGINT/SIGTERM, then drains HTTP and Kafka
	if err := app.Run(); err != nil {
		log.Printf("modelhub: %v", err)
		os.Exit(1)
	}
}
