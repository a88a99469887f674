package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"tsu-loot/internal/modules/loot/generator"
	redisClient "tsu-loot/internal/pkg/redis"
)

func main() {
	catalogPath := flag.String("catalog", "./configs/loot/catalog.yaml", "Loot catalog YAML path")
	ttl := flag.Duration("ttl", 0, "TTL for synced tables, 0 keeps them forever")
	dryRun := flag.Bool("dry-run", false, "Validate the catalog without writing to Redis")
	flag.Parse()

	catalog, err := generator.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	fmt.Printf("Catalog %s: %d tables, %d npc prototypes\n", *catalogPath, len(catalog.Tables), len(catalog.NPCs))

	if *dryRun {
		return
	}

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		port = p
	}
	db := 0
	if d, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		db = d
	}

	client, err := redisClient.NewClient(redisClient.Config{
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, "loot-table-sync")
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	n, err := generator.SyncTables(ctx, client, catalog, *ttl)
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}
	fmt.Printf("Synced %d loot tables to %s:%d (prefix %s)\n", n, host, port, generator.DefaultKeyPrefix)
}
