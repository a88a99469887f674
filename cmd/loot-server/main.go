package main

import (
	"fmt"
	"os"
	"time"

	"tsu-loot/internal/modules/loot"
	"tsu-loot/internal/pkg/notify"

	"github.com/liangdas/mqant"
	"github.com/liangdas/mqant/module"
	"github.com/liangdas/mqant/registry"
	"github.com/liangdas/mqant/registry/consul"
	"github.com/nats-io/nats.go"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  TSU Loot Server")
	fmt.Println("  Version: 1.0.0")
	fmt.Println("==============================================")
	fmt.Println()

	// Consul address
	consulAddr := os.Getenv("CONSUL_ADDRESS")
	if consulAddr == "" {
		consulAddr = "localhost:8500"
	}
	fmt.Printf("[Main] Consul address: %s\n", consulAddr)

	// NATS address
	natsAddr := os.Getenv("NATS_ADDRESS")
	if natsAddr == "" {
		natsAddr = "localhost:4222"
	}
	fmt.Printf("[Main] NATS address: %s\n", natsAddr)

	// 死亡事件与会话推送都走这个连接，断线后无限重连
	nc, err := nats.Connect("nats://"+natsAddr,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		fmt.Printf("[Main] Failed to connect to NATS: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("[Main] Connected to NATS successfully")
	notify.SetNatsConn(nc)

	configPath := os.Getenv("LOOT_SERVER_CONFIG")
	if configPath == "" {
		configPath = "./configs/server/loot-server.json"
	}

	rs := consul.NewRegistry(func(options *registry.Options) {
		options.Addrs = []string{consulAddr}
	})

	app := mqant.CreateApp(
		module.Configure(configPath),
		module.Debug(false),
		module.Nats(nc),
		module.Registry(rs),
	)

	fmt.Println("[Main] Configuration loaded")

	app.Run(
		loot.Module(),
	)
}
