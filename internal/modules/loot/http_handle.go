// internal/modules/loot/http_handle.go
package loot

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/labstack/echo/v4"

	"tsu-loot/internal/pkg/log"
)

// HealthHandler /health
type HealthHandler struct {
	module *LootModule
}

// Health 任一必需依赖不可用时返回 503
func (h *HealthHandler) Health(c echo.Context) error {
	services := map[string]string{
		"nats":     h.module.natsHealth.Status(),
		"redis":    h.checkRedis(c.Request().Context()),
		"postgres": h.checkDatabase(c.Request().Context()),
	}

	status, code := "ok", http.StatusOK
	for _, s := range services {
		if s == "down" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, map[string]interface{}{
		"status":          status,
		"timestamp":       time.Now(),
		"live_containers": h.module.spawner.Count(),
		"services":        services,
	})
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.module.redis == nil {
		return "disabled"
	}
	if h.module.redis.Healthy(ctx) {
		return "ok"
	}
	return "down"
}

func (h *HealthHandler) checkDatabase(ctx context.Context) string {
	if h.module.db == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.module.db.PingContext(ctx); err != nil {
		return "down"
	}
	return "ok"
}

// registerHTTPService 注册 HTTP 服务到 Consul
func (m *LootModule) registerHTTPService() {
	time.Sleep(2 * time.Second) // 等待 HTTP 服务器启动

	consulConfig := api.DefaultConfig()
	consulConfig.Address = m.cfg.ConsulAddress

	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		m.logger.Error("创建 Consul 客户端失败", err)
		return
	}

	containerIP := getContainerIP()
	if containerIP == "" {
		m.logger.Warn("无法获取容器 IP，跳过 Consul 注册")
		return
	}

	port, err := strconv.Atoi(m.cfg.HTTPPort)
	if err != nil {
		m.logger.Error("HTTP 端口格式错误", err, log.String("port", m.cfg.HTTPPort))
		return
	}

	registration := &api.AgentServiceRegistration{
		ID:      "loot-http",
		Name:    "loot-http",
		Port:    port,
		Address: containerIP,
		Tags:    []string{"http", "loot", "admin"},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", containerIP, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := consulClient.Agent().ServiceRegister(registration); err != nil {
		m.logger.Error("注册 HTTP 服务到 Consul 失败", err)
		return
	}

	m.logger.Info("HTTP 服务已注册到 Consul",
		log.String("address", containerIP),
		log.Int("port", port))
}

// getContainerIP 第一个非回环 IPv4 地址
func getContainerIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
