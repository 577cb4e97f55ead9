// Package main 开发环境引导工具：签发访问令牌，并可对网关做一次冒烟分析
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ai-gateway-api/internal/config"
	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/wire"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", envOr("BOOTSTRAP_USER_ID", "admin"), "token subject")
	role := flag.String("role", envOr("BOOTSTRAP_ROLE", "admin"), "token role: admin | user")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to security.jwt.expiration")
	smoke := flag.Bool("smoke", false, "run one simulated episode analysis through the gateway")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Observability.Logging.Level, "text")

	// 2. 签发令牌
	if cfg.Security.JWT.Secret == "" {
		log.Fatal("security.jwt.secret is empty, set JWT_SECRET first")
	}
	if *ttl <= 0 {
		*ttl = cfg.Security.JWT.Expiration
	}
	token, err := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer).GenerateToken(*userID, *role, *ttl)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	fmt.Printf("user:    %s\nrole:    %s\nexpires: %s\ntoken:   %s\n",
		*userID, *role, time.Now().Add(*ttl).Format(time.RFC3339), token)

	if !*smoke {
		return
	}

	// 3. 冒烟分析，强制走 simulated provider
	cfg.LLM.ForceSimulated = true
	ctx := context.Background()
	gw, cleanup, err := wire.InitializeGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize gateway: %v", err)
	}
	defer cleanup()

	res := gw.Analyze(ctx, &entity.AnalysisRequest{
		Type:   entity.AnalysisTypeEpisode,
		UserID: *userID,
		Content: map[string]any{
			"severity":    7,
			"triggers":    []string{"stress"},
			"duration":    "2h",
			"description": "bootstrap smoke test",
		},
	})
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.IsError() {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
