package middlewares

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/opencmp/cmp-orchestrator/config"
)

func CORSMiddleware(cfg *config.EnvConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if cfg.CORS.AllowDomains == "" || cfg.CORS.AllowDomains == "*" {
		corsConfig.AllowAllOrigins = true
		return cors.New(corsConfig)
	}

	var origins []string
	for _, domain := range strings.Split(cfg.CORS.AllowDomains, ",") {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
			domain = "https://" + domain
		}
		origins = append(origins, domain)
	}
	corsConfig.AllowOrigins = origins

	return cors.New(corsConfig)
}
