package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
)

// corsMiddleware allows the web frontend to call the API from another origin.
// CORS_ALLOW_ORIGINS is a comma separated list; "*" disables credentials.
func corsMiddleware() gin.HandlerFunc {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000")

	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
	}
	if strings.TrimSpace(raw) == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
			}
		}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
