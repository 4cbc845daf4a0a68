package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/cardroom/go/internal/config"
	"github.com/mcdev12/cardroom/go/internal/gateway"
)

func setupServer(cfg config.Config, services *Services) (*http.Server, *gateway.Server) {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = originChecker(cfg.AllowedOrigins)

	gw := gateway.NewServer(services.Registry, connCfg, services.history())
	gw.AddHealthCheck("redis", services.Backend.Ping)
	if services.Publisher != nil {
		gw.AddHealthCheck("nats", services.Publisher.Ping)
	}
	if services.Archive != nil {
		gw.AddHealthCheck("postgres", services.Archive.Ping)
	}
	gw.RegisterRoutes(mux)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}, gw
}

// originChecker admits websocket upgrades from the allowed origins. A "*"
// entry admits any origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
