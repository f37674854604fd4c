package api

import (
	"net/http"

	"github.com/AlexZinkM/solwallet/internal/handler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/AlexZinkM/solwallet/docs"
)

// SetupRouter sets up router with handlers
func SetupRouter(walletHandler *handler.SolanaHandler, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Metrics
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Wallet endpoints
	mux.HandleFunc("/wallet/address", walletHandler.Address)
	mux.HandleFunc("/wallet/balance", walletHandler.Balance)
	mux.HandleFunc("/wallet/send", walletHandler.Send)
	mux.HandleFunc("/wallet/generate", walletHandler.Generate)
	mux.HandleFunc("GET /wallet/submissions/{id}", walletHandler.Submission)
	mux.HandleFunc("POST /wallet/submissions/{id}/rebroadcast", walletHandler.Rebroadcast)

	return mux
}
