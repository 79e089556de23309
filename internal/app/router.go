package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/movements"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	StockInHandler    *movements.Handler
	StockOutHandler   *movements.Handler
	TransferHandler   *movements.Handler
	StockCheckHandler *movements.Handler
	InventoryHandler  *inventory.Handler
	WarehouseHandler  *warehouses.Handler
	ProductHandler    *products.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/stock-in", params.StockInHandler.MountRoutes)
	r.Route("/stock-out", params.StockOutHandler.MountRoutes)
	r.Route("/transfers", params.TransferHandler.MountRoutes)
	r.Route("/stock-checks", params.StockCheckHandler.MountRoutes)
	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/masterdata", func(r chi.Router) {
		r.Route("/warehouses", params.WarehouseHandler.MountRoutes)
		r.Route("/products", params.ProductHandler.MountRoutes)
	})

	return r
}
