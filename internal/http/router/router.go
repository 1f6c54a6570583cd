package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/rogerio-castellano/fleet-maintenance/docs"
	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/http/handlers"
	mw "github.com/rogerio-castellano/fleet-maintenance/internal/http/middleware"
	rl "github.com/rogerio-castellano/fleet-maintenance/internal/http/rate_limiter"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Options struct {
	Server  *handlers.Server
	Tokens  *auth.TokenIssuer
	Limiter *rl.Limiter
	Log     *zap.Logger
}

func NewRouter(o Options) http.Handler {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	s := o.Server

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(o.Log.Named("access")))
	r.Use(chimw.Recoverer)
	if o.Limiter != nil {
		r.Use(mw.RateLimit(o.Limiter, o.Log))
	}

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Post("/login", s.LoginHandler)
	r.Post("/refresh", s.RefreshHandler)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticator(o.Tokens))

		r.Post("/logout", s.LogoutHandler)

		r.Route("/items", func(r chi.Router) {
			r.Post("/", s.CreateItemHandler)
			r.Get("/", s.GetItemsHandler)
			r.Post("/import", s.ImportItemsHandler)

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", s.GetItemHandler)
				r.Put("/", s.UpdateItemHandler)
				r.Delete("/", s.RetireItemHandler)

				r.Post("/movements", s.ApplyMovementHandler)
				r.Get("/movements", s.GetMovementsHandler)
				r.Get("/movements/export", s.ExportMovementsHandler)

				r.Get("/reconcile", s.ReconcileItemHandler)
				r.With(mw.RequireRole(models.RoleAdmin)).Post("/reconcile", s.ReconcileItemHandler)
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", s.LowStockHandler)
			r.Get("/low-stock/events", s.LowStockEventsHandler)
			r.Get("/valuation", s.ValuationHandler)
			r.Get("/stock-movement", s.StockMovementHandler)
		})
		r.Get("/metrics/dashboard", s.DashboardHandler)

		r.Route("/machines", func(r chi.Router) {
			r.Post("/", s.CreateMachineHandler)
			r.Get("/", s.GetMachinesHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetMachineHandler)
				r.Post("/hour-meter", s.RecordHourMeterHandler)
				r.Get("/hour-meter", s.GetHourMeterHandler)
				r.Post("/oil-changes", s.RecordOilChangeHandler)
				r.Get("/oil-changes", s.GetOilChangesHandler)
				r.Post("/maintenance", s.OpenMaintenanceHandler)
				r.Get("/maintenance", s.GetMaintenanceHandler)
			})
		})
		r.Post("/maintenance/{id}/transition", s.TransitionMaintenanceHandler)

		r.With(mw.RequireRole(models.RoleAdmin)).Post("/admin/users", s.RegisterAsAdminHandler)
	})

	return r
}
