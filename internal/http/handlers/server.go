package handlers

import (
	"context"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/alerts"
	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"go.uber.org/zap"
)

// LowStockEvents lists the low-stock alerts recorded on one day.
type LowStockEvents interface {
	Events(ctx context.Context, day time.Time) ([]alerts.Event, error)
}

type Deps struct {
	Catalog    *ledger.Catalog
	Engine     *ledger.Engine
	Reporter   *ledger.Reporter
	Movements  repo.MovementRepository
	Fleet      *fleet.Service
	Alerts     LowStockEvents
	Users      repo.UserRepository
	Tokens     *auth.TokenIssuer
	Refresh    auth.RefreshStore
	RefreshTTL time.Duration
	// OpTimeout bounds every ledger call made while serving a request.
	OpTimeout time.Duration
	Log       *zap.Logger
}

// Server holds the dependencies of every HTTP handler.
type Server struct {
	catalog    *ledger.Catalog
	engine     *ledger.Engine
	reporter   *ledger.Reporter
	movements  repo.MovementRepository
	fleet      *fleet.Service
	alerts     LowStockEvents
	users      repo.UserRepository
	tokens     *auth.TokenIssuer
	refresh    auth.RefreshStore
	refreshTTL time.Duration
	opTimeout  time.Duration
	log        *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = 24 * time.Hour
	}
	if d.OpTimeout <= 0 {
		d.OpTimeout = 3 * time.Second
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{
		catalog:    d.Catalog,
		engine:     d.Engine,
		reporter:   d.Reporter,
		movements:  d.Movements,
		fleet:      d.Fleet,
		alerts:     d.Alerts,
		users:      d.Users,
		tokens:     d.Tokens,
		refresh:    d.Refresh,
		refreshTTL: d.RefreshTTL,
		opTimeout:  d.OpTimeout,
		log:        d.Log.Named("http"),
	}
}

func (s *Server) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
