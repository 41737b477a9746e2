// Package server exposes the HTTP API: JSON over chi, JWT-protected except
// for registration, login and the operational endpoints.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velotrips/velo/internal/auth"
	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/middleware"
	"github.com/velotrips/velo/internal/service"
)

// Server wires the services behind the HTTP routes.
type Server struct {
	authService *service.AuthService
	trips       *service.TripService
	expenses    *service.ExpenseService
	balances    *service.BalanceService
	ledger      *ledger.Ledger
	jwtManager  *auth.JWTManager
}

// New creates a server.
func New(
	authService *service.AuthService,
	trips *service.TripService,
	expenses *service.ExpenseService,
	balances *service.BalanceService,
	ldg *ledger.Ledger,
	jwtManager *auth.JWTManager,
) *Server {
	return &Server{
		authService: authService,
		trips:       trips,
		expenses:    expenses,
		balances:    balances,
		ledger:      ldg,
		jwtManager:  jwtManager,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwtManager))

			r.Get("/auth/me", s.handleCurrentUser)

			r.Route("/trips", func(r chi.Router) {
				r.Post("/", s.handleCreateTrip)

				r.Route("/{tripID}", func(r chi.Router) {
					r.Get("/", s.handleGetTrip)
					r.Patch("/", s.handleUpdateTrip)

					r.Post("/members", s.handleAddMember)
					r.Post("/members/{memberID}/claim", s.handleClaimMember)

					r.Post("/expenses", s.handleCreateExpense)
					r.Get("/expenses", s.handleListExpenses)

					r.Post("/settlements", s.handleRecordSettlement)
					r.Post("/debts/merge", s.handleMergeDebt)
					r.Post("/debts/convert", s.handleConvertDebts)

					r.Get("/balances", s.handleBalances)
				})
			})

			r.Route("/expenses/{expenseID}", func(r chi.Router) {
				r.Get("/", s.handleGetExpense)
				r.Put("/", s.handleUpdateExpense)
				r.Delete("/", s.handleDeleteExpense)
			})
		})
	})

	return r
}
