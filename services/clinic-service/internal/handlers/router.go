package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

// Deps are the stores and clients behind the clinic API, built once in main.
type Deps struct {
	Patients      Store[model.Patient]
	Professionals Store[model.Professional]
	Services      Store[model.Service]
	Categories    Store[model.Category]
	Suppliers     Store[model.Supplier]
	Inventory     InventoryStore
	Appointments  AppointmentStore
	Zones         TimezoneSource
	Config        ConfigStore
	Search        Searcher
	Address       AddressLookup
	Insurers      InsurerCatalog
	Summary       SummaryStore
	Logger        *slog.Logger
}

// NewRouter mounts the clinic API under /api/v1. Every route requires the gateway's
// principal headers and is guarded by its own action.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.MethodNotAllowed(w)
	})

	lookup := NewLookupHandler(d.Search, d.Address, d.Insurers, d.Summary, d.Zones, d.Logger)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(authz.Authenticate)

		api.Route("/patients", func(sr chi.Router) {
			NewResource[model.Patient]("patient", d.Patients, d.Logger).Mount(sr, authz.ViewPatients, authz.ManagePatients)
		})
		api.Route("/professionals", func(sr chi.Router) {
			NewResource[model.Professional]("professional", d.Professionals, d.Logger).Mount(sr, authz.ViewProfessionals, authz.ManageProfessionals)
		})
		api.Route("/services", func(sr chi.Router) {
			NewResource[model.Service]("service", d.Services, d.Logger).Mount(sr, authz.ViewServices, authz.ManageServices)
		})
		api.Route("/appointments", NewAppointmentsHandler(d.Appointments, d.Zones, d.Logger).Mount)
		api.Route("/inventory", func(inv chi.Router) {
			inv.Route("/items", NewInventoryHandler(d.Inventory, d.Logger).Mount)
			inv.Route("/categories", func(sr chi.Router) {
				NewResource[model.Category]("category", d.Categories, d.Logger).Mount(sr, authz.ViewInventory, authz.ManageInventory)
			})
			inv.Route("/suppliers", func(sr chi.Router) {
				NewResource[model.Supplier]("supplier", d.Suppliers, d.Logger).Mount(sr, authz.ViewInventory, authz.ManageInventory)
			})
		})
		api.Route("/config", NewConfigHandler(d.Config, d.Logger).Mount)

		api.With(authz.Require(authz.Search)).Get("/search", lookup.Search)
		api.With(authz.Require(authz.LookupAddress)).Get("/cep/{cep}", lookup.CEP)
		api.With(authz.Require(authz.ViewInsurers)).Get("/insurers", lookup.Insurers)
		api.With(authz.Require(authz.ViewInsurers)).Get("/insurers/{id}/plans", lookup.Plans)
		api.With(authz.Require(authz.ViewDashboard)).Get("/dashboard/summary", lookup.Summary)
	})
	return r
}
