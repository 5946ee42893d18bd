package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"customer-cqrs-service/internal/service"
	"customer-cqrs-service/internal/store"
	syncjob "customer-cqrs-service/internal/sync"
)

type Handler struct {
	commands  *service.CommandService
	queries   *service.QueryService
	ledger    store.SyncLedger
	scheduler *syncjob.Scheduler
}

func NewHandler(commands *service.CommandService, queries *service.QueryService, ledger store.SyncLedger, scheduler *syncjob.Scheduler) *Handler {
	return &Handler{
		commands:  commands,
		queries:   queries,
		ledger:    ledger,
		scheduler: scheduler,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/customers", h.CreateCustomer)
		r.Get("/customers", h.ListCustomers)
		r.Get("/customers/{id}", h.GetCustomer)
		r.Put("/customers/{id}", h.UpdateCustomer)
		r.Delete("/customers/{id}", h.DeleteCustomer)
		r.Get("/customers/{id}/history", h.CustomerHistory)

		r.Get("/sync/status", h.SyncStatus)
		r.Post("/sync/trigger", h.TriggerSync)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type createCustomerRequest struct {
	UserName      string `json:"userName"`
	Email         string `json:"email"`
	ContactNumber string `json:"contactNumber"`
	Password      string `json:"password"`
	Address       string `json:"address"`
	Role          string `json:"role"`
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.commands.CreateCustomer(r.Context(), store.CustomerCreate{
		UserName:      req.UserName,
		Email:         req.Email,
		ContactNumber: req.ContactNumber,
		Password:      req.Password,
		Address:       req.Address,
		Role:          req.Role,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	var upd store.CustomerUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.commands.UpdateCustomer(r.Context(), id, upd)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	if err := h.commands.DeleteCustomer(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	view, err := h.queries.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if email := q.Get("email"); email != "" {
		view, err := h.queries.GetByEmail(r.Context(), email)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.queries.List(r.Context(), store.ListParams{
		Page:   page,
		Limit:  limit,
		Role:   q.Get("role"),
		Search: q.Get("search"),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	events, err := h.queries.History(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := h.ledger.RecentRuns(r.Context(), 5)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.TriggerNow(r.Context())
	if err != nil {
		var recErr *syncjob.ReconciliationError
		if errors.As(err, &recErr) {
			http.Error(w, recErr.Error(), http.StatusInternalServerError)
		} else {
			http.Error(w, err.Error(), http.StatusConflict)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"syncId":           result.SyncID,
		"recordsProcessed": result.Processed,
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Msg, http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "customer not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
