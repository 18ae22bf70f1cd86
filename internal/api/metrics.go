package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	mealPlanResults *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplan_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "status"}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplan_webhook_events_total",
			Help: "Billing webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		checkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplan_checkout_sessions_total",
			Help: "Checkout session requests by plan and result.",
		}, []string{"plan", "result"}),
		mealPlanResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplan_generations_total",
			Help: "Meal plan generation requests by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func (m *Metrics) webhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) checkout(plan, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(plan, result).Inc()
}

func (m *Metrics) mealPlan(result string) {
	if m == nil {
		return
	}
	m.mealPlanResults.WithLabelValues(result).Inc()
}
