package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal  metric.Int64Counter
	LoginRequestsTotal     metric.Int64Counter
	RefreshRequestsTotal   metric.Int64Counter
	LogoutRequestsTotal    metric.Int64Counter
	AuthDurationSeconds    metric.Float64Histogram
	DbQueryDurationSeconds metric.Float64Histogram
	DbQueryErrorsTotal     metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider, so it must run
// after the provider is installed to export anything.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("go-account-service")
		m := &AppMetrics{}

		m.RegisterRequestsTotal = mustCounter(meter, "register_requests_total", "Total number of register requests completed", "{request}")
		m.LoginRequestsTotal = mustCounter(meter, "login_requests_total", "Total number of login attempts by outcome", "{request}")
		m.RefreshRequestsTotal = mustCounter(meter, "refresh_requests_total", "Total number of refresh token rotations by outcome", "{request}")
		m.LogoutRequestsTotal = mustCounter(meter, "logout_requests_total", "Total number of logouts", "{request}")
		m.DbQueryErrorsTotal = mustCounter(meter, "db_query_errors_total", "Total number of database query errors", "{error}")

		var err error
		m.AuthDurationSeconds, err = meter.Float64Histogram(
			"auth_duration_seconds",
			metric.WithDescription("Duration of login, register and refresh operations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create auth_duration_seconds: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

func mustCounter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

// Get returns the global AppMetrics, initializing it against the current
// MeterProvider on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}

// Outcome records a counter increment tagged with the operation result.
func Outcome(ctx context.Context, c metric.Int64Counter, outcome string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// AuthDuration records the elapsed time of an account operation, tagged with
// its name.
func AuthDuration(ctx context.Context, start time.Time, operation string) {
	Get().AuthDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)))
}
