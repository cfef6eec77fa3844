package internal

import (
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/starford/vaultkeep/internal/metrics"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	version  string
	logOut   io.Writer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON log stream. The MCP runner defaults to
// stderr since stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on. The
// default registry also carries the Go and process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *application) {
		a.registry = reg
	}
}

func newApplication(defaultLog io.Writer, opts []Option) *application {
	app := &application{version: "dev", logOut: defaultLog}
	for _, opt := range opts {
		opt(app)
	}
	if app.logOut == nil {
		app.logOut = os.Stdout
	}
	if app.registry == nil {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return app
}

func (a *application) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}
