package mid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/api/errs"
	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/web"
)

type okResp struct{}

func (okResp) Encode() ([]byte, string, error) { return []byte(`{}`), "application/json", nil }

func newApp() *web.App {
	log := logger.Noop()
	return web.NewApp(
		func(context.Context, string, ...any) {},
		noop.NewTracerProvider().Tracer("test"),
		Otel(noop.NewTracerProvider().Tracer("test")),
		Logger(log),
		Errors(log),
		Panics(),
	)
}

func serve(app *web.App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestTenant(t *testing.T) {
	t.Parallel()

	app := newApp()
	app.HandlerFunc(http.MethodGet, "", "/scoped", func(ctx context.Context, r *http.Request) web.Encoder {
		id, err := tenant.MustFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "acme", id)
		return okResp{}
	}, Tenant())

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/scoped", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/scoped", nil)
	req.Header.Set(events.HeaderTenant, " acme ")
	assert.Equal(t, http.StatusOK, serve(app, req).Code)
}

func TestErrors_HidesUnknownErrors(t *testing.T) {
	t.Parallel()

	app := newApp()
	app.HandlerFunc(http.MethodGet, "", "/known", func(ctx context.Context, r *http.Request) web.Encoder {
		return errs.Newf(errs.NotFound, "configuration not found")
	})
	app.HandlerFunc(http.MethodGet, "", "/panic", func(ctx context.Context, r *http.Request) web.Encoder {
		panic(errors.New("boom"))
	})

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/known", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":"not_found","message":"configuration not found"}`, rec.Body.String())

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"internal","message":"Internal Server Error"}`, rec.Body.String())
}

type countingMetrics struct {
	requests []int
}

func (m *countingMetrics) IncRequestsTotal(_ context.Context, _, _ string, status int) {
	m.requests = append(m.requests, status)
}
func (m *countingMetrics) ObserveRequestDuration(context.Context, string, string, time.Duration) {}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := new(countingMetrics)
	app := newApp()
	app.HandlerFunc(http.MethodGet, "", "/m", func(ctx context.Context, r *http.Request) web.Encoder {
		return errs.Newf(errs.AlreadyExists, "dup")
	}, Metrics(m, "/m"))

	serve(app, httptest.NewRequest(http.MethodGet, "/m", nil))
	assert.Equal(t, []int{http.StatusConflict}, m.requests)
}
