package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	s := New(nil)
	s.AddLiveness(Check{Name: "a", Func: pass})
	s.AddLiveness(Check{Name: "b", Func: pass})

	code, body := get(t, s.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestProbe_FailureThreshold(t *testing.T) {
	s := New(nil)
	s.AddLiveness(Check{Name: "db", Func: fail("connection refused")})
	p := s.liveness[0]
	ctx := context.Background()

	assert.False(t, p.run(ctx))
	assert.False(t, p.run(ctx))
	code, _ := get(t, s.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "two failures stay below the default threshold")

	assert.True(t, p.run(ctx))
	code, body := get(t, s.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestProbe_Recovers(t *testing.T) {
	healthy := false
	s := New(nil)
	s.AddLiveness(Check{
		Name:             "flaky",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Func: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		},
	})
	p := s.liveness[0]
	ctx := context.Background()

	assert.True(t, p.run(ctx))
	healthy = true
	assert.False(t, p.run(ctx))
	_, failing := p.failure()
	assert.True(t, failing, "one pass is below the success threshold")

	assert.True(t, p.run(ctx))
	_, failing = p.failure()
	assert.False(t, failing)
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.True(t, p.run(context.Background()))
	msg, failing := p.failure()
	assert.True(t, failing)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestReadyEndpoint(t *testing.T) {
	s := New(nil)
	s.AddReadiness(Check{Name: "postgres", Func: fail("refused"), FailureThreshold: 1})

	code, body := get(t, s.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")
	assert.False(t, s.Ready())

	s.SetReady(true)
	code, _ = get(t, s.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, s.Ready())

	s.readiness[0].run(context.Background())
	code, body = get(t, s.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "refused", body.Checks["postgres"])
	assert.NotContains(t, body.Checks, "_readiness")
	assert.False(t, s.Ready())
}

func TestStartStop(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(zap.New(core))
	s.AddReadiness(Check{Name: "postgres", Func: fail("refused"), FailureThreshold: 1})
	s.SetReady(true)

	s.Start(context.Background(), 10*time.Millisecond)
	defer s.Stop()

	require.Eventually(t, func() bool { return !s.Ready() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Health check failing").Len() == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestColumnsCheck(t *testing.T) {
	list := func(cols ...string) ColumnLister {
		return func(context.Context, string) ([]string, error) { return cols, nil }
	}
	ctx := context.Background()
	groups := [][]string{{"codigo"}, {"cantidad"}, {"precio_unitario", "precio"}}

	assert.NoError(t, ColumnsCheck(list("codigo", "Cantidad", "precio"), "producto", groups...)(ctx))

	err := ColumnsCheck(list("codigo", "cantidad"), "producto", groups...)(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precio_unitario, precio")

	err = ColumnsCheck(list(), "producto", groups...)(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	failing := func(context.Context, string) ([]string, error) { return nil, errors.New("db down") }
	assert.ErrorContains(t, ColumnsCheck(failing, "producto")(ctx), "db down")
}
