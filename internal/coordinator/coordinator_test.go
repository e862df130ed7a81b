package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, admission policy.AdmissionConfig) (*Coordinator, *eventbus.MemoryBus) {
	t.Helper()
	bus := eventbus.NewMemoryBus(eventbus.DefaultConfig(), nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	po := policy.New(policy.Config{Admission: admission, Compliance: policy.DefaultComplianceConfig(), Breaker: policy.DefaultBreakerConfig()}, nil)
	return New(DefaultConfig(), nil, po, bus, nil), bus
}

func TestCreateSagaPublishesIntent(t *testing.T) {
	c, bus := newTestCoordinator(t, policy.AdmissionConfig{MaxActiveSagas: 10})

	received := make(chan eventbus.Event, 1)
	_, err := bus.Subscribe("INTENT", func(ctx context.Context, e eventbus.Event) error {
		received <- e
		return nil
	}, eventbus.DefaultSubscribeOptions())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sagas", strings.NewReader(`{"clientId":"client-1","revisions":[]}`))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case e := <-received:
		require.NotEmpty(t, e.SagaID)
	case <-time.After(time.Second):
		t.Fatal("INTENT was never published")
	}
}

// TestRateLimitDenialReturns429 is the HTTP edge of the literal §8
// scenario 4: a client over its per-minute admission rate gets
// admission-denied instead of a started saga.
func TestRateLimitDenialReturns429(t *testing.T) {
	c, _ := newTestCoordinator(t, policy.AdmissionConfig{PerClientRatePerMinute: 1, MaxActiveSagas: 10})

	body := `{"clientId":"client-1","revisions":[]}`
	req1 := httptest.NewRequest(http.MethodPost, "/sagas", strings.NewReader(body))
	rec1 := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusAccepted, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/sagas", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestMissingClientIDRejected(t *testing.T) {
	c, _ := newTestCoordinator(t, policy.AdmissionConfig{MaxActiveSagas: 10})

	req := httptest.NewRequest(http.MethodPost, "/sagas", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
