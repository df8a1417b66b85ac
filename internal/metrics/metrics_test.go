package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_TurnCounters(t *testing.T) {
	t.Parallel()
	m := newWithRegistry(prometheus.NewRegistry())

	m.TurnSent()
	m.TurnSent()
	m.TurnAnswered(1500 * time.Millisecond)
	m.TurnFailed()

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("sent")); got != 2 {
		t.Errorf("Expected 2 sent turns, got %f", got)
	}
	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed turn, got %f", got)
	}
	if count := testutil.CollectAndCount(m.chatLatency); count == 0 {
		t.Error("Expected latency observations")
	}
}

func TestMetrics_ActiveSessions(t *testing.T) {
	t.Parallel()
	m := newWithRegistry(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionDetached()
	m.SessionEnded("completed")

	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %f", got)
	}
	if got := testutil.ToFloat64(m.sessionsEnded.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed session, got %f", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecognitionError("no-speech")
	m.SessionsSwept(3)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Result().Body)
	for _, want := range []string{
		`prepy_recognition_errors_total{kind="no-speech"} 1`,
		"prepy_sessions_swept_total 3",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
