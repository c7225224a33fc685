package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSignIn_CountsByOutcome はサインイン結果がラベル別に数えられることを検証する。
func TestRecordSignIn_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn(OutcomeSuccess)
	c.RecordSignIn(OutcomeSuccess)
	c.RecordSignIn(OutcomeExchangeFailure)

	m := findMetric(t, reg, "skycast_signin_total", map[string]string{"outcome": OutcomeSuccess})
	if m == nil {
		t.Fatal("skycast_signin_total{outcome=success} not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("signin_total{success} = %v, want 2", got)
	}

	m = findMetric(t, reg, "skycast_signin_total", map[string]string{"outcome": OutcomeExchangeFailure})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("signin_total{exchange_failure} should be 1")
	}
}

func TestRecordSelfHeal_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSelfHeal()

	m := findMetric(t, reg, "skycast_profile_self_heal_total", nil)
	if m == nil {
		t.Fatal("skycast_profile_self_heal_total not found")
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("self_heal_total = %v, want 1", got)
	}
}

func TestRecordSuperseded_CountsByComponent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSuperseded(ComponentWeather)
	c.RecordSuperseded(ComponentWeather)
	c.RecordSuperseded(ComponentAuth)

	m := findMetric(t, reg, "skycast_superseded_total", map[string]string{"component": ComponentWeather})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("superseded_total{weather} should be 2")
	}
	m = findMetric(t, reg, "skycast_superseded_total", map[string]string{"component": ComponentAuth})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("superseded_total{auth} should be 1")
	}
}

func TestRecordWeatherQuery_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWeatherQuery(OutcomeCityNotFound)

	m := findMetric(t, reg, "skycast_weather_query_total", map[string]string{"outcome": OutcomeCityNotFound})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("weather_query_total{city_not_found} should be 1")
	}
}

func TestRecordWeatherLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWeatherLatency(150 * time.Millisecond)
	c.RecordWeatherLatency(2 * time.Second)

	m := findMetric(t, reg, "skycast_weather_latency_seconds", nil)
	if m == nil {
		t.Fatal("skycast_weather_latency_seconds not found")
	}
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(200)

	m := findMetric(t, reg, "skycast_weather_http_status_total", map[string]string{"status_code": "200"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("http_status_total{200} should be 2")
	}
	m = findMetric(t, reg, "skycast_weather_http_status_total", map[string]string{"status_code": "404"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("http_status_total{404} should be 1")
	}
}

// TestHandler_ServesPrometheusFormat はHandlerがテキスト形式でメトリクスを返すことを検証する。
func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSignIn(OutcomeSuccess)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "skycast_signin_total") {
		t.Error("response should contain skycast_signin_total metric")
	}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリ同士で登録が衝突しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordSelfHeal()

	if m := findMetric(t, reg2, "skycast_profile_self_heal_total", nil); m != nil && m.GetCounter().GetValue() != 0 {
		t.Errorf("reg2 should not see reg1 increments")
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordSignIn(OutcomeFailure)
	c.RecordSelfHeal()
	c.RecordSuperseded(ComponentProfile)
	c.RecordWeatherQuery(OutcomeNetwork)
	c.RecordWeatherLatency(time.Second)
	c.RecordHTTPStatus(500)
}
