package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/skycast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const londonPayload = `{
	"name": "London",
	"main": {"temp": 15.2, "feels_like": 14.6, "pressure": 1012, "humidity": 82},
	"wind": {"speed": 4.1},
	"visibility": 10000,
	"weather": [{"id": 500, "main": "Rain", "description": "light rain", "icon": "10d"}],
	"sys": {"sunrise": 1700000000, "sunset": 1700030000}
}`

type statusRecorder struct {
	mu       sync.Mutex
	statuses []int
}

func (s *statusRecorder) RecordSignIn(string) {}
func (s *statusRecorder) RecordSelfHeal() {}
func (s *statusRecorder) RecordSuperseded(string) {}
func (s *statusRecorder) RecordWeatherQuery(string) {}
func (s *statusRecorder) RecordWeatherLatency(time.Duration) {}

func (s *statusRecorder) RecordHTTPStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, code)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OpenWeatherClient, *statusRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &statusRecorder{}
	c := NewOpenWeatherClient(OpenWeatherConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second}, rec)
	return c, rec
}

func TestOpenWeatherClient_Fetch_Success(t *testing.T) {
	var gotPath, gotQ, gotKey, gotUnits string
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQ = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("appid")
		gotUnits = r.URL.Query().Get("units")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(londonPayload))
	})

	snap, err := c.Fetch(context.Background(), "London")
	require.NoError(t, err)

	assert.Equal(t, "/data/2.5/weather", gotPath)
	assert.Equal(t, "London", gotQ)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "metric", gotUnits)

	assert.Equal(t, &model.WeatherSnapshot{
		CityQueried:          "London",
		ResolvedName:         "London",
		Temperature:          15.2,
		FeelsLike:            14.6,
		PressureHpa:          1012,
		HumidityPct:          82,
		WindSpeed:            4.1,
		Sunrise:              1700000000,
		Sunset:               1700030000,
		VisibilityMeters:     10000,
		ConditionCode:        500,
		ConditionMain:        "Rain",
		ConditionDescription: "light rain",
	}, snap)
	assert.Equal(t, []int{200}, rec.statuses)
}

// 都市名はURLエンコードされて送られる
func TestOpenWeatherClient_Fetch_EncodesCity(t *testing.T) {
	var gotQ string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(londonPayload))
	})

	_, err := c.Fetch(context.Background(), "São Paulo,BR")
	require.NoError(t, err)
	assert.Equal(t, "São Paulo,BR", gotQ)
}

func TestOpenWeatherClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"city not found", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, model.ErrCityNotFound, "city not found: Atlantis"},
		{"server error", http.StatusInternalServerError, `oops`, model.ErrNetwork, ""},
		{"rate limited", http.StatusTooManyRequests, `{}`, model.ErrNetwork, ""},
		{"invalid key", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, model.ErrNetwork, "network error: status 401: Invalid API key"},
		{"malformed json", http.StatusOK, `{"main":`, model.ErrDecode, ""},
		{"empty weather list", http.StatusOK, `{"main":{"temp":1},"weather":[]}`, model.ErrDecode, "decode error: empty weather list"},
		{"missing main", http.StatusOK, `{"weather":[{"id":800,"main":"Clear"}]}`, model.ErrDecode, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Fetch(context.Background(), "Atlantis")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestOpenWeatherClient_Fetch_TransportError(t *testing.T) {
	c := NewOpenWeatherClient(OpenWeatherConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil)

	_, err := c.Fetch(context.Background(), "London")
	assert.ErrorIs(t, err, model.ErrNetwork)
}

// 連続した上流障害でブレーカーが開き、以降はサーバーに到達しない
func TestOpenWeatherClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := c.Fetch(context.Background(), "London")
		require.ErrorIs(t, err, model.ErrNetwork)
	}
	require.Equal(t, int32(5), hits.Load())

	_, err := c.Fetch(context.Background(), "London")
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.Equal(t, int32(5), hits.Load())
}

// 404はブレーカーの失敗として数えない
func TestOpenWeatherClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 8; i++ {
		_, err := c.Fetch(context.Background(), "Nowhere")
		require.ErrorIs(t, err, model.ErrCityNotFound)
	}
	assert.Equal(t, int32(8), hits.Load())
}

// 呼び出し側のキャンセルはブレーカーの失敗として数えない
func TestOpenWeatherClient_CancellationDoesNotTripBreaker(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(londonPayload))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 8; i++ {
		_, err := c.Fetch(ctx, "London")
		require.ErrorIs(t, err, model.ErrNetwork)
	}

	_, err := c.Fetch(context.Background(), "London")
	assert.NoError(t, err)
}

func TestNewOpenWeatherClient_Defaults(t *testing.T) {
	c := NewOpenWeatherClient(OpenWeatherConfig{APIKey: "k"}, nil)

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.httpClient.Timeout)
}
