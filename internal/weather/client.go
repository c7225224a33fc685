// Package weather は天気APIクライアントと都市クエリのパイプラインを提供する。
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/skycast/internal/metrics"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL はOpenWeatherMap APIのベースURL。
	DefaultBaseURL = "https://api.openweathermap.org"

	defaultTimeout = 10 * time.Second
	weatherPath    = "/data/2.5/weather"

	// maxErrorBodySize はエラーレスポンスから読み出す最大バイト数。
	maxErrorBodySize = 4 << 10
)

// Client は都市名から現在の天気を取得するインターフェース。
type Client interface {
	// Fetch は都市の現在の天気を取得する。
	// 失敗時はmodel.ErrNetwork、model.ErrCityNotFound、model.ErrDecodeのいずれかをラップしたエラーを返す。
	Fetch(ctx context.Context, city string) (*model.WeatherSnapshot, error)
}

// OpenWeatherConfig はOpenWeatherClientの設定。
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string        // テスト用にオーバーライド可能
	Timeout time.Duration // HTTPクライアントのタイムアウト
}

// OpenWeatherClient はOpenWeatherMapの現在の天気APIを呼び出すClient実装。
// 連続した通信失敗でサーキットブレーカーが開き、以降は即座にErrNetworkを返す。
type OpenWeatherClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    metrics.MetricsCollector
}

// NewOpenWeatherClient はOpenWeatherClientを生成する。
func NewOpenWeatherClient(cfg OpenWeatherConfig, collector metrics.MetricsCollector) *OpenWeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if collector == nil {
		collector = metrics.Nop{}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &OpenWeatherClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		metrics:    collector,
	}
}

// owmResponse はOpenWeatherMapの現在の天気レスポンスのうち利用するフィールド。
type owmResponse struct {
	Name string `json:"name"`
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
	Weather    []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// errUpstream はブレーカーの失敗として数える上流の応答を示す。
var errUpstream = errors.New("upstream unavailable")

// Fetch は都市の現在の天気を取得する。
func (c *OpenWeatherClient) Fetch(ctx context.Context, city string) (*model.WeatherSnapshot, error) {
	start := time.Now()
	defer func() { c.metrics.RecordWeatherLatency(time.Since(start)) }()

	values := url.Values{}
	values.Set("q", city)
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")
	endpoint := c.baseURL + weatherPath + "?" + values.Encode()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			// 呼び出し側のキャンセルは上流の障害として数えない
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr, nil
			}
			return nil, err
		}
		c.metrics.RecordHTTPStatus(resp.StatusCode)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", errUpstream, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}

	var resp *http.Response
	switch v := out.(type) {
	case *http.Response:
		resp = v
	case error:
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, v)
	default:
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", model.ErrNetwork)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", model.ErrCityNotFound, city)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d: %s", model.ErrNetwork, resp.StatusCode, readErrorMessage(resp.Body))
	}

	var payload owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if payload.Main == nil {
		return nil, fmt.Errorf("%w: missing main block", model.ErrDecode)
	}
	if len(payload.Weather) == 0 {
		return nil, fmt.Errorf("%w: empty weather list", model.ErrDecode)
	}

	cond := payload.Weather[0]
	return &model.WeatherSnapshot{
		CityQueried:          city,
		ResolvedName:         payload.Name,
		Temperature:          payload.Main.Temp,
		FeelsLike:            payload.Main.FeelsLike,
		PressureHpa:          payload.Main.Pressure,
		HumidityPct:          payload.Main.Humidity,
		WindSpeed:            payload.Wind.Speed,
		Sunrise:              payload.Sys.Sunrise,
		Sunset:               payload.Sys.Sunset,
		VisibilityMeters:     payload.Visibility,
		ConditionCode:        cond.ID,
		ConditionMain:        cond.Main,
		ConditionDescription: cond.Description,
	}, nil
}

// readErrorMessage はOpenWeatherMapのエラーボディからmessageを取り出す。
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil {
		return "unreadable body"
	}
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}

// compile-time interface check
var _ Client = (*OpenWeatherClient)(nil)
