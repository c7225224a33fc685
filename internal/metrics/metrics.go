// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインインとクエリの結果ラベル。
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeExchangeFailure = "exchange_failure"
	OutcomeNetwork         = "network"
	OutcomeCityNotFound    = "city_not_found"
	OutcomeDecode          = "decode"
)

// 世代が古くなり破棄された完了を数えるコンポーネントラベル。
const (
	ComponentAuth    = "auth"
	ComponentProfile = "profile"
	ComponentWeather = "weather"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証照合・天気パイプライン・天気APIクライアントから利用する。
type MetricsCollector interface {
	RecordSignIn(outcome string)
	RecordSelfHeal()
	RecordSuperseded(component string)
	RecordWeatherQuery(outcome string)
	RecordWeatherLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIns        *prometheus.CounterVec
	selfHeals      prometheus.Counter
	superseded     *prometheus.CounterVec
	weatherQueries *prometheus.CounterVec
	weatherLatency prometheus.Histogram
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_signin_total",
			Help: "結果別のサインイン照合数",
		}, []string{"outcome"}),
		selfHeals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skycast_profile_self_heal_total",
			Help: "再訪ユーザーのプロフィール欠損を再作成した回数",
		}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_superseded_total",
			Help: "新しい操作に追い越されて破棄された完了の数",
		}, []string{"component"}),
		weatherQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_weather_query_total",
			Help: "結果別の天気クエリ数",
		}, []string{"outcome"}),
		weatherLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skycast_weather_latency_seconds",
			Help:    "天気APIクエリのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_weather_http_status_total",
			Help: "天気APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signIns,
		c.selfHeals,
		c.superseded,
		c.weatherQueries,
		c.weatherLatency,
		c.httpStatus,
	)

	return c
}

// RecordSignIn はサインイン照合の結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIns.WithLabelValues(outcome).Inc()
}

// RecordSelfHeal はプロフィールの自己修復を記録する。
func (c *Collector) RecordSelfHeal() {
	c.selfHeals.Inc()
}

// RecordSuperseded は破棄された完了を記録する。
func (c *Collector) RecordSuperseded(component string) {
	c.superseded.WithLabelValues(component).Inc()
}

// RecordWeatherQuery は天気クエリの結果を記録する。
func (c *Collector) RecordWeatherQuery(outcome string) {
	c.weatherQueries.WithLabelValues(outcome).Inc()
}

// RecordWeatherLatency は天気クエリのレイテンシを記録する。
func (c *Collector) RecordWeatherLatency(duration time.Duration) {
	c.weatherLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus は天気APIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストや計測不要な構成で使う。
type Nop struct{}

func (Nop) RecordSignIn(string) {}
func (Nop) RecordSelfHeal() {}
func (Nop) RecordSuperseded(string) {}
func (Nop) RecordWeatherQuery(string) {}
func (Nop) RecordWeatherLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
