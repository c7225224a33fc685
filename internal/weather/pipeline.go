package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/skycast/internal/metrics"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/result"
)

// DefaultCity は都市が設定されていない場合の初期値。
const DefaultCity = "Delhi"

// Pipeline は都市クエリを1件の進行中リクエストに変換し、結果をストリームとして公開する。
// 最後に発行したクエリの結果だけが状態を更新する。完了順ではなく発行順で決まる。
type Pipeline struct {
	client  Client
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	city   string
	gen    uint64
	cancel context.CancelFunc

	state *result.Cell[model.WeatherSnapshot]
}

// NewPipeline はPipelineを生成する。defaultCityが空の場合はDefaultCityを使う。
// 生成時にはクエリを発行しない。初回の取得はRefreshで行う。
func NewPipeline(client Client, defaultCity string, collector metrics.MetricsCollector, logger *slog.Logger) *Pipeline {
	defaultCity = strings.TrimSpace(defaultCity)
	if defaultCity == "" {
		defaultCity = DefaultCity
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, stop := context.WithCancel(context.Background())
	return &Pipeline{
		client:  client,
		metrics: collector,
		logger:  logger,
		root:    root,
		stop:    stop,
		city:    defaultCity,
		state:   result.NewCell(result.Pending[model.WeatherSnapshot]()),
	}
}

// State は天気の結果ストリームを返す。
func (p *Pipeline) State() *result.Cell[model.WeatherSnapshot] {
	return p.state
}

// City は現在のクエリ文字列を返す。
func (p *Pipeline) City() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.city
}

// SetCity は都市を設定してクエリを発行する。
// 空白のみの入力はクエリを発行せずfalseを返し、状態も都市も変更しない。
func (p *Pipeline) SetCity(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.city = name
	p.issueLocked()
	return true
}

// Refresh は現在の都市でクエリを再発行する。ユーザー操作による再試行に使う。
func (p *Pipeline) Refresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.issueLocked()
	return true
}

// Close は進行中のクエリをキャンセルし、終了を待つ。
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.stop()
	p.mu.Unlock()

	p.wg.Wait()
}

// issueLocked は新しい世代を発行し、前のリクエストをキャンセルしてPendingを公開する。
// 呼び出し時にmuを保持していること。
func (p *Pipeline) issueLocked() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(p.root)
	p.cancel = cancel

	gen, city := p.gen, p.city
	p.state.Publish(result.Pending[model.WeatherSnapshot]())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.recoverQuery(gen)
		p.query(ctx, gen, city)
	}()
}

func (p *Pipeline) query(ctx context.Context, gen uint64, city string) {
	snapshot, err := p.client.Fetch(ctx, city)
	if err != nil {
		if p.publish(gen, result.Failure[model.WeatherSnapshot](err.Error())) {
			p.metrics.RecordWeatherQuery(outcomeOf(err))
			p.logger.Warn("weather query failed",
				slog.String("city", city),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if p.publish(gen, result.Success(*snapshot)) {
		p.metrics.RecordWeatherQuery(metrics.OutcomeSuccess)
	}
}

// publish は世代が最新の場合のみ結果を公開し、公開したかを返す。
func (p *Pipeline) publish(gen uint64, res result.Result[model.WeatherSnapshot]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if gen != p.gen {
		p.metrics.RecordSuperseded(metrics.ComponentWeather)
		return false
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state.Publish(res)
	return true
}

func (p *Pipeline) recoverQuery(gen uint64) {
	if rec := recover(); rec != nil {
		p.logger.Error("panic in weather query", slog.Any("panic", rec))
		p.publish(gen, result.Failure[model.WeatherSnapshot](fmt.Sprintf("internal error: %v", rec)))
	}
}

// outcomeOf はエラーをメトリクスの結果ラベルに変換する。
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, model.ErrCityNotFound):
		return metrics.OutcomeCityNotFound
	case errors.Is(err, model.ErrDecode):
		return metrics.OutcomeDecode
	case errors.Is(err, model.ErrNetwork):
		return metrics.OutcomeNetwork
	default:
		return metrics.OutcomeFailure
	}
}
