package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/skycast/internal/middleware"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/result"
	"github.com/hitoshi/skycast/internal/weather"
)

// WeatherPipelineInterface は天気ハンドラーが必要とするパイプラインのインターフェース。
// weather.Pipelineが実装する。
type WeatherPipelineInterface interface {
	State() *result.Cell[model.WeatherSnapshot]
	City() string
	SetCity(name string) bool
	Refresh() bool
}

// WeatherHandler は天気クエリのHTTPハンドラー。
type WeatherHandler struct {
	pipeline WeatherPipelineInterface
	loc      *time.Location
}

// NewWeatherHandler はWeatherHandlerを生成する。
// locは日の出・日の入りの表示に使う。nilの場合はtime.Local。
func NewWeatherHandler(pipeline WeatherPipelineInterface, loc *time.Location) *WeatherHandler {
	return &WeatherHandler{pipeline: pipeline, loc: loc}
}

// setCityRequest は都市変更リクエストのボディ。
type setCityRequest struct {
	City string `json:"city" validate:"required,max=100"`
}

// weatherResponse は天気APIのレスポンス。
// displayは結果がSuccessのときだけ含まれる。
type weatherResponse struct {
	City    string                               `json:"city"`
	Result  result.Result[model.WeatherSnapshot] `json:"result"`
	Display *weather.Display                     `json:"display,omitempty"`
}

// Get は現在の都市と天気の結果を返す。
// GET /api/weather
func (h *WeatherHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.render(h.pipeline.State().Get()))
}

// SetCity は都市を変更してクエリを発行する。
// 空白のみの都市名は400を返し、クエリは発行しない。
// PUT /api/weather/city
func (h *WeatherHandler) SetCity(w http.ResponseWriter, r *http.Request) {
	var req setCityRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if !h.pipeline.SetCity(req.City) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCityError())
		return
	}

	writeJSON(w, http.StatusAccepted, h.render(h.pipeline.State().Get()))
}

// Refresh は現在の都市でクエリを再発行する。
// POST /api/weather/refresh
func (h *WeatherHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Refresh() {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError())
		return
	}

	writeJSON(w, http.StatusAccepted, h.render(h.pipeline.State().Get()))
}

// Stream は天気の結果の変化をServer-Sent Eventsで送る。
// GET /api/weather/stream
func (h *WeatherHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamResults(w, r, h.pipeline.State(), func(res result.Result[model.WeatherSnapshot]) any {
		return h.render(res)
	})
}

func (h *WeatherHandler) render(res result.Result[model.WeatherSnapshot]) weatherResponse {
	resp := weatherResponse{City: h.pipeline.City(), Result: res}
	if snap, ok := res.Value(); ok {
		d := weather.NewDisplay(snap, h.loc)
		resp.Display = &d
	}
	return resp
}
