package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/skycast/internal/model"
)

// Category は天気アニメーションを選ぶための状態キー。
type Category string

const (
	CategoryClear  Category = "clear"
	CategoryClouds Category = "clouds"
	CategoryRain   Category = "rain"
	CategoryStorm  Category = "storm"
	CategorySnow   Category = "snow"
	CategoryFog    Category = "fog"
)

// conditionCategories は天気の状態名（小文字）からCategoryへの対応。
// 該当しない状態はCategoryClearになる。
var conditionCategories = map[string]Category{
	"clear":            CategoryClear,
	"sunny":            CategoryClear,
	"clouds":           CategoryClouds,
	"scattered clouds": CategoryClouds,
	"broken clouds":    CategoryClouds,
	"overcast clouds":  CategoryClouds,
	"rain":             CategoryRain,
	"light rain":       CategoryRain,
	"moderate rain":    CategoryRain,
	"heavy rain":       CategoryStorm,
	"snow":             CategorySnow,
	"light snow":       CategorySnow,
	"heavy snow":       CategorySnow,
	"mist":             CategoryFog,
	"fog":              CategoryFog,
	"haze":             CategoryFog,
	"thunderstorm":     CategoryStorm,
}

// ConditionCategory は状態の説明、次に状態名の順で対応を探し、Categoryを返す。
func ConditionCategory(main, description string) Category {
	if c, ok := conditionCategories[strings.ToLower(strings.TrimSpace(description))]; ok {
		return c
	}
	if c, ok := conditionCategories[strings.ToLower(strings.TrimSpace(main))]; ok {
		return c
	}
	return CategoryClear
}

// Display はUIに表示する整形済みの天気。
type Display struct {
	City        string   `json:"city"`
	Temperature string   `json:"temperature"`
	FeelsLike   string   `json:"feelsLike"`
	Pressure    string   `json:"pressure"`
	Humidity    string   `json:"humidity"`
	Wind        string   `json:"wind"`
	Sunrise     string   `json:"sunrise"`
	Sunset      string   `json:"sunset"`
	Visibility  string   `json:"visibility"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// NewDisplay はスナップショットを表示用に整形する。
// 温度は0方向に切り捨てた整数で表示し、スナップショットの値自体は変更しない。
// locがnilの場合はtime.Localで日の出・日の入りを表示する。
func NewDisplay(s model.WeatherSnapshot, loc *time.Location) Display {
	if loc == nil {
		loc = time.Local
	}
	city := s.ResolvedName
	if city == "" {
		city = s.CityQueried
	}
	return Display{
		City:        city,
		Temperature: fmt.Sprintf("%d°", int(s.Temperature)),
		FeelsLike:   fmt.Sprintf("Feels like %d°", int(s.FeelsLike)),
		Pressure:    fmt.Sprintf("%d hPa", int(s.PressureHpa)),
		Humidity:    fmt.Sprintf("%d%%", s.HumidityPct),
		Wind:        formatSpeed(s.WindSpeed) + " km/h",
		Sunrise:     formatClock(s.Sunrise, loc),
		Sunset:      formatClock(s.Sunset, loc),
		Visibility:  formatVisibility(s.VisibilityMeters),
		Description: capitalize(s.ConditionDescription),
		Category:    ConditionCategory(s.ConditionMain, s.ConditionDescription),
	}
}

// formatSpeed は小数部が0でも1桁は表示する（3 → "3.0"）。
func formatSpeed(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func formatClock(epochSeconds int64, loc *time.Location) string {
	return time.Unix(epochSeconds, 0).In(loc).Format("03:04 PM")
}

func formatVisibility(meters int) string {
	if meters >= 1000 {
		return fmt.Sprintf("%d km", meters/1000)
	}
	return fmt.Sprintf("%d m", meters)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToTitle(r)) + s[size:]
}
