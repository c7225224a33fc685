package weather

import (
	"testing"
	"time"

	"github.com/hitoshi/skycast/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNewDisplay_FormatsSnapshot(t *testing.T) {
	sunrise := time.Date(2024, 6, 1, 5, 7, 0, 0, time.UTC).Unix()
	sunset := time.Date(2024, 6, 1, 20, 45, 0, 0, time.UTC).Unix()

	s := model.WeatherSnapshot{
		CityQueried:          "london",
		ResolvedName:         "London",
		Temperature:          15.9,
		FeelsLike:            -0.7,
		PressureHpa:          1012.8,
		HumidityPct:          82,
		WindSpeed:            4,
		Sunrise:              sunrise,
		Sunset:               sunset,
		VisibilityMeters:     9500,
		ConditionMain:        "Rain",
		ConditionDescription: "light rain",
	}

	got := NewDisplay(s, time.UTC)

	assert.Equal(t, Display{
		City:        "London",
		Temperature: "15°",
		FeelsLike:   "Feels like 0°",
		Pressure:    "1012 hPa",
		Humidity:    "82%",
		Wind:        "4.0 km/h",
		Sunrise:     "05:07 AM",
		Sunset:      "08:45 PM",
		Visibility:  "9 km",
		Description: "Light rain",
		Category:    CategoryRain,
	}, got)
	assert.Equal(t, 15.9, s.Temperature, "snapshot must keep the raw value")
}

func TestNewDisplay_FallsBackToQueriedCity(t *testing.T) {
	got := NewDisplay(model.WeatherSnapshot{CityQueried: "Delhi", Temperature: -3.4}, time.UTC)

	assert.Equal(t, "Delhi", got.City)
	assert.Equal(t, "-3°", got.Temperature)
	assert.Equal(t, "", got.Description)
}

func TestNewDisplay_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	ts := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC).Unix()

	got := NewDisplay(model.WeatherSnapshot{Sunrise: ts}, tokyo)
	assert.Equal(t, "09:30 AM", got.Sunrise)
}

func TestFormatVisibility(t *testing.T) {
	tests := []struct {
		meters int
		want   string
	}{
		{0, "0 m"},
		{999, "999 m"},
		{1000, "1 km"},
		{10000, "10 km"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatVisibility(tt.meters))
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "3.6", formatSpeed(3.6))
	assert.Equal(t, "0.0", formatSpeed(0))
	assert.Equal(t, "12.0", formatSpeed(12))
}

func TestConditionCategory(t *testing.T) {
	tests := []struct {
		main, description string
		want              Category
	}{
		{"Clear", "clear sky", CategoryClear},
		{"Clouds", "overcast clouds", CategoryClouds},
		{"Clouds", "few clouds", CategoryClouds},
		{"Rain", "moderate rain", CategoryRain},
		{"Rain", "heavy rain", CategoryStorm},
		{"Thunderstorm", "thunderstorm with rain", CategoryStorm},
		{"Snow", "light snow", CategorySnow},
		{"Mist", "mist", CategoryFog},
		{"Haze", "haze", CategoryFog},
		{"Drizzle", "light intensity drizzle", CategoryClear},
		{"", "", CategoryClear},
	}
	for _, tt := range tests {
		t.Run(tt.main+"/"+tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, ConditionCategory(tt.main, tt.description))
		})
	}
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Light rain", capitalize("light rain"))
	assert.Equal(t, "Élan", capitalize("élan"))
	assert.Equal(t, "", capitalize(""))
}
