package model

// WeatherSnapshot は1回の天気クエリ成功で得られる現在の天気を表す。
// 次の成功クエリで丸ごと置き換えられ、フィールド単位でマージされることはない。
type WeatherSnapshot struct {
	CityQueried          string  `json:"cityQueried"`
	ResolvedName         string  `json:"resolvedName,omitempty"`
	Temperature          float64 `json:"temperature"`
	FeelsLike            float64 `json:"feelsLike"`
	PressureHpa          float64 `json:"pressureHpa"`
	HumidityPct          int     `json:"humidityPct"`
	WindSpeed            float64 `json:"windSpeed"`
	Sunrise              int64   `json:"sunrise"`
	Sunset               int64   `json:"sunset"`
	VisibilityMeters     int     `json:"visibilityMeters"`
	ConditionCode        int     `json:"conditionCode"`
	ConditionMain        string  `json:"conditionMain"`
	ConditionDescription string  `json:"conditionDescription"`
}
