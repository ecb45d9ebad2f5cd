package automation

// Metric names a value a condition can compare against
type Metric string

const (
	MetricImpressions Metric = "impressions"
	MetricClicks      Metric = "clicks"
	MetricSpend       Metric = "spend"
	MetricConversions Metric = "conversions"
	MetricCTR         Metric = "ctr"
	MetricCPC         Metric = "cpc"
	MetricCPA         Metric = "cpa"
	MetricROAS        Metric = "roas"
)

// SupportedMetrics lists every metric a condition may reference
var SupportedMetrics = []Metric{
	MetricImpressions, MetricClicks, MetricSpend, MetricConversions,
	MetricCTR, MetricCPC, MetricCPA, MetricROAS,
}

// Valid reports whether m is a supported metric
func (m Metric) Valid() bool {
	for _, supported := range SupportedMetrics {
		if m == supported {
			return true
		}
	}
	return false
}

// RawMetrics is the summed performance data returned by a MetricsStore
type RawMetrics struct {
	Impressions     int64   `json:"impressions" db:"impressions"`
	Clicks          int64   `json:"clicks" db:"clicks"`
	Spend           float64 `json:"spend" db:"spend"`
	Conversions     float64 `json:"conversions" db:"conversions"`
	ConversionValue float64 `json:"conversion_value" db:"conversion_value"`
}

// MetricSnapshot is RawMetrics plus the derived ratios
type MetricSnapshot struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Spend           float64 `json:"spend"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	CTR             float64 `json:"ctr"`
	CPC             float64 `json:"cpc"`
	CPA             float64 `json:"cpa"`
	ROAS            float64 `json:"roas"`
}

// NewSnapshot derives CTR, CPC, CPA and ROAS from raw sums.
// A zero denominator yields 0 for that ratio.
func NewSnapshot(raw RawMetrics) MetricSnapshot {
	return MetricSnapshot{
		Impressions:     raw.Impressions,
		Clicks:          raw.Clicks,
		Spend:           raw.Spend,
		Conversions:     raw.Conversions,
		ConversionValue: raw.ConversionValue,
		CTR:             safeDiv(float64(raw.Clicks), float64(raw.Impressions)) * 100,
		CPC:             safeDiv(raw.Spend, float64(raw.Clicks)),
		CPA:             safeDiv(raw.Spend, raw.Conversions),
		ROAS:            safeDiv(raw.ConversionValue, raw.Spend),
	}
}

// Value returns the value of m, and false when m is not supported
func (s MetricSnapshot) Value(m Metric) (float64, bool) {
	switch m {
	case MetricImpressions:
		return float64(s.Impressions), true
	case MetricClicks:
		return float64(s.Clicks), true
	case MetricSpend:
		return s.Spend, true
	case MetricConversions:
		return s.Conversions, true
	case MetricCTR:
		return s.CTR, true
	case MetricCPC:
		return s.CPC, true
	case MetricCPA:
		return s.CPA, true
	case MetricROAS:
		return s.ROAS, true
	default:
		return 0, false
	}
}

// Empty reports whether the window had no data at all
func (s MetricSnapshot) Empty() bool {
	return s.Impressions == 0 && s.Clicks == 0 && s.Spend == 0 &&
		s.Conversions == 0 && s.ConversionValue == 0
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
