package models

import "strconv"

// Metric is a derived figure that may be explicitly unavailable: a zero
// denominator, too few data points or a zero standard deviation yields an
// undefined Metric, never 0, NaN or Inf.
type Metric struct {
	Val     float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// DefinedMetric wraps a computed value.
func DefinedMetric(v float64) Metric {
	return Metric{Val: v, Defined: true}
}

// UndefinedMetric is the explicit unavailable marker.
func UndefinedMetric() Metric {
	return Metric{}
}

// Float returns the value and whether it is defined.
func (m Metric) Float() (float64, bool) {
	return m.Val, m.Defined
}

// Format renders the metric for tabular export with the given precision,
// or the literal "undefined" when unavailable.
func (m Metric) Format(prec int) string {
	if !m.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(m.Val, 'f', prec, 64)
}

// Ratio computes num/den as a Metric, undefined when den is not strictly
// positive.
func Ratio(num, den float64) Metric {
	if den <= 0 {
		return UndefinedMetric()
	}
	return DefinedMetric(num / den)
}
