package alerts

import (
	"strconv"
	"strings"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

// evalCondition evaluates a rule condition string against one report.
//
// Supported expressions (field operator value):
//
//	overall_score < 50
//	cpu_score < 60          (also memory_, disk_, network_, process_score)
//	anomalies > 5
//	critical_anomalies > 0
//	warning_anomalies >= 3
//	status == critical
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, h health.SystemHealth, as []anomaly.Anomaly) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "status" {
		switch op {
		case "==":
			return h.Status == rhs, float64(h.OverallScore)
		case "!=":
			return h.Status != rhs, float64(h.OverallScore)
		}
		return false, 0
	}

	v, ok := numericField(field, h, as)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the report.
func numericField(field string, h health.SystemHealth, as []anomaly.Anomaly) (float64, bool) {
	switch field {
	case "overall_score":
		return float64(h.OverallScore), true
	case "anomalies":
		return float64(len(as)), true
	case "critical_anomalies":
		return countSeverity(as, anomaly.SeverityCritical), true
	case "warning_anomalies":
		return countSeverity(as, anomaly.SeverityWarning), true
	}
	if name, ok := strings.CutSuffix(field, "_score"); ok {
		c, err := health.ParseCategory(name)
		if err != nil {
			return 0, false
		}
		comp, ok := h.Components[c]
		if !ok {
			return 0, false
		}
		return float64(comp.Score), true
	}
	return 0, false
}

func countSeverity(as []anomaly.Anomaly, s anomaly.Severity) float64 {
	var n float64
	for _, a := range as {
		if a.Severity == s {
			n++
		}
	}
	return n
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
