package health

// Component weights in percent. They must sum to 100, so that the overall
// score is an exact integer weighted sum of the component scores.
const (
	weightCPU     = 25
	weightMemory  = 25
	weightDisk    = 25
	weightNetwork = 15
	weightProcess = 10
)

var weights = map[Category]int{
	CPU:     weightCPU,
	Memory:  weightMemory,
	Disk:    weightDisk,
	Network: weightNetwork,
	Process: weightProcess,
}

func init() {
	var sum int
	for _, w := range weights {
		sum += w
	}
	if sum != 100 {
		panic("health: component weights must sum to 1.0")
	}
}

// Weight returns the fraction of the overall score contributed by c.
func Weight(c Category) float64 { return float64(weights[c]) / 100 }

// Score bands used to aggregate component issues.
const (
	criticalBelow = 50
	warningBelow  = 70
	maxListed     = 5
)

// Status labels derived from a score.
const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusFair      = "fair"
	StatusPoor      = "poor"
	StatusCritical  = "critical"
)

// StatusFromScore maps a 0-100 score to its status label.
func StatusFromScore(score int) string {
	switch {
	case score >= 90:
		return StatusExcellent
	case score >= 70:
		return StatusGood
	case score >= 50:
		return StatusFair
	case score >= 25:
		return StatusPoor
	default:
		return StatusCritical
	}
}

// ComponentHealth is the scored result for one category.
type ComponentHealth struct {
	Component       Category `json:"component"`
	Score           int      `json:"score"`
	Status          string   `json:"status"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// SystemHealth is one complete scoring pass. It holds no timestamp, so
// identical input always produces an identical value.
type SystemHealth struct {
	OverallScore    int                          `json:"overall_score"`
	Status          string                       `json:"status"`
	Components      map[Category]ComponentHealth `json:"components"`
	CriticalIssues  []string                     `json:"critical_issues"`
	Warnings        []string                     `json:"warnings"`
	Recommendations []string                     `json:"recommendations"`
}

// Calculate scores every category of m and aggregates the result.
//
// The overall score is the floor of Σ(component score × weight); flooring
// biases the result slightly low. Components below 50 contribute their issues
// to CriticalIssues and components in [50, 70) to Warnings, in category
// order, each list capped at five. Recommendations from all components are
// deduplicated and capped at five.
func Calculate(m Metrics) SystemHealth {
	out := SystemHealth{
		Components:      make(map[Category]ComponentHealth, len(Categories)),
		CriticalIssues:  []string{},
		Warnings:        []string{},
		Recommendations: []string{},
	}

	seen := make(map[string]bool)
	var weighted int
	for _, c := range Categories {
		ch := ScoreComponent(c, m)
		out.Components[c] = ch
		weighted += ch.Score * weights[c]

		switch {
		case ch.Score < criticalBelow:
			out.CriticalIssues = appendCapped(out.CriticalIssues, ch.Issues)
		case ch.Score < warningBelow:
			out.Warnings = appendCapped(out.Warnings, ch.Issues)
		}
		out.Recommendations = appendUnique(out.Recommendations, seen, ch.Recommendations)
	}

	out.OverallScore = weighted / 100
	out.Status = StatusFromScore(out.OverallScore)
	return out
}

// ScoreComponent scores one category of m. A category without data scores 100.
func ScoreComponent(c Category, m Metrics) ComponentHealth {
	var (
		penalty      int
		issues, recs []string
	)
	switch c {
	case CPU:
		if m.CPU != nil {
			penalty, issues, recs = apply(m.CPU, cpuRules)
		}
	case Memory:
		if m.Memory != nil {
			penalty, issues, recs = apply(m.Memory, memoryRules)
		}
	case Disk:
		if m.Disk != nil {
			penalty, issues, recs = apply(m.Disk, diskRules)
		}
	case Network:
		if m.Network != nil {
			return scoreNetwork(m.Network)
		}
	case Process:
		if m.Process != nil {
			penalty, issues, recs = apply(m.Process, processRules)
		}
	}
	return component(c, 100-penalty, issues, recs)
}

// scoreNetwork hard-sets the score when connectivity is down; latency and
// packet loss bands only apply to a connected network.
func scoreNetwork(b *NetworkBundle) ComponentHealth {
	if !b.Connected {
		return component(Network, 0, []string{"No network connectivity"}, []string{RecCheckConnection})
	}
	penalty, issues, recs := apply(b, networkRules)
	return component(Network, 100-penalty, issues, recs)
}

func component(c Category, score int, issues, recs []string) ComponentHealth {
	score = clamp(score)
	if issues == nil {
		issues = []string{}
	}
	if recs == nil {
		recs = []string{}
	}
	return ComponentHealth{
		Component:       c,
		Score:           score,
		Status:          StatusFromScore(score),
		Issues:          issues,
		Recommendations: recs,
	}
}

func appendCapped(dst, src []string) []string {
	for _, s := range src {
		if len(dst) >= maxListed {
			break
		}
		dst = append(dst, s)
	}
	return dst
}

// appendUnique appends the entries of src not yet in seen, up to the list cap.
// The first occurrence of a string wins.
func appendUnique(dst []string, seen map[string]bool, src []string) []string {
	for _, s := range src {
		if len(dst) >= maxListed {
			break
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		dst = append(dst, s)
	}
	return dst
}

// clamp restricts v to the range [0, 100].
func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
