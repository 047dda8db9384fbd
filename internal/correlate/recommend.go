package correlate

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

// Priority levels, most urgent first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Risk levels of acting on a recommendation.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var priorityRank = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// recIDSpace scopes the name-based recommendation IDs.
var recIDSpace = uuid.MustParse("5b0e3f63-8f3c-4c59-9a53-2f2b1c1d6a10")

// Recommendation is one ranked, actionable suggestion.
type Recommendation struct {
	// ID is stable for a given category and title.
	ID          string `json:"id"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
	// Automated reports whether the action can be carried out without a human.
	Automated bool   `json:"automated"`
	Risk      string `json:"risk"`
}

// action describes how a health recommendation is carried out. Only
// read-only sysmind commands are automated; everything else is guidance for
// an operator.
type action struct {
	text      string
	automated bool
	risk      string
}

const (
	anomalyAction     = "sysmind anomalies -period 1h"
	correlationAction = "sysmind anomalies -summary -period 1h"
)

var actions = map[string]action{
	health.RecReduceCPU:        {"Stop or renice the top CPU consumers (ps -eo pid,pcpu,comm --sort=-pcpu)", false, RiskMedium},
	health.RecReviewCPU:        {"sysmind trends -period 1h", true, RiskLow},
	health.RecInvestigateCPU:   {anomalyAction, true, RiskLow},
	health.RecReduceLoad:       {"Reschedule batch jobs outside peak hours", false, RiskMedium},
	health.RecFreeMemory:       {"Close the largest memory consumers (ps -eo pid,rss,comm --sort=-rss)", false, RiskMedium},
	health.RecReviewMemory:     {"sysmind trends -period 24h", true, RiskLow},
	health.RecReduceSwap:       {"Free memory, then cycle swap off and on", false, RiskMedium},
	health.RecFreeDisk:         {"Remove large or unused files from the monitored mountpoint (du -xh | sort -rh)", false, RiskMedium},
	health.RecCleanDisk:        {"Remove old logs, caches and build artifacts", false, RiskLow},
	health.RecRemoveDuplicates: {"Find duplicate files with a dedupe tool and remove the copies", false, RiskMedium},
	health.RecCleanTemp:        {"Delete files older than a week from the temp directory", false, RiskLow},
	health.RecCheckConnection:  {"Check adapter, cabling and the default gateway", false, RiskLow},
	health.RecCheckLatency:     {"sysmind health -component network", true, RiskLow},
	health.RecCheckPacketLoss:  {"sysmind health -component network", true, RiskLow},
	health.RecCheckInterfaces:  {"Inspect interface error counters (ip -s link)", false, RiskLow},
	health.RecReduceStartup:    {"Disable unneeded services at boot", false, RiskLow},
	health.RecReapZombies:      {"Restart the parents of zombie processes", false, RiskMedium},
	health.RecReviewProcesses:  {"sysmind health -component process", true, RiskLow},
	health.RecReviewHogs:       {"Review processes with a resident set above 1 GB (ps -eo pid,rss,comm --sort=-rss)", false, RiskMedium},
}

// ActionTexts returns every distinct action text Recommend can produce,
// sorted.
func ActionTexts() []string {
	set := map[string]bool{anomalyAction: true, correlationAction: true}
	for _, a := range actions {
		set[a.text] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Recommend merges component recommendations, anomaly follow-ups and
// correlation hints into one ranked list, deduplicated on title (first wins)
// and ordered by priority, then category order. Inputs are not modified.
func Recommend(h health.SystemHealth, as []anomaly.Anomaly, events []Event) []Recommendation {
	var out []Recommendation

	for _, c := range health.Categories {
		ch, ok := h.Components[c]
		if !ok {
			continue
		}
		prio := componentPriority(ch.Score)
		desc := fmt.Sprintf("%s health is %s (score %d).", c, ch.Status, ch.Score)
		if len(ch.Issues) > 0 {
			desc = fmt.Sprintf("%s Detected: %s.", desc, ch.Issues[0])
		}
		for _, title := range ch.Recommendations {
			act := actions[title]
			if act.risk == "" {
				act.risk = RiskLow
			}
			out = append(out, newRecommendation(string(c), prio, title, desc, act))
		}
	}

	for _, a := range worstPerMetric(as) {
		prio := PriorityMedium
		if a.Severity == anomaly.SeverityCritical {
			prio = PriorityHigh
		}
		cat, _ := health.CategoryOf(a.Metric)
		title := fmt.Sprintf("Investigate unusual %s readings", a.Metric)
		desc := fmt.Sprintf("%s was %.2f, %.1f standard deviations %s its baseline mean of %.2f.",
			a.Metric, a.Value, abs(a.ZScore), a.Direction(), a.BaselineMean)
		out = append(out, newRecommendation(string(cat), prio, title, desc,
			action{text: anomalyAction, automated: true, risk: RiskLow}))
	}

	for _, ev := range events {
		prio := PriorityMedium
		if ev.Severity == anomaly.SeverityCritical {
			prio = PriorityHigh
		}
		title := fmt.Sprintf("Investigate correlated activity: %s", ev.Label)
		desc := fmt.Sprintf("%d anomalies across %d metrics between %s and %s.",
			len(ev.Anomalies), len(ev.Metrics),
			ev.Start.Format("15:04:05"), ev.End.Format("15:04:05"))
		out = append(out, newRecommendation("correlation", prio, title, desc,
			action{text: correlationAction, automated: true, risk: RiskLow}))
	}

	return rank(dedupe(out))
}

// QuickWins returns the automated, low-risk recommendations of high or medium
// priority.
func QuickWins(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, 0)
	for _, r := range recs {
		if r.Automated && r.Risk == RiskLow && (r.Priority == PriorityHigh || r.Priority == PriorityMedium) {
			out = append(out, r)
		}
	}
	return out
}

// FilterCategory returns the recommendations of one category.
func FilterCategory(recs []Recommendation, category string) []Recommendation {
	out := make([]Recommendation, 0)
	for _, r := range recs {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Summary counts recommendations by priority and category.
type Summary struct {
	Total      int            `json:"total"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
	QuickWins  int            `json:"quick_wins"`
	Automated  int            `json:"automated"`
}

// Summarize builds a Summary over recs.
func Summarize(recs []Recommendation) Summary {
	s := Summary{
		Total: len(recs),
		ByPriority: map[string]int{
			PriorityCritical: 0, PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0,
		},
		ByCategory: make(map[string]int),
		QuickWins:  len(QuickWins(recs)),
	}
	for _, r := range recs {
		s.ByPriority[r.Priority]++
		s.ByCategory[r.Category]++
		if r.Automated {
			s.Automated++
		}
	}
	return s
}

func componentPriority(score int) string {
	switch {
	case score < 50:
		return PriorityCritical
	case score < 70:
		return PriorityHigh
	case score < 90:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func newRecommendation(category, prio, title, desc string, act action) Recommendation {
	return Recommendation{
		ID:          uuid.NewSHA1(recIDSpace, []byte(category+"/"+title)).String(),
		Category:    category,
		Priority:    prio,
		Title:       title,
		Description: desc,
		Action:      act.text,
		Automated:   act.automated,
		Risk:        act.risk,
	}
}

// worstPerMetric keeps the most severe warning-or-above anomaly per metric,
// in first-seen metric order.
func worstPerMetric(as []anomaly.Anomaly) []anomaly.Anomaly {
	idx := make(map[string]int)
	var out []anomaly.Anomaly
	for _, a := range as {
		if a.Severity < anomaly.SeverityWarning {
			continue
		}
		i, ok := idx[a.Metric]
		if !ok {
			idx[a.Metric] = len(out)
			out = append(out, a)
			continue
		}
		if a.Severity > out[i].Severity || (a.Severity == out[i].Severity && abs(a.ZScore) > abs(out[i].ZScore)) {
			out[i] = a
		}
	}
	return out
}

func dedupe(recs []Recommendation) []Recommendation {
	seen := make(map[string]bool, len(recs))
	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		out = append(out, r)
	}
	return out
}

// rank sorts by priority; ties keep their insertion order, which follows
// category evaluation order.
func rank(recs []Recommendation) []Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})
	return recs
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
