// Package compliance provides the checklist and score returned by the
// SBDH, AS4, MLR and certificate validators.
package compliance

import "math"

// Status is the outcome of a single check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// Check is a single checklist entry.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report collects checks. A report is compliant when no check failed;
// warnings lower the score but never block.
type Report struct {
	Checks          []Check  `json:"checks"`
	Score           int      `json:"score"`
	Compliant       bool     `json:"compliant"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// genericRecommendation is attached when the score drops below 100 without a
// more specific hint.
const genericRecommendation = "Review the failed and warning checks before transmission"

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Checks: make([]Check, 0, 8)}
}

// Pass records a passed check.
func (r *Report) Pass(name, message string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusPass, Message: message})
}

// Warn records an advisory finding with an optional recommendation.
func (r *Report) Warn(name, message, recommendation string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusWarning, Message: message})
	r.recommend(recommendation)
}

// Fail records a hard failure with an optional recommendation.
func (r *Report) Fail(name, message, recommendation string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusFail, Message: message})
	r.recommend(recommendation)
}

func (r *Report) recommend(recommendation string) {
	if recommendation == "" {
		return
	}
	for _, existing := range r.Recommendations {
		if existing == recommendation {
			return
		}
	}
	r.Recommendations = append(r.Recommendations, recommendation)
}

// Finalize computes the score and compliance flag. A pass counts fully, a
// warning counts half and a failure counts nothing.
func (r *Report) Finalize() *Report {
	if len(r.Checks) == 0 {
		r.Score = 0
		r.Compliant = false
		r.recommend(genericRecommendation)
		return r
	}

	var points float64
	r.Compliant = true
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			points += 1
		case StatusWarning:
			points += 0.5
		case StatusFail:
			r.Compliant = false
		}
	}
	r.Score = int(math.Floor(points * 100 / float64(len(r.Checks))))
	if r.Score < 100 && len(r.Recommendations) == 0 {
		r.recommend(genericRecommendation)
	}
	return r
}

// Failed returns the names of failed checks.
func (r *Report) Failed() []string {
	return r.namesWith(StatusFail)
}

// Warnings returns the names of checks that produced warnings.
func (r *Report) Warnings() []string {
	return r.namesWith(StatusWarning)
}

// Check returns the entry with the given name.
func (r *Report) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func (r *Report) namesWith(status Status) []string {
	var names []string
	for _, c := range r.Checks {
		if c.Status == status {
			names = append(names, c.Name)
		}
	}
	return names
}
