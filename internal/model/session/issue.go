package session

import "time"

// IssueStatus tracks how well a surfaced grievance has been handled.
type IssueStatus string

const (
	IssueUnaddressed     IssueStatus = "unaddressed"
	IssueWellAddressed   IssueStatus = "well_addressed"
	IssuePoorlyAddressed IssueStatus = "poorly_addressed"
	IssueDeferred        IssueStatus = "deferred"
)

// ValidIssueStatus reports whether s is a known status.
func ValidIssueStatus(s IssueStatus) bool {
	switch s {
	case IssueUnaddressed, IssueWellAddressed, IssuePoorlyAddressed, IssueDeferred:
		return true
	}
	return false
}

// Issue is a grievance surfaced by analysis. Issues are never deleted,
// only re-graded; writes are last-write-wins per issue id.
type Issue struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"sessionId"`
	Label            string      `json:"label"`
	Description      string      `json:"description"`
	Status           IssueStatus `json:"status"`
	RaisedBy         Sender      `json:"raisedBy"`
	GradingRationale string      `json:"gradingRationale,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
