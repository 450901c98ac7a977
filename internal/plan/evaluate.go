package plan

// Usage is the caller's pre-aggregated consumption.
type Usage struct {
	TotalProjects  int `json:"totalProjects"`
	TotalPolls     int `json:"totalPolls"`
	TotalResponses int `json:"totalResponses"`
}

// Remaining holds what is left per ceiling; nil means unlimited.
type Remaining struct {
	Projects  *int `json:"remainingProjects"`
	Polls     *int `json:"remainingPolls"`
	Responses *int `json:"remainingResponses"`
}

// Exceeded flags ceilings that usage has gone past.
type Exceeded struct {
	Projects  bool `json:"projects"`
	Polls     bool `json:"polls"`
	Responses bool `json:"responses"`
}

// Report is the result of Evaluate.
type Report struct {
	Plan      Plan
	Usage     Usage
	Remaining Remaining
	Exceeded  Exceeded
	Unlimited bool
}

// Evaluate compares usage against the plan of the given tier.
//
// It is a pure function: no I/O, no clock, no panics for any int input.
// It enforces nothing. Callers that create projects or polls must consult
// the report (AllowsProjects, AllowsPolls) BEFORE writing, because there
// is no transactional link between this check and the store.
func Evaluate(t Tier, u Usage) Report {
	p := For(t)
	return Report{
		Plan:  p,
		Usage: u,
		Remaining: Remaining{
			Projects:  remaining(p.MaxProjects, u.TotalProjects),
			Polls:     remaining(p.MaxTotalPolls, u.TotalPolls),
			Responses: remaining(p.MaxResponses, u.TotalResponses),
		},
		Exceeded: Exceeded{
			Projects:  exceeded(p.MaxProjects, u.TotalProjects),
			Polls:     exceeded(p.MaxTotalPolls, u.TotalPolls),
			Responses: exceeded(p.MaxResponses, u.TotalResponses),
		},
		Unlimited: p.Unlimited(),
	}
}

func remaining(l Limit, used int) *int {
	if !l.Bounded() {
		return nil
	}
	left := int(l) - used
	if left < 0 {
		left = 0
	}
	return &left
}

func exceeded(l Limit, used int) bool {
	if !l.Bounded() {
		return false
	}
	return used > int(l)
}

// AllowsProjects reports whether n more projects fit in what is left.
func (r Report) AllowsProjects(n int) bool {
	return fits(r.Remaining.Projects, n)
}

// AllowsPolls reports whether n more polls fit in the account-wide total.
// The per-project ceiling is not part of usage; check it with
// Plan.MaxPollsPerProject.Allows.
func (r Report) AllowsPolls(n int) bool {
	return fits(r.Remaining.Polls, n)
}

func fits(remaining *int, n int) bool {
	return remaining == nil || n <= *remaining
}
