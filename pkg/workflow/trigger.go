package workflow

import "strings"

// EventKind identifies the kind of event that may trigger a workflow.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
	EventSchedule    EventKind = "schedule"
)

// Event describes a single trigger occurrence.
type Event struct {
	Kind   EventKind
	Branch string
}

// Matches reports whether the workflow's triggers accept the event.
// The second return value explains a negative answer.
func (w *Workflow) Matches(ev Event) (bool, string) {
	switch ev.Kind {
	case EventPush:
		if w.On.Push == nil {
			return false, "workflow has no push trigger"
		}
		return matchBranch(w.On.Push, ev.Branch)
	case EventPullRequest:
		if w.On.PullRequest == nil {
			return false, "workflow has no pull_request trigger"
		}
		return matchBranch(w.On.PullRequest, ev.Branch)
	case EventSchedule:
		if len(w.On.Schedule) == 0 {
			return false, "workflow has no schedule trigger"
		}
		return true, ""
	default:
		return false, "unknown event kind " + string(ev.Kind)
	}
}

func matchBranch(trigger *BranchTrigger, branch string) (bool, string) {
	if len(trigger.Branches) == 0 {
		return true, ""
	}
	for _, pattern := range trigger.Branches {
		if branchMatch(pattern, branch) {
			return true, ""
		}
	}
	return false, "branch " + branch + " does not match trigger branches"
}

// branchMatch supports exact names plus a single leading or trailing
// "*" wildcard ("release/*", "*-stable", "*").
func branchMatch(pattern, branch string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(branch, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(branch, strings.TrimPrefix(pattern, "*"))
	default:
		return pattern == branch
	}
}
