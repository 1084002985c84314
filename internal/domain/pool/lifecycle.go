package pool

import (
	"strings"
	"time"

	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"
)

type Status string

const (
	StatusDraft        Status = "draft"
	StatusSeeking      Status = "seeking"
	StatusFunded       Status = "funded"
	StatusActive       Status = "active"
	StatusDistributing Status = "distributing"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

var AllStatuses = []Status{
	StatusDraft, StatusSeeking, StatusFunded, StatusActive,
	StatusDistributing, StatusCompleted, StatusCancelled,
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionPublish           Action = "publish"
	ActionFund              Action = "fund"
	ActionCloseEarly        Action = "close_early"
	ActionReopen            Action = "reopen"
	ActionActivate          Action = "activate"
	ActionStartDistribution Action = "start_distribution"
	ActionEndDistribution   Action = "end_distribution"
	ActionCancel            Action = "cancel"
	ActionComplete          Action = "complete"
)

var AllActions = []Action{
	ActionPublish, ActionFund, ActionCloseEarly, ActionReopen, ActionActivate,
	ActionStartDistribution, ActionEndDistribution, ActionCancel, ActionComplete,
}

// targets maps every action to the status it produces.
var targets = map[Action]Status{
	ActionPublish:           StatusSeeking,
	ActionFund:              StatusFunded,
	ActionCloseEarly:        StatusFunded,
	ActionReopen:            StatusSeeking,
	ActionActivate:          StatusActive,
	ActionStartDistribution: StatusDistributing,
	ActionEndDistribution:   StatusActive,
	ActionCancel:            StatusCancelled,
	ActionComplete:          StatusCompleted,
}

// transitions is the full lifecycle. A (status, action) pair missing here is rejected.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionPublish: StatusSeeking,
	},
	StatusSeeking: {
		ActionFund:       StatusFunded,
		ActionCloseEarly: StatusFunded,
		ActionCancel:     StatusCancelled,
	},
	StatusFunded: {
		ActionReopen:   StatusSeeking,
		ActionActivate: StatusActive,
		ActionCancel:   StatusCancelled,
	},
	StatusActive: {
		ActionStartDistribution: StatusDistributing,
		ActionCancel:            StatusCancelled,
		ActionComplete:          StatusCompleted,
	},
	StatusDistributing: {
		ActionEndDistribution: StatusActive,
		ActionCancel:          StatusCancelled,
		ActionComplete:        StatusCompleted,
	},
}

func (a Action) Target() Status {
	return targets[a]
}

// Next looks up the lifecycle table without evaluating guards.
func Next(from Status, action Action) (Status, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	requested := string(action.Target())
	if requested == "" {
		requested = string(action)
	}
	return "", appErrors.NewInvalidTransitionError(string(from), requested)
}

// ActionForStatus resolves the action a manager means when asking for target.
// The automatic fund and reopen actions are never chosen here.
func ActionForStatus(current, target Status) (Action, error) {
	switch target {
	case StatusSeeking:
		return ActionPublish, nil
	case StatusFunded:
		return ActionCloseEarly, nil
	case StatusActive:
		if current == StatusDistributing {
			return ActionEndDistribution, nil
		}
		return ActionActivate, nil
	case StatusDistributing:
		return ActionStartDistribution, nil
	case StatusCompleted:
		return ActionComplete, nil
	case StatusCancelled:
		return ActionCancel, nil
	}
	return "", appErrors.NewInvalidTransitionError(string(current), string(target))
}

// Apply moves p through action if the table and the action's guard allow it,
// stamping the timestamps and flags that go with the new status. p is left
// untouched on error.
func (p *Pool) Apply(action Action, reason string, now time.Time) (*Event, error) {
	to, err := Next(p.Status, action)
	if err != nil {
		return nil, err
	}
	if err := p.checkGuard(action, reason); err != nil {
		return nil, err
	}

	from := p.Status
	p.Status = to
	p.UpdatedAt = now

	switch action {
	case ActionFund:
		p.FundedAt = &now
	case ActionCloseEarly:
		p.ClosedEarly = true
		p.FundedAt = &now
	case ActionReopen:
		p.FundedAt = nil
	case ActionCancel:
		trimmed := strings.TrimSpace(reason)
		p.CancelReason = &trimmed
		p.CancelledAt = &now
	case ActionComplete:
		p.CompletedAt = &now
	}

	return &Event{
		Id:         pkg.NewID(),
		PoolId:     p.Id,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  now,
	}, nil
}

func (p *Pool) checkGuard(action Action, reason string) error {
	switch action {
	case ActionPublish:
		if missing := p.missingPublishFields(); len(missing) > 0 {
			fields := make([]map[string]string, 0, len(missing))
			for _, f := range missing {
				fields = append(fields, map[string]string{"field": f, "message": f + " must be set before publishing"})
			}
			return appErrors.ErrValidation.
				WithMessage("Pool is incomplete and cannot be published").
				WithDetails(map[string]interface{}{"fields": fields})
		}
	case ActionFund:
		if !p.RaisedAmount.Equal(p.TargetAmount) {
			return p.guardFailure(action, "raisedAmount has not reached targetAmount")
		}
	case ActionCloseEarly:
		if !p.RaisedAmount.IsPositive() {
			return p.guardFailure(action, "a pool with no investments cannot be closed early")
		}
	case ActionReopen:
		if p.ClosedEarly || !p.RaisedAmount.LessThan(p.TargetAmount) {
			return p.guardFailure(action, "pool is fully funded or was closed early")
		}
	case ActionCancel:
		if strings.TrimSpace(reason) == "" {
			return appErrors.NewValidationError("reason", "reason is required to cancel a pool")
		}
	case ActionComplete:
		if !p.FinalDistributionCreated {
			return p.guardFailure(action, "a sale_proceeds distribution must be created before completing")
		}
	}
	return nil
}

func (p *Pool) missingPublishFields() []string {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if !p.TargetAmount.IsPositive() {
		missing = append(missing, "targetAmount")
	}
	if !p.MinInvestment.IsPositive() {
		missing = append(missing, "minInvestment")
	}
	if !p.SharePrice.IsPositive() {
		missing = append(missing, "sharePrice")
	}
	if p.TotalShares <= 0 {
		missing = append(missing, "totalShares")
	}
	return missing
}

func (p *Pool) guardFailure(action Action, reason string) error {
	err := appErrors.NewInvalidTransitionError(string(p.Status), string(action.Target()))
	err.Details["action"] = string(action)
	err.Details["reason"] = reason
	return err
}
