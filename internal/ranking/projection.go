package ranking

import (
	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Scope is what a caller may see of a challenge's leaderboards
type Scope int

const (
	// ScopeSelf limits rows to the caller's own and strips identifying columns
	ScopeSelf Scope = iota
	// ScopeFull exposes every row with every column
	ScopeFull
)

// ScopeFor resolves the caller's scope on a challenge owned by ownerID
func ScopeFor(caller contracts.Caller, ownerID uuid.UUID) Scope {
	if caller.IsSessionManager() || caller.UserID == ownerID {
		return ScopeFull
	}
	return ScopeSelf
}

// ContributionView is the serialized form of one ranked contribution.
// User and Value are nil when the scope hides them.
type ContributionView struct {
	EnsembleID        uuid.UUID          `json:"ensemble"`
	Model             string             `json:"ensemble_model"`
	Variable          contracts.Variable `json:"variable"`
	UserID            *uuid.UUID         `json:"user,omitempty"`
	Value             *float64           `json:"value,omitempty"`
	Rank              int                `json:"rank"`
	TotalParticipants int                `json:"total_participants"`
}

// ProjectContributions applies scope before serialization. ScopeSelf keeps
// only the caller's rows and drops their user and value columns.
func ProjectContributions(rows []RankedWeight, caller contracts.Caller, scope Scope) []ContributionView {
	out := make([]ContributionView, 0, len(rows))
	for _, r := range rows {
		view := ContributionView{
			EnsembleID:        r.EnsembleID,
			Model:             r.Model,
			Variable:          r.Variable,
			Rank:              r.Rank,
			TotalParticipants: r.TotalParticipants,
		}
		switch scope {
		case ScopeFull:
			user, value := r.UserID, r.Value
			view.UserID, view.Value = &user, &value
		default:
			if r.UserID != caller.UserID {
				continue
			}
		}
		out = append(out, view)
	}
	return out
}

// ProjectPersonalScores keeps every row for ScopeFull and the caller's own
// rows otherwise
func ProjectPersonalScores(rows []RankedScore, caller contracts.Caller, scope Scope) []RankedScore {
	if scope == ScopeFull {
		return rows
	}
	out := make([]RankedScore, 0)
	for _, r := range rows {
		if r.UserID == caller.UserID {
			out = append(out, r)
		}
	}
	return out
}
