package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus 마켓 세션 상태
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionClosed   SessionStatus = "closed"
	SessionRunning  SessionStatus = "running"
	SessionFinished SessionStatus = "finished"
)

// SessionStatuses lists every status in lifecycle order
var SessionStatuses = []SessionStatus{SessionOpen, SessionClosed, SessionRunning, SessionFinished}

// Valid reports whether s is one of the enumerated statuses
func (s SessionStatus) Valid() bool {
	for _, v := range SessionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// MarketSession is a time-boxed market period
type MarketSession struct {
	ID       int64         `json:"id"`
	OpenTS   time.Time     `json:"open_ts"`
	CloseTS  *time.Time    `json:"close_ts"`
	LaunchTS *time.Time    `json:"launch_ts"`
	FinishTS *time.Time    `json:"finish_ts"`
	Status   SessionStatus `json:"status"`
}

// SessionPatch carries the mutable session fields; nil means unchanged
type SessionPatch struct {
	Status   *SessionStatus `json:"status,omitempty"`
	CloseTS  *time.Time     `json:"close_ts,omitempty"`
	LaunchTS *time.Time     `json:"launch_ts,omitempty"`
	FinishTS *time.Time     `json:"finish_ts,omitempty"`
}

// SessionFilter narrows list_sessions
type SessionFilter struct {
	ID         *int64
	Status     *SessionStatus
	LatestOnly bool
}

// UseCase 챌린지 용도
type UseCase string

const (
	UseCaseWindPower     UseCase = "wind_power"
	UseCaseWindPowerRamp UseCase = "wind_power_ramp"
)

// Valid reports whether u is a supported use case
func (u UseCase) Valid() bool {
	return u == UseCaseWindPower || u == UseCaseWindPowerRamp
}

// Challenge is a market maker's request for next-day forecasts on one resource
type Challenge struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user"`
	ResourceID    uuid.UUID `json:"resource"`
	SessionID     int64     `json:"market_session"`
	UseCase       UseCase   `json:"use_case"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	TargetDay     time.Time `json:"target_day"` // date only, resource local calendar
	RegisteredAt  time.Time `json:"registered_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChallengePatch is the restricted set of mutable challenge fields
type ChallengePatch struct {
	UseCase       *UseCase   `json:"use_case,omitempty"`
	StartDatetime *time.Time `json:"start_datetime,omitempty"`
	EndDatetime   *time.Time `json:"end_datetime,omitempty"`
	TargetDay     *time.Time `json:"target_day,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p ChallengePatch) Empty() bool {
	return p.UseCase == nil && p.StartDatetime == nil && p.EndDatetime == nil && p.TargetDay == nil
}

// ChallengeFilter narrows list_challenges
type ChallengeFilter struct {
	SessionID   *int64
	ResourceID  *uuid.UUID
	ChallengeID *uuid.UUID
	UseCase     *UseCase
	OpenOnly    bool
}

// Variable 분위수(quantile) 라벨
type Variable string

const (
	VariableQ05   Variable = "q05"
	VariableQ10   Variable = "q10"
	VariableQ20   Variable = "q20"
	VariableQ30   Variable = "q30"
	VariableQ40   Variable = "q40"
	VariableQ50   Variable = "q50"
	VariableQ60   Variable = "q60"
	VariableQ70   Variable = "q70"
	VariableQ80   Variable = "q80"
	VariableQ90   Variable = "q90"
	VariableQ95   Variable = "q95"
	VariablePoint Variable = "point"
)

// Variables lists the eleven quantiles followed by the point forecast
var Variables = []Variable{
	VariableQ05, VariableQ10, VariableQ20, VariableQ30, VariableQ40, VariableQ50,
	VariableQ60, VariableQ70, VariableQ80, VariableQ90, VariableQ95, VariablePoint,
}

// Valid reports whether v is a supported forecast variable
func (v Variable) Valid() bool {
	for _, known := range Variables {
		if v == known {
			return true
		}
	}
	return false
}

// ForecastPoint is one leadtime value
type ForecastPoint struct {
	Datetime time.Time `json:"datetime"`
	Value    float64   `json:"value"`
}

// Submission is one forecaster's per-quantile forecast for a challenge
type Submission struct {
	ID           uuid.UUID `json:"id"`
	ChallengeID  uuid.UUID `json:"market_session_challenge"`
	UserID       uuid.UUID `json:"user"`
	Variable     Variable  `json:"variable"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SubmissionFilter narrows list_submissions. OwnerID and UserID are set by
// the ledger from the caller's capabilities, never taken from input as-is.
type SubmissionFilter struct {
	ChallengeID *uuid.UUID
	UserID      *uuid.UUID
	OwnerID     *uuid.UUID
}

// SubmissionReceipt is returned by create_or_update_submission
type SubmissionReceipt struct {
	ChallengeID  uuid.UUID `json:"market_session_challenge"`
	SubmissionID uuid.UUID `json:"submission_id"`
	Updated      bool      `json:"updated"`
}

// Ensemble is the market maker's combined forecast per model and quantile
type Ensemble struct {
	ID           uuid.UUID       `json:"id"`
	ChallengeID  uuid.UUID       `json:"market_session_challenge"`
	Model        string          `json:"ensemble_model"`
	Variable     Variable        `json:"variable"`
	Weights      json.RawMessage `json:"weights,omitempty"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// EnsembleWithPoints bundles an ensemble and its forecast values
type EnsembleWithPoints struct {
	Ensemble
	Points []ForecastPoint `json:"forecasts"`
}

// EnsembleWeight is one forecaster's contribution to an ensemble
type EnsembleWeight struct {
	EnsembleID uuid.UUID `json:"ensemble"`
	UserID     uuid.UUID `json:"user"`
	Value      float64   `json:"value"`
}

// WeightRow is an ensemble weight joined with its ensemble's labels
type WeightRow struct {
	EnsembleWeight
	Model    string   `json:"ensemble_model"`
	Variable Variable `json:"variable"`
}

// Metric 점수 지표
type Metric string

const (
	MetricPinball Metric = "pinball"
	MetricMAE     Metric = "mae"
	MetricRMSE    Metric = "rmse"
)

// Valid reports whether m is a published metric
func (m Metric) Valid() bool {
	return m == MetricPinball || m == MetricMAE || m == MetricRMSE
}

// SubmissionScore is an immutable accuracy metric of a submission
type SubmissionScore struct {
	SubmissionID uuid.UUID `json:"submission"`
	Metric       Metric    `json:"metric"`
	Value        float64   `json:"value"`
}

// ScoreRow is a published score joined with its submission's labels
type ScoreRow struct {
	SubmissionID uuid.UUID `json:"submission"`
	UserID       uuid.UUID `json:"user"`
	Variable     Variable  `json:"variable"`
	Metric       Metric    `json:"metric"`
	Value        float64   `json:"value"`
}

// Resource is an entry of the external resource directory
type Resource struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user"`
	Name     string    `json:"name"`
	Timezone string    `json:"timezone"`
}

// Measurement is one raw measured value of a resource
type Measurement struct {
	Datetime time.Time `json:"datetime"`
	Value    float64   `json:"value"`
}

// Solution is a challenge together with the measured truth of its horizon
type Solution struct {
	Challenge    Challenge     `json:"challenge"`
	Measurements []Measurement `json:"measurements"`
}
