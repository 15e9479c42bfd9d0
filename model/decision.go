package model

import (
	"time"
)

// DecisionTier classifies the confidence of a merge decision.
type DecisionTier string

const (
	// TierAutoMerge is a high-confidence merge, applied without review.
	TierAutoMerge DecisionTier = "auto_merge"
	// TierFlaggedMerge is a merge between the mid and high thresholds,
	// applied but flagged for audit.
	TierFlaggedMerge DecisionTier = "flagged_merge"
	// TierCreateNew means no existing entity scored above the mid threshold.
	TierCreateNew DecisionTier = "create_new"
	// TierTypeConflict means a string match was refused because the entity
	// types were incompatible; the candidate becomes a new entity.
	TierTypeConflict DecisionTier = "type_conflict"
)

// Decision is the outcome of resolving one candidate against the registry.
type Decision struct {
	Candidate *Candidate   `json:"candidate"`
	TargetID  int64        `json:"target_id"` // matched entity id, 0 for create-new
	Score     float64      `json:"score"`
	Tier      DecisionTier `json:"tier"`
	Timestamp time.Time    `json:"timestamp"`
}

// Merge reports whether the decision resolves the candidate into an
// existing entity rather than creating a new one.
func (d *Decision) Merge() bool {
	return d.Tier == TierAutoMerge || d.Tier == TierFlaggedMerge
}
