package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// DecisionRow is one persisted merge decision. The decisions table is an
// append-only audit log; rows are never updated or deleted.
type DecisionRow struct {
	ID            int64              `json:"id"`
	MentionID     uuid.UUID          `json:"mention_id"`
	DocumentID    uuid.UUID          `json:"document_id"`
	Surface       string             `json:"surface"`
	NormalizedKey string             `json:"normalized_key"`
	EntityType    model.EntityType   `json:"entity_type"`
	TargetID      int64              `json:"target_id"`
	Score         float64            `json:"score"`
	Tier          model.DecisionTier `json:"tier"`
	DecidedAt     time.Time          `json:"decided_at"`
}

// DecisionsDBHandlerFunctions defines the interface for decision audit operations.
type DecisionsDBHandlerFunctions interface {
	InsertDecision(decision *model.Decision) (*DecisionRow, error)
	SelectDecisionsByTier(tier model.DecisionTier, limit int) ([]*DecisionRow, error)
	CountDecisions() (int64, error)
}

// DecisionsDBHandler handles the merge decision audit log.
type DecisionsDBHandler struct {
	db *helper.Database
}

// NewDecisionsDBHandler creates a new decisions database handler.
// It loads decision-related SQL functions and creates the table.
// If force is true, it reloads the SQL functions even if they already exist.
func NewDecisionsDBHandler(db *helper.Database, force bool) (*DecisionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	decisionsDbHandler := &DecisionsDBHandler{
		db: db,
	}

	err := loadSql.LoadDecisionsSql(decisionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load decisions sql", err)
	}

	err = decisionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DecisionsDBHandler")

	return decisionsDbHandler, nil
}

// CreateTable creates the 'decisions' table in the database.
// If the table already exists, it does not create it again.
func (h *DecisionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_decisions();`)
	if err != nil {
		log.Panicf("error initializing decisions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table decisions")

	return nil
}

// InsertDecision appends one decision to the audit log.
func (h *DecisionsDBHandler) InsertDecision(decision *model.Decision) (*DecisionRow, error) {
	if decision == nil || decision.Candidate == nil || decision.Candidate.Mention == nil {
		return nil, helper.NewError("decision validation", fmt.Errorf("decision is missing candidate or mention"))
	}

	candidate := decision.Candidate
	row := &DecisionRow{}

	err := h.db.Instance.QueryRow(
		`SELECT * FROM insert_decision($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		candidate.Mention.ID,
		candidate.Mention.DocumentID,
		candidate.Surface,
		candidate.Key,
		string(candidate.Type),
		decision.TargetID,
		decision.Score,
		string(decision.Tier),
		decision.Timestamp,
	).Scan(
		&row.ID,
		&row.MentionID,
		&row.DocumentID,
		&row.Surface,
		&row.NormalizedKey,
		&row.EntityType,
		&row.TargetID,
		&row.Score,
		&row.Tier,
		&row.DecidedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return row, nil
}

// SelectDecisionsByTier retrieves the most recent decisions of one tier.
func (h *DecisionsDBHandler) SelectDecisionsByTier(tier model.DecisionTier, limit int) ([]*DecisionRow, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_decisions_by_tier($1, $2)`,
		string(tier),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var decisions []*DecisionRow
	for rows.Next() {
		row := &DecisionRow{}
		err := rows.Scan(
			&row.ID,
			&row.MentionID,
			&row.DocumentID,
			&row.Surface,
			&row.NormalizedKey,
			&row.EntityType,
			&row.TargetID,
			&row.Score,
			&row.Tier,
			&row.DecidedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		decisions = append(decisions, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return decisions, nil
}

// CountDecisions returns the number of logged decisions.
func (h *DecisionsDBHandler) CountDecisions() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_decisions()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}
