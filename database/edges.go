package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// EdgesDBHandlerFunctions defines the interface for edge database operations.
type EdgesDBHandlerFunctions interface {
	UpsertEdge(relation *model.Relation) error
	SelectEdgesForNode(nodeID int64) ([]*model.Relation, error)
	CountEdges() (int64, error)
}

// EdgesDBHandler handles relation edge database operations
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler.
// It loads edge-related SQL functions and creates the table.
// If force is true, it reloads the SQL functions even if they already exist.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table in the database.
// If the table already exists, it does not create it again.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing edges table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// UpsertEdge inserts an edge or updates it in place when the
// (subject, predicate, object) triple exists.
func (h *EdgesDBHandler) UpsertEdge(relation *model.Relation) error {
	mentionIDs, err := json.Marshal(relation.MentionIDs)
	if err != nil {
		return helper.NewError("marshal mention ids", err)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_edge($1, $2, $3, $4, $5, $6)`,
		relation.SubjectID,
		relation.Predicate,
		relation.ObjectID,
		relation.Weight,
		mentionIDs,
		relation.Metadata,
	)

	return scanEdge(row, relation)
}

// SelectEdgesForNode retrieves all edges connected to a node
func (h *EdgesDBHandler) SelectEdgesForNode(nodeID int64) ([]*model.Relation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_edges_for_node($1)`,
		nodeID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var relations []*model.Relation
	for rows.Next() {
		relation := &model.Relation{}
		var mentionIDs []byte

		err := rows.Scan(
			&relation.ID,
			&relation.SubjectID,
			&relation.Predicate,
			&relation.ObjectID,
			&relation.Weight,
			&mentionIDs,
			&relation.Metadata,
			&relation.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if err := json.Unmarshal(mentionIDs, &relation.MentionIDs); err != nil {
			return nil, helper.NewError("unmarshal mention ids", err)
		}

		relations = append(relations, relation)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relations, nil
}

// CountEdges returns the number of stored edges
func (h *EdgesDBHandler) CountEdges() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_edges()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// scanEdge scans one edges row into a relation.
func scanEdge(row *sql.Row, relation *model.Relation) error {
	var mentionIDs []byte

	err := row.Scan(
		&relation.ID,
		&relation.SubjectID,
		&relation.Predicate,
		&relation.ObjectID,
		&relation.Weight,
		&mentionIDs,
		&relation.Metadata,
		&relation.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	if err := json.Unmarshal(mentionIDs, &relation.MentionIDs); err != nil {
		return helper.NewError("unmarshal mention ids", err)
	}

	return nil
}
