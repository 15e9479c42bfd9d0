package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// NodesDBHandlerFunctions defines the interface for node database operations.
type NodesDBHandlerFunctions interface {
	UpsertNode(entity *model.Entity) error
	SelectNode(id int64) (*model.Entity, error)
	SelectNodesBySimilarity(embedding []float32, limit int, threshold float64) ([]*model.Entity, []float64, error)
	CountNodes() (int64, error)
}

// NodesDBHandler handles canonical entity node database operations
type NodesDBHandler struct {
	db *helper.Database
}

// NewNodesDBHandler creates a new nodes database handler.
// It loads node-related SQL functions and creates the table with the given
// embedding dimension. If force is true, it reloads the SQL functions even
// if they already exist.
func NewNodesDBHandler(db *helper.Database, embeddingDim int, force bool) (*NodesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	nodesDbHandler := &NodesDBHandler{
		db: db,
	}

	err := loadSql.LoadNodesSql(nodesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load nodes sql", err)
	}

	err = nodesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized NodesDBHandler")

	return nodesDbHandler, nil
}

// CreateTable creates the 'nodes' table in the database.
// If the table already exists, it does not create it again.
func (h *NodesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_nodes($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing nodes table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table nodes")

	return nil
}

// UpsertNode inserts a node or updates it in place when the id exists.
func (h *NodesDBHandler) UpsertNode(entity *model.Entity) error {
	aliases, err := json.Marshal(entity.Aliases)
	if err != nil {
		return helper.NewError("marshal aliases", err)
	}
	provenance, err := json.Marshal(entity.Provenance)
	if err != nil {
		return helper.NewError("marshal provenance", err)
	}

	var embedding interface{}
	if len(entity.Embedding) > 0 {
		embedding = pgvector.NewVector(entity.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_node($1, $2, $3, $4, $5, $6, $7)`,
		entity.ID,
		string(entity.Type),
		entity.Label,
		aliases,
		provenance,
		embedding,
		entity.Metadata,
	)

	return scanNode(row, entity)
}

// SelectNode retrieves a node by canonical entity id
func (h *NodesDBHandler) SelectNode(id int64) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_node($1)`,
		id,
	)

	err := scanNode(row, entity)
	if err != nil {
		return nil, err
	}

	return entity, nil
}

// SelectNodesBySimilarity performs vector similarity search over node
// embeddings. Returns the entities together with their similarity scores.
func (h *NodesDBHandler) SelectNodesBySimilarity(embedding []float32, limit int, threshold float64) ([]*model.Entity, []float64, error) {
	embeddingVector := pgvector.NewVector(embedding)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_nodes_by_similarity($1, $2, $3)`,
		embeddingVector,
		limit,
		threshold,
	)
	if err != nil {
		return nil, nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	var similarities []float64
	for rows.Next() {
		entity := &model.Entity{}
		var entityType string
		var aliases, provenance []byte
		var embeddingRaw sql.NullString
		var updatedAt time.Time
		var similarity float64

		err := rows.Scan(
			&entity.ID,
			&entityType,
			&entity.Label,
			&aliases,
			&provenance,
			&embeddingRaw,
			&entity.Metadata,
			&entity.CreatedAt,
			&updatedAt,
			&similarity,
		)
		if err != nil {
			return nil, nil, helper.NewError("scan", err)
		}

		entity.Type = model.EntityType(entityType)
		if entity.Embedding, err = parseVector(embeddingRaw); err != nil {
			return nil, nil, helper.NewError("parse embedding", err)
		}
		if err := json.Unmarshal(aliases, &entity.Aliases); err != nil {
			return nil, nil, helper.NewError("unmarshal aliases", err)
		}
		if err := json.Unmarshal(provenance, &entity.Provenance); err != nil {
			return nil, nil, helper.NewError("unmarshal provenance", err)
		}

		entities = append(entities, entity)
		similarities = append(similarities, similarity)
	}

	err = rows.Err()
	if err != nil {
		return nil, nil, helper.NewError("rows error", err)
	}

	return entities, similarities, nil
}

// CountNodes returns the number of stored nodes
func (h *NodesDBHandler) CountNodes() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_nodes()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// scanNode scans one nodes row into an entity.
func scanNode(row *sql.Row, entity *model.Entity) error {
	var entityType string
	var aliases, provenance []byte
	var embedding sql.NullString
	var updatedAt time.Time

	err := row.Scan(
		&entity.ID,
		&entityType,
		&entity.Label,
		&aliases,
		&provenance,
		&embedding,
		&entity.Metadata,
		&entity.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	entity.Type = model.EntityType(entityType)
	if entity.Embedding, err = parseVector(embedding); err != nil {
		return helper.NewError("parse embedding", err)
	}
	if err := json.Unmarshal(aliases, &entity.Aliases); err != nil {
		return helper.NewError("unmarshal aliases", err)
	}
	if err := json.Unmarshal(provenance, &entity.Provenance); err != nil {
		return helper.NewError("unmarshal provenance", err)
	}

	return nil
}

// parseVector parses a nullable vector column value.
func parseVector(value sql.NullString) ([]float32, error) {
	if !value.Valid {
		return nil, nil
	}
	var vec pgvector.Vector
	if err := vec.Scan([]byte(value.String)); err != nil {
		return nil, err
	}
	return vec.Slice(), nil
}
