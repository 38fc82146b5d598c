package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

var annotationTables = map[models.Kind]string{
	models.KindQuestion:   "questions",
	models.KindImportant:  "important",
	models.KindVocabulary: "vocabulary",
}

func tableFor(kind models.Kind) (string, error) {
	table, ok := annotationTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown annotation kind %q: %w", kind, models.ErrValidation)
	}
	return table, nil
}

func scanQuestion(row scanner) (models.Question, error) {
	var (
		q      models.Question
		answer sql.NullString
	)
	err := row.Scan(&q.ID, &q.NodeID, &q.Question, &answer, &q.IsSolved, &q.CreatedAt, &q.UpdatedAt)
	q.Answer = nullString(answer)
	return q, err
}

func scanImportant(row scanner) (models.Important, error) {
	var i models.Important
	err := row.Scan(&i.ID, &i.NodeID, &i.Text, &i.CreatedAt)
	return i, err
}

func scanVocabulary(row scanner) (models.Vocabulary, error) {
	var (
		v          models.Vocabulary
		definition sql.NullString
	)
	err := row.Scan(&v.ID, &v.NodeID, &v.Text, &definition, &v.CreatedAt)
	v.Definition = nullString(definition)
	return v, err
}

func (s *PostgresStorage) ListAnnotations(ctx context.Context, ownerID string, kind models.Kind, nodeID string) ([]models.Annotation, error) {
	var query string
	switch kind {
	case models.KindQuestion:
		query = `
			SELECT q.id, q.node_id, q.question, q.answer, q.is_solved, q.created_at, q.updated_at
			FROM questions q JOIN nodes n ON n.id = q.node_id
			WHERE q.node_id = $1 AND n.owner_id = $2
			ORDER BY q.created_at DESC`
	case models.KindImportant:
		query = `
			SELECT i.id, i.node_id, i.text, i.created_at
			FROM important i JOIN nodes n ON n.id = i.node_id
			WHERE i.node_id = $1 AND n.owner_id = $2
			ORDER BY i.created_at DESC`
	case models.KindVocabulary:
		query = `
			SELECT v.id, v.node_id, v.text, v.definition, v.created_at
			FROM vocabulary v JOIN nodes n ON n.id = v.node_id
			WHERE v.node_id = $1 AND n.owner_id = $2
			ORDER BY v.created_at DESC`
	default:
		_, err := tableFor(kind)
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, nodeID, ownerID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("error querying %s", kind), err)
	}
	defer rows.Close()

	out := make([]models.Annotation, 0)
	for rows.Next() {
		var (
			a    models.Annotation
			scan error
		)
		switch kind {
		case models.KindQuestion:
			a, scan = scanQuestion(rows)
		case models.KindImportant:
			a, scan = scanImportant(rows)
		case models.KindVocabulary:
			a, scan = scanVocabulary(rows)
		}
		if scan != nil {
			return nil, storeError(fmt.Sprintf("error scanning %s", kind), scan)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(fmt.Sprintf("error iterating %s", kind), err)
	}
	return out, nil
}

// CreateAnnotation inserts only when the note belongs to the owner and the
// id is free. An empty insert is resolved by insertError.
func (s *PostgresStorage) CreateAnnotation(ctx context.Context, ownerID string, a models.Annotation) (models.Annotation, error) {
	if a == nil {
		return nil, fmt.Errorf("missing annotation: %w", models.ErrValidation)
	}
	var (
		row *sql.Row
		op  = fmt.Sprintf("error creating %s %q", a.Kind(), a.AnnotationID())
	)
	switch v := a.(type) {
	case models.Question:
		row = s.db.QueryRowContext(ctx, `
			INSERT INTO questions (id, node_id, question, answer, is_solved, created_at, updated_at)
			SELECT $1::text, $2::text, $3::text, $4::text, $5::boolean, clock_timestamp(), clock_timestamp()
			WHERE EXISTS (SELECT 1 FROM nodes WHERE id = $2::text AND owner_id = $6::text)
			ON CONFLICT (id) DO NOTHING
			RETURNING id, node_id, question, answer, is_solved, created_at, updated_at`,
			v.ID, v.NodeID, v.Question, v.Answer, models.IsAnswered(v.Answer), ownerID)
		q, err := scanQuestion(row)
		if err != nil {
			return nil, s.insertError(ctx, ownerID, a, op, err)
		}
		return q, nil
	case models.Important:
		row = s.db.QueryRowContext(ctx, `
			INSERT INTO important (id, node_id, text, created_at)
			SELECT $1::text, $2::text, $3::text, clock_timestamp()
			WHERE EXISTS (SELECT 1 FROM nodes WHERE id = $2::text AND owner_id = $4::text)
			ON CONFLICT (id) DO NOTHING
			RETURNING id, node_id, text, created_at`,
			v.ID, v.NodeID, v.Text, ownerID)
		i, err := scanImportant(row)
		if err != nil {
			return nil, s.insertError(ctx, ownerID, a, op, err)
		}
		return i, nil
	case models.Vocabulary:
		row = s.db.QueryRowContext(ctx, `
			INSERT INTO vocabulary (id, node_id, text, definition, created_at)
			SELECT $1::text, $2::text, $3::text, $4::text, clock_timestamp()
			WHERE EXISTS (SELECT 1 FROM nodes WHERE id = $2::text AND owner_id = $5::text)
			ON CONFLICT (id) DO NOTHING
			RETURNING id, node_id, text, definition, created_at`,
			v.ID, v.NodeID, v.Text, v.Definition, ownerID)
		voc, err := scanVocabulary(row)
		if err != nil {
			return nil, s.insertError(ctx, ownerID, a, op, err)
		}
		return voc, nil
	}
	return nil, fmt.Errorf("unknown annotation kind %q: %w", a.Kind(), models.ErrValidation)
}

// insertError tells an owned duplicate id apart from everything else, so an
// id taken by another owner answers like a missing note.
func (s *PostgresStorage) insertError(ctx context.Context, ownerID string, a models.Annotation, op string, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return storeError(op, err)
	}
	table, err := tableFor(a.Kind())
	if err != nil {
		return err
	}
	var owned bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM `+table+` t JOIN nodes n ON n.id = t.node_id
			WHERE t.id = $1 AND n.owner_id = $2
		)`, a.AnnotationID(), ownerID).Scan(&owned)
	if err != nil {
		return storeError(op, err)
	}
	if owned {
		return fmt.Errorf("%s: already exists: %w", op, models.ErrValidation)
	}
	return fmt.Errorf("%s: note %q: %w", op, a.NoteID(), models.ErrNotFound)
}

func (s *PostgresStorage) UpdateQuestion(ctx context.Context, ownerID, id string, upd models.QuestionUpdate) (*models.Question, error) {
	query := `
		UPDATE questions q
		SET question = COALESCE($3::text, q.question),
		    answer = CASE WHEN $4::boolean THEN $5::text ELSE q.answer END,
		    is_solved = CASE WHEN $4::boolean THEN $6::boolean ELSE q.is_solved END,
		    updated_at = clock_timestamp()
		FROM nodes n
		WHERE q.id = $1 AND n.id = q.node_id AND n.owner_id = $2
		RETURNING q.id, q.node_id, q.question, q.answer, q.is_solved, q.created_at, q.updated_at`

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query,
		id,
		ownerID,
		upd.Question,
		upd.Answer != nil,
		upd.Answer,
		models.IsAnswered(upd.Answer),
	))
	if err != nil {
		return nil, storeError(fmt.Sprintf("error updating question %q", id), err)
	}
	return &q, nil
}

func (s *PostgresStorage) SetVocabularyDefinition(ctx context.Context, ownerID, id, definition string) (*models.Vocabulary, error) {
	query := `
		UPDATE vocabulary v
		SET definition = $3
		FROM nodes n
		WHERE v.id = $1 AND n.id = v.node_id AND n.owner_id = $2
		RETURNING v.id, v.node_id, v.text, v.definition, v.created_at`

	v, err := scanVocabulary(s.db.QueryRowContext(ctx, query, id, ownerID, definition))
	if err != nil {
		return nil, storeError(fmt.Sprintf("error defining vocabulary %q", id), err)
	}
	return &v, nil
}

func (s *PostgresStorage) DeleteAnnotation(ctx context.Context, ownerID string, kind models.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		DELETE FROM %s a
		USING nodes n
		WHERE a.id = $1 AND n.id = a.node_id AND n.owner_id = $2`, table)

	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return storeError(fmt.Sprintf("error deleting %s %q", kind, id), err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("Delete matched no annotation",
			zap.String("kind", string(kind)),
			zap.String("annotation_id", id),
		)
	}
	return nil
}
