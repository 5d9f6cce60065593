package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/mirai-edu/tutorflow/store"
)

func (d *DB) CreateSessionRecord(ctx context.Context, create *store.SessionRecord) (*store.SessionRecord, error) {
	fields := []string{"uid", "student_id", "strong_points", "weak_points", "general_comments", "topic", "created_ts", "updated_ts"}
	args := []any{create.UID, create.StudentID, create.StrongPoints, create.WeakPoints, create.GeneralComments, create.Topic, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO session_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create session_record: %w", err)
	}

	return create, nil
}

func (d *DB) ListSessionRecords(ctx context.Context, find *store.FindSessionRecord) ([]*store.SessionRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.StudentID != nil {
		where, args = append(where, "student_id = "+placeholder(len(args)+1)), append(args, *find.StudentID)
	}

	query := `SELECT id, uid, student_id, strong_points, weak_points, general_comments, topic, created_ts, updated_ts
		FROM session_record WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list session_records: %w", err)
	}
	defer rows.Close()

	var records []*store.SessionRecord
	for rows.Next() {
		var record store.SessionRecord
		if err := rows.Scan(
			&record.ID,
			&record.UID,
			&record.StudentID,
			&record.StrongPoints,
			&record.WeakPoints,
			&record.GeneralComments,
			&record.Topic,
			&record.CreatedTs,
			&record.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session_record: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session_records: %w", err)
	}

	return records, nil
}
