package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revittco/fetchgate/internal/store"
)

const entryColumns = `key, value, created_at, ttl_ms, tags, priority, access_count, last_accessed_at`

func (d *DB) Put(ctx context.Context, r *store.Record) error {
	tags, err := json.Marshal(tagsOrEmpty(r.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO cache_entries
			(key, value, created_at, ttl_ms, tags, priority, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			ttl_ms = excluded.ttl_ms,
			tags = excluded.tags,
			priority = excluded.priority,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at`,
		r.Key, r.Value, toMillis(r.CreatedAt), r.TTL.Milliseconds(),
		string(tags), r.Priority, r.AccessCount, toMillis(r.LastAccessedAt),
	)
	return err
}

func (d *DB) Get(ctx context.Context, key string) (*store.Record, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM cache_entries WHERE key = ?`, key)

	var r store.Record
	var createdAt, ttlMS, lastAccessedAt int64
	var tags string
	err := row.Scan(&r.Key, &r.Value, &createdAt, &ttlMS, &tags,
		&r.Priority, &r.AccessCount, &lastAccessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.CreatedAt = fromMillis(createdAt)
	r.TTL = time.Duration(ttlMS) * time.Millisecond
	r.LastAccessedAt = fromMillis(lastAccessedAt)
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for %s: %w", key, err)
	}
	return &r, nil
}

func (d *DB) Touch(ctx context.Context, key string, accessCount int64, lastAccessedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET access_count = ?, last_accessed_at = ?
		WHERE key = ?`,
		accessCount, toMillis(lastAccessedAt), key,
	)
	return err
}

func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// DeleteByTags removes every record whose stored tag array intersects tags.
// Tag membership is tested in SQL via json_each over the tags column.
func (d *DB) DeleteByTags(ctx context.Context, tags []string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	args := make([]any, len(tags))
	for i, t := range tags {
		args[i] = t
	}

	res, err := d.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE EXISTS (
			SELECT 1 FROM json_each(cache_entries.tags)
			WHERE json_each.value IN (`+placeholders+`)
		)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (d *DB) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE created_at + ttl_ms <= ?`,
		toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (d *DB) Clear(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
