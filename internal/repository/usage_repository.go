package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digkill/HookRelay/internal/models"
)

// UsageRepository reads the call_logs table. Rows are written by the webhook
// processor, one per delivered channel of a call.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func (r *UsageRepository) CountCallsForDay(ctx context.Context, uid string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	const query = `
SELECT COUNT(DISTINCT call_id) FROM call_logs
WHERE uid = ? AND created_at >= ? AND created_at < ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, uid, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count daily calls: %w", err)
	}
	return count, nil
}

func (r *UsageRepository) ChannelBreakdownForDay(ctx context.Context, uid string, day time.Time) ([]models.ChannelUsage, error) {
	start, end := dayBounds(day)
	const query = `
SELECT channel, COUNT(*), COALESCE(SUM(points), 0) FROM call_logs
WHERE uid = ? AND created_at >= ? AND created_at < ?
GROUP BY channel
ORDER BY channel ASC`
	rows, err := r.db.QueryContext(ctx, query, uid, start, end)
	if err != nil {
		return nil, fmt.Errorf("channel breakdown: %w", err)
	}
	defer rows.Close()

	var out []models.ChannelUsage
	for rows.Next() {
		var u models.ChannelUsage
		if err := rows.Scan(&u.Channel, &u.Calls, &u.Points); err != nil {
			return nil, fmt.Errorf("scan channel usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecentCalls returns the newest call_logs rows of uid, newest first.
func (r *UsageRepository) RecentCalls(ctx context.Context, uid string, limit int) ([]models.CallRecord, error) {
	const query = `
SELECT id, call_id, channel, points, payload_summary, success, created_at FROM call_logs
WHERE uid = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	defer rows.Close()

	var out []models.CallRecord
	for rows.Next() {
		var c models.CallRecord
		if err := rows.Scan(&c.ID, &c.CallID, &c.Channel, &c.PointCost, &c.PayloadSummary, &c.Success, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
