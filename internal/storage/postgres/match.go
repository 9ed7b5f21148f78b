package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duel/internal/game/room"
)

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("limit must be positive")

// MatchRepository stores finished match results.
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a MatchRepository backed by db.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

// RecordResult inserts one finished match.
//
// Precondition: res.Winner must be "X", "O" or "draw".
// Postcondition: The result is durable or a non-nil error is returned.
func (r *MatchRepository) RecordResult(ctx context.Context, res room.Result) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO match_results (room_id, game_type, winner, winner_name, player_x, player_o, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.RoomID, res.GameType, res.Winner, res.WinnerName, res.PlayerX, res.PlayerO, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match result for room %s: %w", res.RoomID, err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
//
// Postcondition: Returns at most limit results ordered by finish time descending.
func (r *MatchRepository) Recent(ctx context.Context, limit int) ([]room.Result, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT room_id, game_type, winner, winner_name, player_x, player_o, finished_at
		FROM match_results
		ORDER BY finished_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches: %w", err)
	}
	defer rows.Close()

	var out []room.Result
	for rows.Next() {
		var res room.Result
		if err := rows.Scan(&res.RoomID, &res.GameType, &res.Winner, &res.WinnerName,
			&res.PlayerX, &res.PlayerO, &res.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning match result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match results: %w", err)
	}
	return out, nil
}

// CountByRoom returns how many results were recorded for roomID.
func (r *MatchRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM match_results WHERE room_id = $1`, roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting match results for room %s: %w", roomID, err)
	}
	return n, nil
}
