// Package record archives finished games in Postgres.
package record

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/mcdev12/geoguess/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

// Recorder implements session.Recorder.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates the archive tables if they are missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create game archive schema: %w", err)
	}
	return nil
}

// RecordGame writes the game and its players in one transaction. Recording
// the same game twice is a no-op.
func (r *Recorder) RecordGame(ctx context.Context, summary session.Summary) error {
	game, players, err := buildRows(summary)
	if err != nil {
		return err
	}

	err = sqlutil.Run(ctx, r.db, func(tx *sql.Tx) *Queries { return New(tx) }, func(q *Queries) error {
		return insertRows(ctx, q, game, players)
	})
	if err != nil {
		return fmt.Errorf("failed to record game %s: %w", summary.SessionID, err)
	}

	log.Info().
		Str("session_id", summary.SessionID.String()).
		Bool("aborted", summary.Aborted).
		Str("winner", summary.Winner).
		Int("players", len(players)).
		Msg("game recorded")
	return nil
}

func insertRows(ctx context.Context, q *Queries, game InsertGameParams, players []InsertGamePlayerParams) error {
	if err := q.InsertGame(ctx, game); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, p := range players {
		if err := q.InsertGamePlayer(ctx, p); err != nil {
			return fmt.Errorf("insert player %s: %w", p.PlayerID, err)
		}
	}
	return nil
}

func buildRows(summary session.Summary) (InsertGameParams, []InsertGamePlayerParams, error) {
	targets, err := jsonColumn(summary.Targets)
	if err != nil {
		return InsertGameParams{}, nil, fmt.Errorf("marshal targets: %w", err)
	}

	game := InsertGameParams{
		ID:         summary.SessionID,
		CreatedAt:  summary.CreatedAt,
		EndedAt:    summary.EndedAt,
		RoundCount: int32(summary.RoundCount),
		Aborted:    summary.Aborted,
		Reason:     nullString(summary.Reason),
		WinnerID:   nullString(summary.Winner),
		Targets:    targets,
	}

	players := make([]InsertGamePlayerParams, 0, len(summary.Players))
	for seat, p := range summary.Players {
		guesses, err := jsonColumn(p.Guesses)
		if err != nil {
			return InsertGameParams{}, nil, fmt.Errorf("marshal guesses for %s: %w", p.PlayerID, err)
		}
		players = append(players, InsertGamePlayerParams{
			GameID:   summary.SessionID,
			PlayerID: p.PlayerID,
			Username: p.Username,
			Seat:     int32(seat),
			Total:    int32(p.Total),
			Guesses:  guesses,
		})
	}
	return game, players, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sqlutil.ToSqlString(&s)
}

// jsonColumn leaves empty slices NULL.
func jsonColumn[T any](v []T) (pqtype.NullRawMessage, error) {
	if len(v) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
