package record

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

const insertGame = `-- name: InsertGame :exec
INSERT INTO games (
  id, created_at, ended_at, round_count, aborted, reason, winner_id, targets
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`

type InsertGameParams struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	EndedAt    time.Time
	RoundCount int32
	Aborted    bool
	Reason     sql.NullString
	WinnerID   sql.NullString
	Targets    pqtype.NullRawMessage
}

func (q *Queries) InsertGame(ctx context.Context, arg InsertGameParams) error {
	_, err := q.db.ExecContext(ctx, insertGame,
		arg.ID,
		arg.CreatedAt,
		arg.EndedAt,
		arg.RoundCount,
		arg.Aborted,
		arg.Reason,
		arg.WinnerID,
		arg.Targets,
	)
	return err
}

const insertGamePlayer = `-- name: InsertGamePlayer :exec
INSERT INTO game_players (
  game_id, player_id, username, seat, total, guesses
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (game_id, player_id) DO NOTHING
`

type InsertGamePlayerParams struct {
	GameID   uuid.UUID
	PlayerID string
	Username string
	Seat     int32
	Total    int32
	Guesses  pqtype.NullRawMessage
}

func (q *Queries) InsertGamePlayer(ctx context.Context, arg InsertGamePlayerParams) error {
	_, err := q.db.ExecContext(ctx, insertGamePlayer,
		arg.GameID,
		arg.PlayerID,
		arg.Username,
		arg.Seat,
		arg.Total,
		arg.Guesses,
	)
	return err
}
