package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/geoguess/go/internal/dbconfig"
	"github.com/mcdev12/geoguess/go/internal/sqlutil"
)

// GameResult is one archived game as written to the export file.
type GameResult struct {
	ID         uuid.UUID      `json:"id"`
	EndedAt    time.Time      `json:"ended_at"`
	RoundCount int            `json:"round_count"`
	Aborted    bool           `json:"aborted"`
	Reason     string         `json:"reason,omitempty"`
	Winner     string         `json:"winner"`
	Standings  []PlayerResult `json:"standings"`
}

type PlayerResult struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Total    int    `json:"total"`
}

func main() {
	limit := flag.Int("limit", 100, "number of most recent games to export")
	out := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	ctx := context.Background()

	// 1) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Load games
	games, err := loadGames(ctx, pool, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load games: %v\n", err)
		os.Exit(1)
	}

	// 3) Attach standings
	errs := 0
	for i := range games {
		standings, err := loadStandings(ctx, pool, games[i].ID)
		if err != nil {
			errs++
			continue
		}
		games[i].Standings = standings
	}

	// 4) Write JSON
	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(games); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Results export: games=%d errors=%d\n", len(games), errs)
}

func loadGames(ctx context.Context, pool *pgxpool.Pool, limit int) ([]GameResult, error) {
	rows, err := pool.Query(ctx, `
            SELECT id, ended_at, round_count, aborted, reason, winner_id
            FROM games
            ORDER BY ended_at DESC
            LIMIT $1
        `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []GameResult
	for rows.Next() {
		var (
			g      GameResult
			reason sql.NullString
			winner sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.EndedAt, &g.RoundCount, &g.Aborted, &reason, &winner); err != nil {
			return nil, err
		}
		g.Reason = sqlutil.FromSqlString(reason, "")
		g.Winner = sqlutil.FromSqlString(winner, "-")
		games = append(games, g)
	}
	return games, rows.Err()
}

func loadStandings(ctx context.Context, pool *pgxpool.Pool, gameID uuid.UUID) ([]PlayerResult, error) {
	rows, err := pool.Query(ctx, `
            SELECT player_id, username, total
            FROM game_players
            WHERE game_id = $1
            ORDER BY total ASC, seat ASC
        `, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var standings []PlayerResult
	for rows.Next() {
		var p PlayerResult
		if err := rows.Scan(&p.PlayerID, &p.Username, &p.Total); err != nil {
			return nil, err
		}
		standings = append(standings, p)
	}
	return standings, rows.Err()
}
