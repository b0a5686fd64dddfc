package puzzle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/park285/mate-puzzle-bot/internal/domain"
)

var ErrDuplicateAttempt = errors.New("puzzle attempt already recorded")

type Repository interface {
	InsertAttempt(ctx context.Context, attempt *domain.PuzzleAttempt) (int64, error)
	GetRecentAttempts(ctx context.Context, playerHash string, limit int) ([]*domain.PuzzleAttempt, error)
	GetAttemptBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.PuzzleAttempt, error)
	GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.PuzzleProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.PuzzleProfile) error
}

// Schema creates the tables the Postgres repository needs.
const Schema = `
CREATE TABLE IF NOT EXISTS puzzle_attempts (
	id            BIGSERIAL PRIMARY KEY,
	session_uuid  TEXT NOT NULL UNIQUE,
	player_hash   TEXT NOT NULL,
	room_hash     TEXT NOT NULL,
	puzzle_id     TEXT NOT NULL,
	mate_in       INT NOT NULL,
	result        TEXT NOT NULL,
	user_sans     JSONB NOT NULL DEFAULT '[]',
	opponent_sans JSONB NOT NULL DEFAULT '[]',
	hints_used    INT NOT NULL DEFAULT 0,
	rating_delta  INT NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT
);
CREATE INDEX IF NOT EXISTS puzzle_attempts_player_idx ON puzzle_attempts (player_hash, ended_at DESC);
CREATE TABLE IF NOT EXISTS puzzle_profiles (
	player_hash       TEXT NOT NULL,
	room_hash         TEXT NOT NULL,
	preferred_mate_in INT NOT NULL DEFAULT 0,
	rating            INT NOT NULL,
	attempts          INT NOT NULL DEFAULT 0,
	solved            INT NOT NULL DEFAULT 0,
	failed            INT NOT NULL DEFAULT 0,
	revealed          INT NOT NULL DEFAULT 0,
	streak            INT NOT NULL DEFAULT 0,
	best_streak       INT NOT NULL DEFAULT 0,
	last_puzzle_id    TEXT NOT NULL DEFAULT '',
	last_played_at    TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (player_hash, room_hash)
);`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply puzzle schema: %w", err)
	}
	return nil
}

type attemptRow struct {
	ID           int64         `db:"id"`
	SessionUUID  string        `db:"session_uuid"`
	PlayerHash   string        `db:"player_hash"`
	RoomHash     string        `db:"room_hash"`
	PuzzleID     string        `db:"puzzle_id"`
	MateIn       int           `db:"mate_in"`
	Result       string        `db:"result"`
	UserSANs     []byte        `db:"user_sans"`
	OpponentSANs []byte        `db:"opponent_sans"`
	HintsUsed    int           `db:"hints_used"`
	RatingDelta  int           `db:"rating_delta"`
	StartedAt    time.Time     `db:"started_at"`
	EndedAt      time.Time     `db:"ended_at"`
	DurationMS   sql.NullInt64 `db:"duration_ms"`
}

func newAttemptRow(a *domain.PuzzleAttempt) (*attemptRow, error) {
	users, err := json.Marshal(nonNil(a.UserSANs))
	if err != nil {
		return nil, fmt.Errorf("marshal user_sans: %w", err)
	}
	opps, err := json.Marshal(nonNil(a.OpponentSANs))
	if err != nil {
		return nil, fmt.Errorf("marshal opponent_sans: %w", err)
	}
	return &attemptRow{
		SessionUUID:  a.SessionUUID,
		PlayerHash:   a.PlayerHash,
		RoomHash:     a.RoomHash,
		PuzzleID:     a.PuzzleID,
		MateIn:       a.MateIn,
		Result:       a.Result,
		UserSANs:     users,
		OpponentSANs: opps,
		HintsUsed:    a.HintsUsed,
		RatingDelta:  a.RatingDelta,
		StartedAt:    a.StartedAt,
		EndedAt:      a.EndedAt,
		DurationMS:   sql.NullInt64{Int64: a.Duration.Milliseconds(), Valid: true},
	}, nil
}

func (r *attemptRow) toDomain() (*domain.PuzzleAttempt, error) {
	a := &domain.PuzzleAttempt{
		ID:          r.ID,
		SessionUUID: r.SessionUUID,
		PlayerHash:  r.PlayerHash,
		RoomHash:    r.RoomHash,
		PuzzleID:    r.PuzzleID,
		MateIn:      r.MateIn,
		Result:      r.Result,
		HintsUsed:   r.HintsUsed,
		RatingDelta: r.RatingDelta,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}
	if r.DurationMS.Valid {
		a.Duration = time.Duration(r.DurationMS.Int64) * time.Millisecond
	}
	if len(r.UserSANs) > 0 {
		if err := json.Unmarshal(r.UserSANs, &a.UserSANs); err != nil {
			return nil, fmt.Errorf("unmarshal user_sans: %w", err)
		}
	}
	if len(r.OpponentSANs) > 0 {
		if err := json.Unmarshal(r.OpponentSANs, &a.OpponentSANs); err != nil {
			return nil, fmt.Errorf("unmarshal opponent_sans: %w", err)
		}
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const attemptColumns = `
	id, session_uuid, player_hash, room_hash, puzzle_id, mate_in, result,
	user_sans, opponent_sans, hints_used, rating_delta, started_at, ended_at, duration_ms`

func (r *repository) InsertAttempt(ctx context.Context, attempt *domain.PuzzleAttempt) (int64, error) {
	if attempt == nil {
		return 0, fmt.Errorf("nil puzzle attempt payload")
	}
	row, err := newAttemptRow(attempt)
	if err != nil {
		return 0, err
	}

	const query = `
		INSERT INTO puzzle_attempts (
			session_uuid, player_hash, room_hash, puzzle_id, mate_in, result,
			user_sans, opponent_sans, hints_used, rating_delta, started_at, ended_at, duration_ms
		)
		VALUES (
			:session_uuid, :player_hash, :room_hash, :puzzle_id, :mate_in, :result,
			CAST(:user_sans AS jsonb), CAST(:opponent_sans AS jsonb), :hints_used, :rating_delta,
			:started_at, :ended_at, :duration_ms
		)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare puzzle attempt insert: %w", err)
	}
	defer stmt.Close()

	var id sql.NullInt64
	err = stmt.QueryRowxContext(ctx, row).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateAttempt
	}
	if err != nil {
		return 0, fmt.Errorf("insert puzzle attempt: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentAttempts(ctx context.Context, playerHash string, limit int) ([]*domain.PuzzleAttempt, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + attemptColumns + `
		FROM puzzle_attempts
		WHERE player_hash = $1
		ORDER BY ended_at DESC, id DESC
		LIMIT $2`

	var rows []attemptRow
	if err := r.db.SelectContext(ctx, &rows, query, playerHash, limit); err != nil {
		return nil, fmt.Errorf("select puzzle attempts: %w", err)
	}
	out := make([]*domain.PuzzleAttempt, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *repository) GetAttemptBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.PuzzleAttempt, error) {
	query := `SELECT` + attemptColumns + `
		FROM puzzle_attempts
		WHERE session_uuid = $1 AND player_hash = $2`

	var row attemptRow
	err := r.db.GetContext(ctx, &row, query, sessionUUID, playerHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select puzzle attempt: %w", err)
	}
	return row.toDomain()
}

type profileRow struct {
	PlayerHash      string       `db:"player_hash"`
	RoomHash        string       `db:"room_hash"`
	PreferredMateIn int          `db:"preferred_mate_in"`
	Rating          int          `db:"rating"`
	Attempts        int          `db:"attempts"`
	Solved          int          `db:"solved"`
	Failed          int          `db:"failed"`
	Revealed        int          `db:"revealed"`
	Streak          int          `db:"streak"`
	BestStreak      int          `db:"best_streak"`
	LastPuzzleID    string       `db:"last_puzzle_id"`
	LastPlayedAt    sql.NullTime `db:"last_played_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	CreatedAt       time.Time    `db:"created_at"`
}

func (r *repository) GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.PuzzleProfile, error) {
	const query = `
		SELECT
			player_hash, room_hash, preferred_mate_in, rating, attempts, solved, failed,
			revealed, streak, best_streak, last_puzzle_id, last_played_at, updated_at, created_at
		FROM puzzle_profiles
		WHERE player_hash = $1 AND room_hash = $2`

	var row profileRow
	err := r.db.GetContext(ctx, &row, query, playerHash, roomHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select puzzle profile: %w", err)
	}
	p := &domain.PuzzleProfile{
		PlayerHash:      row.PlayerHash,
		RoomHash:        row.RoomHash,
		PreferredMateIn: row.PreferredMateIn,
		Rating:          row.Rating,
		Attempts:        row.Attempts,
		Solved:          row.Solved,
		Failed:          row.Failed,
		Revealed:        row.Revealed,
		Streak:          row.Streak,
		BestStreak:      row.BestStreak,
		LastPuzzleID:    row.LastPuzzleID,
		UpdatedAt:       row.UpdatedAt,
		CreatedAt:       row.CreatedAt,
	}
	if row.LastPlayedAt.Valid {
		p.LastPlayedAt = row.LastPlayedAt.Time
	}
	return p, nil
}

func (r *repository) UpsertProfile(ctx context.Context, profile *domain.PuzzleProfile) error {
	if profile == nil {
		return fmt.Errorf("nil puzzle profile payload")
	}
	const query = `
		INSERT INTO puzzle_profiles (
			player_hash, room_hash, preferred_mate_in, rating, attempts, solved, failed,
			revealed, streak, best_streak, last_puzzle_id, last_played_at, updated_at, created_at
		)
		VALUES (
			:player_hash, :room_hash, :preferred_mate_in, :rating, :attempts, :solved, :failed,
			:revealed, :streak, :best_streak, :last_puzzle_id, :last_played_at, NOW(), NOW()
		)
		ON CONFLICT (player_hash, room_hash)
		DO UPDATE SET
			preferred_mate_in = EXCLUDED.preferred_mate_in,
			rating = EXCLUDED.rating,
			attempts = EXCLUDED.attempts,
			solved = EXCLUDED.solved,
			failed = EXCLUDED.failed,
			revealed = EXCLUDED.revealed,
			streak = EXCLUDED.streak,
			best_streak = EXCLUDED.best_streak,
			last_puzzle_id = EXCLUDED.last_puzzle_id,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	row := profileRow{
		PlayerHash:      profile.PlayerHash,
		RoomHash:        profile.RoomHash,
		PreferredMateIn: profile.PreferredMateIn,
		Rating:          profile.Rating,
		Attempts:        profile.Attempts,
		Solved:          profile.Solved,
		Failed:          profile.Failed,
		Revealed:        profile.Revealed,
		Streak:          profile.Streak,
		BestStreak:      profile.BestStreak,
		LastPuzzleID:    profile.LastPuzzleID,
		LastPlayedAt:    sql.NullTime{Time: profile.LastPlayedAt, Valid: !profile.LastPlayedAt.IsZero()},
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert puzzle profile: %w", err)
	}
	return nil
}
