package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adventdrop/internal/commit"
	"adventdrop/internal/config"
	"adventdrop/internal/domain"
	"adventdrop/internal/evaluate"
	"adventdrop/internal/events"
	"adventdrop/internal/repo"
	"adventdrop/internal/reveal"
)

var (
	// ErrAlreadyCommitted: a season's commitment exists and is immutable.
	ErrAlreadyCommitted = errors.New("season already committed")
	// ErrAlreadyExecuted: a day's distribution already ran; results are
	// never recomputed in place.
	ErrAlreadyExecuted = errors.New("day already executed")
)

// Engine orchestrates the commit-reveal lifecycle over storage. The
// commitment builder, evaluator and reveal machine stay pure; the engine owns
// transactions, salts and the audit trail.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	// Salt generates a round's commitment salt. Replaceable in tests.
	Salt func(day int) ([]byte, error)
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Salt:   randomSalt,
	}
}

func randomSalt(int) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CommitSeason validates the full spec list, builds the Merkle commitment and
// persists root, gifts and artifacts in one transaction. Nothing is written
// if any spec fails validation; once a commitment exists it can never be
// replaced.
func (e Engine) CommitSeason(ctx context.Context, specs []domain.GiftSpec, actorID string) (domain.Commitment, error) {
	if e.Config == nil {
		return domain.Commitment{}, errors.New("config not loaded")
	}
	season := e.Config.Season.Tag
	if len(specs) != e.Config.Season.Days {
		return domain.Commitment{}, fmt.Errorf("season %s needs %d gift specs, got %d", season, e.Config.Season.Days, len(specs))
	}
	if _, err := e.Repo.GetCommitment(ctx, season); err == nil {
		return domain.Commitment{}, ErrAlreadyCommitted
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Commitment{}, err
	}
	normalized := make([]domain.GiftSpec, len(specs))
	for i, s := range specs {
		s.Type = domain.NormalizeType(s.Type)
		normalized[i] = s
	}
	salts := make(map[int][]byte, len(normalized))
	saltFn := e.Salt
	if saltFn == nil {
		saltFn = randomSalt
	}
	for _, s := range normalized {
		salt, err := saltFn(s.Day)
		if err != nil {
			return domain.Commitment{}, err
		}
		salts[s.Day] = salt
	}
	built, err := commit.Build(normalized, func(day int) []byte { return salts[day] })
	if err != nil {
		return domain.Commitment{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Commitment{Season: season, Root: built.Root, CommittedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCommitmentTx(ctx, tx, c); err != nil {
		return domain.Commitment{}, fmt.Errorf("insert commitment: %w", err)
	}
	byDay := make(map[int]domain.Artifact, len(built.Artifacts))
	for _, a := range built.Artifacts {
		byDay[a.Day] = a
	}
	for _, s := range normalized {
		if err := e.Repo.InsertGiftTx(ctx, tx, s, byDay[s.Day], now); err != nil {
			return domain.Commitment{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "season.committed", "commitment", season, actorID, events.EventPayload{
		"root": built.Root,
		"days": len(normalized),
	}); err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}
	return c, nil
}

// ExecuteDay evaluates a committed day's rule over the supplied chain data
// and persists the result. At most one execution per day: a second run with
// any inputs returns ErrAlreadyExecuted.
func (e Engine) ExecuteDay(ctx context.Context, day int, in evaluate.Inputs, actorID string) (domain.Execution, error) {
	if e.Config == nil {
		return domain.Execution{}, errors.New("config not loaded")
	}
	if in.Blockhash == "" {
		return domain.Execution{}, errors.New("blockhash is required")
	}
	gift, err := e.Repo.GetGift(ctx, day)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Execution{}, fmt.Errorf("day %d not committed", day)
		}
		return domain.Execution{}, err
	}
	art, err := e.Repo.GetArtifact(ctx, day)
	if err != nil {
		return domain.Execution{}, err
	}
	salt, err := hex.DecodeString(art.Salt)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("day %d salt: %w", day, err)
	}
	if _, err := e.Repo.GetExecution(ctx, day); err == nil {
		return domain.Execution{}, ErrAlreadyExecuted
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Execution{}, err
	}
	in.Salt = salt
	result, err := evaluate.Evaluate(gift, in)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("evaluate day %d: %w", day, err)
	}
	exec := domain.Execution{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d|%s", e.Config.Season.Tag, day, in.Blockhash))).String(),
		Day:        day,
		Blockhash:  in.Blockhash,
		PoolAmount: in.PoolAmount,
		Result:     result,
		ExecutedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Execution{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertExecutionTx(ctx, tx, exec); err != nil {
		return domain.Execution{}, err
	}
	if err := e.Events.Append(ctx, tx, "day.executed", "execution", exec.ID, actorID, events.EventPayload{
		"day":               day,
		"blockhash":         in.Blockhash,
		"winners":           len(result.Winners),
		"total_distributed": result.TotalDistributed.String(),
		"remainder":         result.Remainder.String(),
	}); err != nil {
		return domain.Execution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Execution{}, err
	}
	return exec, nil
}

// DiscloseDay runs the reveal state machine for a day at the given time.
// Read-only; the returned disclosure already excludes whatever the phase
// withholds.
func (e Engine) DiscloseDay(ctx context.Context, day int, now time.Time, override bool) (domain.Disclosure, error) {
	if e.Config == nil {
		return domain.Disclosure{}, errors.New("config not loaded")
	}
	gift, err := e.Repo.GetGift(ctx, day)
	if err != nil {
		return domain.Disclosure{}, err
	}
	art, err := e.Repo.GetArtifact(ctx, day)
	if err != nil {
		return domain.Disclosure{}, err
	}
	c, err := e.Repo.GetCommitment(ctx, e.Config.Season.Tag)
	if err != nil {
		return domain.Disclosure{}, err
	}
	phase := reveal.PhaseFor(day, e.Config.StartDate(), now, override || e.Config.Reveal.Override)
	return reveal.Disclose(gift, art, c.Root, phase)
}

// VerifyDisclosure checks a disclosure against the stored commitment root.
func (e Engine) VerifyDisclosure(ctx context.Context, d domain.Disclosure) (domain.Verification, error) {
	if e.Config == nil {
		return domain.Verification{}, errors.New("config not loaded")
	}
	c, err := e.Repo.GetCommitment(ctx, e.Config.Season.Tag)
	if err != nil {
		return domain.Verification{}, err
	}
	v := reveal.Verifier{Root: c.Root, Leaves: e.Config.Season.Days}
	return v.Verify(d)
}
