package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"adventdrop/internal/domain"
)

// Repo is the storage collaborator: gift specs, commitment artifacts,
// executions and the event log. It owns no business rules.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// InsertGiftTx stores a gift spec and its commitment artifact together; the
// two never exist apart.
func (r Repo) InsertGiftTx(ctx context.Context, tx *sql.Tx, spec domain.GiftSpec, art domain.Artifact, createdAt string) error {
	params, err := json.Marshal(spec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gifts(day,type,hint,sub_hint,params_json,distribution_source,notes,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		spec.Day, spec.Type, spec.Hint, nullable(spec.SubHint), string(params), nullable(spec.DistributionSource), nullable(spec.Notes), createdAt); err != nil {
		return fmt.Errorf("insert gift %d: %w", spec.Day, err)
	}
	proof, err := json.Marshal(art.Proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifacts(day,salt,leaf,proof_json,leaf_index) VALUES (?,?,?,?,?)`,
		art.Day, art.Salt, art.Leaf, string(proof), art.LeafIndex); err != nil {
		return fmt.Errorf("insert artifact %d: %w", art.Day, err)
	}
	return nil
}

func (r Repo) GetGift(ctx context.Context, day int) (domain.GiftSpec, error) {
	var (
		s                      domain.GiftSpec
		subHint, source, notes sql.NullString
		paramsJSON             string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT day,type,hint,sub_hint,params_json,distribution_source,notes FROM gifts WHERE day=?`, day).
		Scan(&s.Day, &s.Type, &s.Hint, &subHint, &paramsJSON, &source, &notes)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &s.Params); err != nil {
		return s, fmt.Errorf("gift %d params: %w", day, err)
	}
	s.SubHint = subHint.String
	s.DistributionSource = source.String
	s.Notes = notes.String
	return s, nil
}

func (r Repo) ListGifts(ctx context.Context) ([]domain.GiftSpec, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT day,type,hint,sub_hint,params_json,distribution_source,notes FROM gifts ORDER BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.GiftSpec
	for rows.Next() {
		var (
			s                      domain.GiftSpec
			subHint, source, notes sql.NullString
			paramsJSON             string
		)
		if err := rows.Scan(&s.Day, &s.Type, &s.Hint, &subHint, &paramsJSON, &source, &notes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paramsJSON), &s.Params); err != nil {
			return nil, fmt.Errorf("gift %d params: %w", s.Day, err)
		}
		s.SubHint = subHint.String
		s.DistributionSource = source.String
		s.Notes = notes.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r Repo) GetArtifact(ctx context.Context, day int) (domain.Artifact, error) {
	var (
		a         domain.Artifact
		proofJSON string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT day,salt,leaf,proof_json,leaf_index FROM artifacts WHERE day=?`, day).
		Scan(&a.Day, &a.Salt, &a.Leaf, &proofJSON, &a.LeafIndex)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(proofJSON), &a.Proof); err != nil {
		return a, fmt.Errorf("artifact %d proof: %w", day, err)
	}
	return a, nil
}

func (r Repo) InsertCommitmentTx(ctx context.Context, tx *sql.Tx, c domain.Commitment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO commitments(season,root,committed_at) VALUES (?,?,?)`,
		c.Season, c.Root, c.CommittedAt)
	return err
}

func (r Repo) GetCommitment(ctx context.Context, season string) (domain.Commitment, error) {
	var c domain.Commitment
	err := r.DB.QueryRowContext(ctx, `SELECT season,root,committed_at FROM commitments WHERE season=?`, season).
		Scan(&c.Season, &c.Root, &c.CommittedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertExecutionTx(ctx context.Context, tx *sql.Tx, e domain.Execution) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO executions(id,day,blockhash,pool_amount,total_distributed,remainder,executed_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.Day, e.Blockhash, e.PoolAmount.String(), e.Result.TotalDistributed.String(), e.Result.Remainder.String(), e.ExecutedAt); err != nil {
		return fmt.Errorf("insert execution day %d: %w", e.Day, err)
	}
	for i, w := range e.Result.Winners {
		var balance any
		if w.Balance != nil {
			balance = w.Balance.String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO winners(execution_id,position,wallet,amount,balance,reason) VALUES (?,?,?,?,?,?)`,
			e.ID, i, w.Wallet, w.Amount.String(), balance, nullable(w.Reason)); err != nil {
			return fmt.Errorf("insert winner %d: %w", i, err)
		}
	}
	for _, a := range e.Result.TokenAirdrops {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO token_airdrops(execution_id,hour,wallet,amount) VALUES (?,?,?,?)`,
			e.ID, a.Hour, a.Wallet, a.Amount.String()); err != nil {
			return fmt.Errorf("insert token airdrop hour %d: %w", a.Hour, err)
		}
	}
	return nil
}

func (r Repo) GetExecution(ctx context.Context, day int) (domain.Execution, error) {
	var (
		e                      domain.Execution
		pool, total, remainder string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,day,blockhash,pool_amount,total_distributed,remainder,executed_at FROM executions WHERE day=?`, day).
		Scan(&e.ID, &e.Day, &e.Blockhash, &pool, &total, &remainder, &e.ExecutedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.PoolAmount, err = domain.AmountFromString(pool); err != nil {
		return e, err
	}
	if e.Result.TotalDistributed, err = domain.AmountFromString(total); err != nil {
		return e, err
	}
	if e.Result.Remainder, err = domain.AmountFromString(remainder); err != nil {
		return e, err
	}
	if e.Result.Winners, err = r.listWinners(ctx, e.ID); err != nil {
		return e, err
	}
	if e.Result.TokenAirdrops, err = r.listTokenAirdrops(ctx, e.ID); err != nil {
		return e, err
	}
	return e, nil
}

func (r Repo) listWinners(ctx context.Context, executionID string) ([]domain.Winner, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT wallet,amount,balance,reason FROM winners WHERE execution_id=? ORDER BY position`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	winners := []domain.Winner{}
	for rows.Next() {
		var (
			w               domain.Winner
			amount          string
			balance, reason sql.NullString
		)
		if err := rows.Scan(&w.Wallet, &amount, &balance, &reason); err != nil {
			return nil, err
		}
		if w.Amount, err = domain.AmountFromString(amount); err != nil {
			return nil, err
		}
		if balance.Valid {
			b, err := domain.AmountFromString(balance.String)
			if err != nil {
				return nil, err
			}
			w.Balance = &b
		}
		w.Reason = reason.String
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

func (r Repo) listTokenAirdrops(ctx context.Context, executionID string) ([]domain.TokenAirdrop, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT hour,wallet,amount FROM token_airdrops WHERE execution_id=? ORDER BY hour`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var airdrops []domain.TokenAirdrop
	for rows.Next() {
		var (
			a      domain.TokenAirdrop
			amount string
		)
		if err := rows.Scan(&a.Hour, &a.Wallet, &amount); err != nil {
			return nil, err
		}
		if a.Amount, err = domain.AmountFromString(amount); err != nil {
			return nil, err
		}
		airdrops = append(airdrops, a)
	}
	return airdrops, rows.Err()
}

// LatestEvents returns up to n most recent events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if evtType != "" {
		q += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		q += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		q += ` AND entity_id=?`
		args = append(args, entityID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
