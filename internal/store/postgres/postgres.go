// Package postgres implements store.Store on PostgreSQL through sqlx and the
// pgx stdlib driver. Multi-step writes run in one transaction; single-writer
// rules are conditional UPDATEs and unique constraints.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"contest-platform/internal/apperr"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info().Msg("Connected to PostgreSQL")
	return &Store{db: db, logger: logger.With().Str("component", "postgres").Logger()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, what, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, what, key)
	}
	return err
}

// contestRow flattens the embedded winner into its columns.
type contestRow struct {
	ID                string               `db:"id"`
	CreatorEmail      string               `db:"creator_email"`
	Name              string               `db:"name"`
	Description       string               `db:"description"`
	Type              string               `db:"type"`
	Image             string               `db:"image"`
	Instructions      string               `db:"instructions"`
	EntryFee          decimal.Decimal      `db:"entry_fee"`
	PrizeMoney        decimal.Decimal      `db:"prize_money"`
	Deadline          time.Time            `db:"deadline"`
	Status            models.ContestStatus `db:"status"`
	IsEnded           bool                 `db:"is_ended"`
	Participants      models.Participants  `db:"participants"`
	ParticipantsCount int                  `db:"participants_count"`
	WinnerName        string               `db:"winner_name"`
	WinnerEmail       string               `db:"winner_email"`
	WinnerPhotoURL    string               `db:"winner_photo_url"`
	CreatedAt         time.Time            `db:"created_at"`
}

func (r contestRow) model() models.Contest {
	return models.Contest{
		ID:                r.ID,
		CreatorEmail:      r.CreatorEmail,
		Name:              r.Name,
		Description:       r.Description,
		Type:              r.Type,
		Image:             r.Image,
		Instructions:      r.Instructions,
		EntryFee:          r.EntryFee,
		PrizeMoney:        r.PrizeMoney,
		Deadline:          r.Deadline,
		Status:            r.Status,
		IsEnded:           r.IsEnded,
		Participants:      r.Participants,
		ParticipantsCount: r.ParticipantsCount,
		Winner:            models.WinnerInfo{Name: r.WinnerName, Email: r.WinnerEmail, PhotoURL: r.WinnerPhotoURL},
		CreatedAt:         r.CreatedAt,
	}
}

func contestModels(rows []contestRow) []models.Contest {
	out := make([]models.Contest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

const contestColumns = `id::text AS id, creator_email, name, description, type, image, instructions,
	entry_fee, prize_money, deadline, status, is_ended, participants, participants_count,
	winner_name, winner_email, winner_photo_url, created_at`

func (s *Store) InsertContest(ctx context.Context, c *models.Contest) error {
	query := `
		INSERT INTO contests
		  (id, creator_email, name, description, type, image, instructions,
		   entry_fee, prize_money, deadline, status, is_ended, participants, participants_count,
		   winner_name, winner_email, winner_photo_url, created_at)
		VALUES
		  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16, $17, $18)
	`
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	if c.Participants == nil {
		participants = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.CreatorEmail, c.Name, c.Description, c.Type, c.Image, c.Instructions,
		c.EntryFee, c.PrizeMoney, c.Deadline, c.Status, c.IsEnded, string(participants), c.ParticipantsCount,
		c.Winner.Name, c.Winner.Email, c.Winner.PhotoURL, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: contest %s exists", apperr.ErrConflict, c.ID)
	}
	return err
}

func (s *Store) GetContest(ctx context.Context, id string) (*models.Contest, error) {
	var row contestRow
	err := s.db.GetContext(ctx, &row, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "contest", id)
	}
	c := row.model()
	return &c, nil
}

// likeEscape quotes LIKE wildcards so search text matches literally.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildContestQuery renders the WHERE clause for f with positional args.
func buildContestQuery(f store.ContestFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.CreatorEmail != "" {
		add("lower(creator_email) = lower($%d)", f.CreatorEmail)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Search != "" {
		add("type ILIKE '%%' || $%d || '%%'", likeEscape(f.Search))
	}
	if f.EndedBefore != nil {
		add("NOT is_ended AND deadline <= $%d", *f.EndedBefore)
	}
	if f.HasWinner {
		where = append(where, "winner_email <> ''")
	}

	query := `SELECT ` + contestColumns + ` FROM contests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY created_at", args
}

func (s *Store) ListContests(ctx context.Context, f store.ContestFilter) ([]models.Contest, error) {
	query, args := buildContestQuery(f)
	var rows []contestRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return contestModels(rows), nil
}

func (s *Store) PopularContests(ctx context.Context, limit int, status models.ContestStatus) ([]models.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += " WHERE status = $1"
	}
	query += " ORDER BY participants_count DESC, created_at"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []contestRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return contestModels(rows), nil
}

func expectOne(res sql.Result, err error, what, key string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, what, key)
	}
	return nil
}

func (s *Store) UpdateContestFields(ctx context.Context, id string, f models.ContestFields) error {
	query := `
		UPDATE contests SET name = $2, description = $3, type = $4, image = $5,
		  instructions = $6, entry_fee = $7, prize_money = $8, deadline = $9
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, f.Name, f.Description, f.Type, f.Image,
		f.Instructions, f.EntryFee, f.PrizeMoney, f.Deadline)
	return expectOne(res, err, "contest", id)
}

func (s *Store) SetContestStatus(ctx context.Context, id string, status models.ContestStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contests SET status = $2 WHERE id = $1`, id, string(status))
	return expectOne(res, err, "contest", id)
}

func (s *Store) SetContestEnded(ctx context.Context, id string, ended bool) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE contests SET is_ended = $2 WHERE id = $1`, id, ended)
	if err := expectOne(res, err, "contest", id); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `UPDATE submissions SET contest_is_ended = $2 WHERE contest_id = $1`, id, ended)
	if err != nil {
		return 0, err
	}
	touched, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(touched), nil
}

func (s *Store) DeleteContest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contests WHERE id = $1`, id)
	return expectOne(res, err, "contest", id)
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (email, display_name, photo_url, bio, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query, u.Email, u.DisplayName, u.PhotoURL, u.Bio, string(u.Role), u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s exists", apperr.ErrConflict, u.Email)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at`)
	return users, err
}

func (s *Store) UpdateProfile(ctx context.Context, email, displayName, photoURL, bio string) error {
	query := `UPDATE users SET display_name = $2, photo_url = $3, bio = $4 WHERE lower(email) = lower($1)`
	res, err := s.db.ExecContext(ctx, query, email, displayName, photoURL, bio)
	return expectOne(res, err, "user", email)
}

func (s *Store) SetRole(ctx context.Context, email string, role models.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE lower(email) = lower($1)`, email, string(role))
	return expectOne(res, err, "user", email)
}

func (s *Store) RecordSettlement(ctx context.Context, p *models.Payment, participant models.Participant) (store.SettlementResult, error) {
	var result store.SettlementResult

	entry, err := json.Marshal(models.Participants{participant})
	if err != nil {
		return result, err
	}
	match, err := json.Marshal([]map[string]string{{"email": participant.Email}})
	if err != nil {
		return result, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, customer_email, contest_id, currency, transaction_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING
	`, p.ID, p.CustomerEmail, p.ContestID, p.Currency, p.TransactionID, p.PaidAt)
	if err != nil {
		return result, fmt.Errorf("insert payment: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return result, err
	}
	result.PaymentInserted = inserted > 0

	res, err = tx.ExecContext(ctx, `
		UPDATE contests
		SET participants = participants || $2::jsonb,
		    participants_count = participants_count + 1
		WHERE id = $1 AND NOT participants @> $3::jsonb
	`, p.ContestID, string(entry), string(match))
	if err != nil {
		return result, fmt.Errorf("enroll participant: %w", err)
	}
	enrolled, err := res.RowsAffected()
	if err != nil {
		return result, err
	}
	result.Enrolled = enrolled > 0

	if !result.Enrolled {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, p.ContestID); err != nil {
			return result, err
		}
		if !exists {
			return store.SettlementResult{}, fmt.Errorf("%w: contest %s", apperr.ErrNotFound, p.ContestID)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.SettlementResult{}, err
	}
	return result, nil
}

func (s *Store) GetPaymentByTransaction(ctx context.Context, transactionID string) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT id::text AS id, customer_email, contest_id::text AS contest_id, currency, transaction_id, paid_at
	          FROM payments WHERE transaction_id = $1`
	if err := s.db.GetContext(ctx, &p, query, transactionID); err != nil {
		return nil, notFound(err, "payment", transactionID)
	}
	return &p, nil
}

func (s *Store) HasPayment(ctx context.Context, contestID, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE contest_id = $1 AND lower(customer_email) = lower($2))`
	err := s.db.GetContext(ctx, &exists, query, contestID, email)
	return exists, err
}

func (s *Store) PaidContests(ctx context.Context, email string) ([]models.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests
	          WHERE id IN (SELECT contest_id FROM payments WHERE lower(customer_email) = lower($1))
	          ORDER BY created_at`
	var rows []contestRow
	if err := s.db.SelectContext(ctx, &rows, query, email); err != nil {
		return nil, err
	}
	return contestModels(rows), nil
}

func (s *Store) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	// FOR SHARE waits out a concurrent SetContestEnded, which then sees this row.
	query := `
		INSERT INTO submissions (id, contest_id, participant_email, content, is_paid, contest_is_ended, submitted_at)
		SELECT $1::uuid, c.id, $3::text, $4::text, $5::boolean, c.is_ended, $6::timestamptz
		FROM contests c WHERE c.id = $2
		FOR SHARE
		RETURNING contest_is_ended
	`
	var ended bool
	err := s.db.QueryRowxContext(ctx, query, sub.ID, sub.ContestID, sub.ParticipantEmail, sub.Content,
		sub.IsPaid, sub.SubmittedAt).Scan(&ended)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: submission already exists", apperr.ErrConflict)
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, sub.ContestID)
	case err != nil:
		return err
	}
	sub.ContestIsEnded = ended
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, contestID string) ([]models.Submission, error) {
	subs := []models.Submission{}
	query := `SELECT id::text AS id, contest_id::text AS contest_id, participant_email, content,
	                 is_paid, contest_is_ended, submitted_at
	          FROM submissions WHERE contest_id = $1 ORDER BY submitted_at`
	err := s.db.SelectContext(ctx, &subs, query, contestID)
	return subs, err
}

const insertWinner = `
	INSERT INTO winners (id, name, email, photo_url, contest_id, contest_name, prize_money, declared_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func winnerArgs(rec *models.Winner) []any {
	return []any{rec.ID, rec.Name, rec.Email, rec.PhotoURL, rec.ContestID, rec.ContestName, rec.PrizeMoney, rec.DeclaredAt}
}

func (s *Store) DeclareWinner(ctx context.Context, contestID string, w models.WinnerInfo, rec *models.Winner) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contests SET winner_name = $2, winner_email = $3, winner_photo_url = $4
		WHERE id = $1 AND winner_email = ''
	`, contestID, w.Name, w.Email, w.PhotoURL)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, contestID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, contestID)
		}
		return fmt.Errorf("%w: winner already declared", apperr.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, insertWinner, winnerArgs(rec)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: winner record exists for contest %s", apperr.ErrConflict, contestID)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertWinnerRecord(ctx context.Context, rec *models.Winner) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertWinner+` ON CONFLICT (contest_id) DO NOTHING`, winnerArgs(rec)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) WinnersByEmail(ctx context.Context, email string) ([]models.Winner, error) {
	winners := []models.Winner{}
	query := `SELECT id::text AS id, name, email, photo_url, contest_id::text AS contest_id,
	                 contest_name, prize_money, declared_at
	          FROM winners WHERE lower(email) = lower($1) ORDER BY declared_at DESC`
	err := s.db.SelectContext(ctx, &winners, query, email)
	return winners, err
}

func (s *Store) WinCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Email string `db:"email"`
		Wins  int    `db:"wins"`
	}
	query := `SELECT lower(email) AS email, count(*) AS wins FROM winners GROUP BY lower(email)`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Email] = r.Wins
	}
	return counts, nil
}
