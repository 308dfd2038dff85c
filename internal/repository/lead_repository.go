package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/lead-service/internal/domain"
)

const uniqueViolation = "23505"

var (
	// ErrNotFound is returned when no lead matches.
	ErrNotFound = errors.New("lead not found")
	// ErrDuplicateID is returned when the lead id already exists.
	ErrDuplicateID = errors.New("lead id already exists")
)

// DB is the subset of *pgxpool.Pool used by repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LeadFilter captures listing parameters.
type LeadFilter struct {
	State  *domain.LeadState
	Limit  int
	Offset int
}

// LeadRepository encapsulates lead persistence.
type LeadRepository interface {
	Insert(ctx context.Context, lead *domain.Lead) error
	List(ctx context.Context, filter LeadFilter) ([]domain.Lead, int, error)
	GetByID(ctx context.Context, id string) (*domain.Lead, error)
	UpdateState(ctx context.Context, id string, state domain.LeadState, allowedFrom []domain.LeadState, at time.Time) (*domain.Lead, error)
}

type leadRepository struct {
	db DB
}

// NewLeadRepository instantiates repository.
func NewLeadRepository(db DB) LeadRepository {
	return &leadRepository{db: db}
}

const leadColumns = `id, first_name, last_name, email, resume_blob_key, state, created_at, updated_at`

func (r *leadRepository) Insert(ctx context.Context, lead *domain.Lead) error {
	const query = `
        INSERT INTO leads (` + leadColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		lead.ID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.ResumeBlobKey,
		string(lead.State),
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

// List returns one page ordered by created_at descending plus the size of the whole matching set.
// Rows sharing a created_at value come back in storage order.
func (r *leadRepository) List(ctx context.Context, filter LeadFilter) ([]domain.Lead, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.State != nil {
		args = append(args, string(*filter.State))
		clauses = append(clauses, fmt.Sprintf("state=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads, err := scanLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (r *leadRepository) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id=$1`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lead, err
}

// UpdateState sets state and updated_at in one statement, only when the current state is in allowedFrom.
// ErrNotFound covers both an unknown id and a disallowed current state.
func (r *leadRepository) UpdateState(ctx context.Context, id string, state domain.LeadState, allowedFrom []domain.LeadState, at time.Time) (*domain.Lead, error) {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}
	query := `
        UPDATE leads SET state=$1, updated_at=$2
        WHERE id=$3 AND state = ANY($4)
        RETURNING ` + leadColumns
	lead, err := scanLead(r.db.QueryRow(ctx, query, string(state), at, id, from))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lead, err
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var (
		lead  domain.Lead
		state string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.FirstName,
		&lead.LastName,
		&lead.Email,
		&lead.ResumeBlobKey,
		&state,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseLeadState(state)
	if err != nil {
		return nil, err
	}
	lead.State = parsed
	return &lead, nil
}

func scanLeads(rows pgx.Rows) ([]domain.Lead, error) {
	result := []domain.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lead)
	}
	return result, rows.Err()
}
