package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptofolio/internal/database"
	"github.com/aristath/cryptofolio/internal/domain"
)

// Repository handles portfolio and holding database operations (portfolio.db)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ domain.PortfolioProvider = (*Repository)(nil)

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a portfolio and its holdings atomically
func (r *Repository) Create(ctx context.Context, p *domain.Portfolio) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO portfolios (id, name, description, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Description, p.CreatedBy, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert portfolio: %w", err)
		}

		for _, h := range p.Holdings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO holdings (id, portfolio_id, symbol, amount) VALUES (?, ?, ?, ?)`,
				h.ID, p.ID, h.Symbol, h.Amount.String(),
			); err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
			}
		}
		return nil
	})
}

// GetByID returns a portfolio with its holdings, or domain.ErrPortfolioNotFound
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
		FROM portfolios WHERE id = ?`, id)

	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}

	holdings, err := r.holdings(ctx, `WHERE portfolio_id = ?`, id)
	if err != nil {
		return nil, err
	}
	p.Holdings = holdings[id]
	if p.Holdings == nil {
		p.Holdings = []domain.Holding{}
	}

	return &p, nil
}

// GetAll returns every portfolio with its holdings, oldest first
func (r *Repository) GetAll(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
		FROM portfolios ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	holdings, err := r.holdings(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range portfolios {
		portfolios[i].Holdings = holdings[portfolios[i].ID]
		if portfolios[i].Holdings == nil {
			portfolios[i].Holdings = []domain.Holding{}
		}
	}

	return portfolios, nil
}

// UpsertHolding sets the amount of a symbol in a portfolio, creating the holding if needed.
// Returns the stored holding.
func (r *Repository) UpsertHolding(ctx context.Context, portfolioID string, h domain.Holding, now time.Time) (*domain.Holding, error) {
	var stored domain.Holding
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, portfolioID, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO holdings (id, portfolio_id, symbol, amount) VALUES (?, ?, ?, ?)
			ON CONFLICT (portfolio_id, symbol) DO UPDATE SET amount = excluded.amount`,
			h.ID, portfolioID, h.Symbol, h.Amount.String(),
		); err != nil {
			return fmt.Errorf("failed to upsert holding %s: %w", h.Symbol, err)
		}

		var amount string
		if err := tx.QueryRowContext(ctx,
			`SELECT id, symbol, amount FROM holdings WHERE portfolio_id = ? AND symbol = ?`,
			portfolioID, h.Symbol,
		).Scan(&stored.ID, &stored.Symbol, &amount); err != nil {
			return fmt.Errorf("failed to read back holding %s: %w", h.Symbol, err)
		}
		stored.Amount, _ = decimal.NewFromString(amount)
		return nil
	})
	if err != nil {
		return nil, unwrapNotFound(err)
	}
	return &stored, nil
}

// DeleteHolding removes a symbol from a portfolio. Returns false if it was not held.
func (r *Repository) DeleteHolding(ctx context.Context, portfolioID, symbol string, now time.Time) (bool, error) {
	var deleted bool
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, portfolioID, now); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM holdings WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol)
		if err != nil {
			return fmt.Errorf("failed to delete holding %s: %w", symbol, err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, unwrapNotFound(err)
	}
	return deleted, nil
}

// Delete removes a portfolio; holdings and snapshots cascade
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}

// holdings loads holdings grouped by portfolio id, in insertion order
func (r *Repository) holdings(ctx context.Context, where string, args ...interface{}) (map[string][]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, portfolio_id, symbol, amount FROM holdings `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Holding)
	for rows.Next() {
		var h domain.Holding
		var portfolioID, amount string
		if err := rows.Scan(&h.ID, &portfolioID, &h.Symbol, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			// Unreadable amounts are valued at zero instead of failing the whole portfolio
			r.log.Warn().Err(err).Str("holding_id", h.ID).Str("amount", amount).Msg("Invalid stored amount")
			h.Amount = decimal.Zero
		}
		out[portfolioID] = append(out[portfolioID], h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}

// touch bumps updated_at and fails with ErrPortfolioNotFound for unknown ids
func touch(ctx context.Context, tx *sql.Tx, portfolioID string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE portfolios SET updated_at = ? WHERE id = ?`, now.Unix(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", portfolioID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}

// unwrapNotFound drops the transaction wrapping so callers can compare against the sentinel
func unwrapNotFound(err error) error {
	if errors.Is(err, domain.ErrPortfolioNotFound) {
		return domain.ErrPortfolioNotFound
	}
	return err
}
