// Package portfolio manages user portfolios and their holdings.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptofolio/internal/domain"
)

// HoldingInput is a holding as submitted by a client
type HoldingInput struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateRequest describes a new portfolio
type CreateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CreatedBy   string         `json:"created_by"`
	Holdings    []HoldingInput `json:"holdings"`
}

// Service validates and applies portfolio changes
type Service struct {
	repo *Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a portfolio service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "portfolio").Logger(),
		now:  time.Now,
	}
}

// Create validates req and stores a new portfolio
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Portfolio, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPortfolio)
	}

	now := s.now().UTC().Truncate(time.Second)
	p := &domain.Portfolio{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   strings.TrimSpace(req.CreatedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
		Holdings:    make([]domain.Holding, 0, len(req.Holdings)),
	}

	seen := make(map[string]bool, len(req.Holdings))
	for _, in := range req.Holdings {
		h, err := newHolding(in.Symbol, in.Amount)
		if err != nil {
			return nil, err
		}
		if seen[h.Symbol] {
			return nil, fmt.Errorf("%w: duplicate symbol %s", domain.ErrInvalidHolding, h.Symbol)
		}
		seen[h.Symbol] = true
		p.Holdings = append(p.Holdings, h)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", p.ID).
		Int("holdings", len(p.Holdings)).
		Msg("Portfolio created")
	return p, nil
}

// Get returns one portfolio
func (s *Service) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all portfolios
func (s *Service) List(ctx context.Context) ([]domain.Portfolio, error) {
	return s.repo.GetAll(ctx)
}

// Delete removes a portfolio
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("portfolio_id", id).Msg("Portfolio deleted")
	return nil
}

// SetHolding creates or replaces the amount held of symbol
func (s *Service) SetHolding(ctx context.Context, portfolioID, symbol string, amount decimal.Decimal) (*domain.Holding, error) {
	h, err := newHolding(symbol, amount)
	if err != nil {
		return nil, err
	}
	return s.repo.UpsertHolding(ctx, portfolioID, h, s.now())
}

// RemoveHolding removes symbol from a portfolio. Removing a symbol that is not held is not an error.
func (s *Service) RemoveHolding(ctx context.Context, portfolioID, symbol string) error {
	sym := domain.NormalizeSymbol(symbol)
	deleted, err := s.repo.DeleteHolding(ctx, portfolioID, sym, s.now())
	if err != nil {
		return err
	}
	if !deleted {
		s.log.Debug().Str("portfolio_id", portfolioID).Str("symbol", sym).Msg("Holding not present")
	}
	return nil
}

func newHolding(symbol string, amount decimal.Decimal) (domain.Holding, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym == "" {
		return domain.Holding{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidHolding)
	}
	if !amount.IsPositive() {
		return domain.Holding{}, fmt.Errorf("%w: amount for %s must be positive", domain.ErrInvalidHolding, sym)
	}
	return domain.Holding{ID: uuid.NewString(), Symbol: sym, Amount: amount}, nil
}
