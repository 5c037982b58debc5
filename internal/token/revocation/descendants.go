package revocation

import (
	"context"

	"github.com/allisson/apikeys/internal/token/domain"
)

// CascadeDescendants revokes the token and every token derived from it.
type CascadeDescendants struct {
	base
	hierarchyType string
}

// NewCascadeDescendants creates the hierarchical cascade strategy. An empty
// hierarchyType selects domain.HierarchyParent.
func NewCascadeDescendants(repo Repository, hierarchyType string, opts ...Option) *CascadeDescendants {
	if hierarchyType == "" {
		hierarchyType = domain.HierarchyParent
	}
	return &CascadeDescendants{base: newBase(repo, opts), hierarchyType: hierarchyType}
}

func (s *CascadeDescendants) Name() string { return StrategyCascadeDescendants }

func (s *CascadeDescendants) Revoke(ctx context.Context, token *domain.Token) error {
	affected, err := s.AffectedTokens(ctx, token)
	if err != nil {
		return err
	}

	ids := make([]domain.ID, 0, len(affected))
	for _, t := range affected {
		ids = append(ids, t.ID)
	}
	if len(ids) == 0 {
		ids = append(ids, token.ID)
	}

	now := s.now()
	fields := domain.TokenFields{RevokedAt: &now}
	if _, err := s.repo.BulkUpdateByIDs(ctx, ids, fields); err != nil {
		return err
	}
	token.ApplyFields(fields, now)
	return nil
}

func (s *CascadeDescendants) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return s.repo.Descendants(ctx, token, s.hierarchyType, true)
}
