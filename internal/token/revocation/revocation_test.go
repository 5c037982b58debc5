package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/repository/memory"
)

// mockRepository is a mock implementation of Repository for testing.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Update(ctx context.Context, token *domain.Token, fields domain.TokenFields) error {
	args := m.Called(ctx, token, fields)
	return args.Error(0)
}

func (m *mockRepository) BulkUpdateByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
	fields domain.TokenFields,
) (int64, error) {
	args := m.Called(ctx, groupID, filter, fields)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) BulkUpdateByIDs(
	ctx context.Context,
	ids []domain.ID,
	fields domain.TokenFields,
) (int64, error) {
	args := m.Called(ctx, ids, fields)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) ListByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
) ([]*domain.Token, error) {
	args := m.Called(ctx, groupID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

func (m *mockRepository) Descendants(
	ctx context.Context,
	token *domain.Token,
	hierarchyType string,
	includeSelf bool,
) ([]*domain.Token, error) {
	args := m.Called(ctx, token, hierarchyType, includeSelf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fixedClock returns a clock whose current time can be moved by the test.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func seqID(s string) domain.ID {
	return domain.MustParseID(domain.IDKindSequential, s)
}

func seedGroup(t *testing.T, repo *memory.TokenRepository, groupID domain.ID, prefixes ...string) []*domain.Token {
	t.Helper()
	tokens := make([]*domain.Token, 0, len(prefixes))
	for i, prefix := range prefixes {
		id := seqID(string(rune('1' + i)))
		token := &domain.Token{
			ID:        id,
			Type:      prefix,
			Prefix:    prefix,
			TokenHash: "hash-" + id.String(),
			GroupID:   &groupID,
		}
		require.NoError(t, repo.Create(context.Background(), token))
		tokens = append(tokens, token)
	}
	return tokens
}

func revokedState(t *testing.T, repo *memory.TokenRepository, tokens []*domain.Token) map[string]bool {
	t.Helper()
	state := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		stored, err := repo.FindByID(context.Background(), token.ID)
		require.NoError(t, err)
		state[stored.Prefix+"-"+stored.ID.String()] = stored.RevokedAt != nil
	}
	return state
}

func TestNone_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RevokeTwiceUsesSecondTimestamp", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		token := &domain.Token{ID: seqID("1"), TokenHash: "h1"}
		require.NoError(t, repo.Create(ctx, token))

		now, advance := fixedClock(t0)
		strategy := NewNone(repo, WithClock(now))

		require.NoError(t, strategy.Revoke(ctx, token))
		require.NotNil(t, token.RevokedAt)
		assert.Equal(t, t0, *token.RevokedAt)

		advance(time.Minute)
		require.NoError(t, strategy.Revoke(ctx, token))
		assert.Equal(t, t0.Add(time.Minute), *token.RevokedAt)

		stored, err := repo.FindByID(ctx, token.ID)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Minute), *stored.RevokedAt)
	})

	t.Run("Success_AffectsOnlyToken", func(t *testing.T) {
		groupID := seqID("9")
		token := &domain.Token{ID: seqID("1"), GroupID: &groupID}
		strategy := NewNone(&mockRepository{})

		affected, err := strategy.AffectedTokens(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, []*domain.Token{token}, affected)
		assert.Equal(t, StrategyNone, strategy.Name())
	})

	t.Run("Error_RepositoryFailure", func(t *testing.T) {
		repo := &mockRepository{}
		token := &domain.Token{ID: seqID("1")}
		repo.On("Update", ctx, token, mock.Anything).Return(errors.New("db down"))

		err := NewNone(repo).Revoke(ctx, token)
		assert.EqualError(t, err, "db down")
		assert.Nil(t, token.RevokedAt)
		repo.AssertExpectations(t)
	})
}

func TestCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RevokesEveryGroupMember", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		tokens := seedGroup(t, repo, seqID("100"), "sk", "pk", "rk", "sk")
		now, _ := fixedClock(t0)
		strategy := NewCascade(repo, WithClock(now))

		require.NoError(t, strategy.Revoke(ctx, tokens[2]))

		for key, revoked := range revokedState(t, repo, tokens) {
			assert.True(t, revoked, key)
		}
		assert.Equal(t, t0, *tokens[2].RevokedAt)
	})

	t.Run("Success_SingleSetBasedUpdate", func(t *testing.T) {
		repo := &mockRepository{}
		groupID := seqID("100")
		token := &domain.Token{ID: seqID("1"), GroupID: &groupID}
		now, _ := fixedClock(t0)
		repo.On("BulkUpdateByGroup", ctx, groupID, domain.GroupFilter{}, domain.TokenFields{RevokedAt: &t0}).
			Return(int64(3), nil).
			Once()

		require.NoError(t, NewCascade(repo, WithClock(now)).Revoke(ctx, token))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Success_UngroupedRevokesOnlyToken", func(t *testing.T) {
		repo := &mockRepository{}
		token := &domain.Token{ID: seqID("1")}
		repo.On("Update", ctx, token, mock.Anything).Return(nil).Once()

		require.NoError(t, NewCascade(repo).Revoke(ctx, token))
		assert.NotNil(t, token.RevokedAt)
		repo.AssertExpectations(t)

		affected, err := NewCascade(repo).AffectedTokens(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, []*domain.Token{token}, affected)
	})

	t.Run("Success_AffectedTokensDoesNotMutate", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		tokens := seedGroup(t, repo, seqID("100"), "sk", "pk")

		affected, err := NewCascade(repo).AffectedTokens(ctx, tokens[0])
		require.NoError(t, err)
		assert.Len(t, affected, 2)
		for _, revoked := range revokedState(t, repo, tokens) {
			assert.False(t, revoked)
		}
	})
}

func TestPartialCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RevokesExactlyMatchingPrefixes", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		tokens := seedGroup(t, repo, seqID("100"), "sk", "rk", "pk")
		strategy := NewPartialCascade(repo, []string{"sk", "rk"})

		require.NoError(t, strategy.Revoke(ctx, tokens[2]))

		state := revokedState(t, repo, tokens)
		assert.True(t, state["sk-1"])
		assert.True(t, state["rk-2"])
		assert.False(t, state["pk-3"])
		assert.Nil(t, tokens[2].RevokedAt, "target outside the prefix set stays valid")

		affected, err := strategy.AffectedTokens(ctx, tokens[0])
		require.NoError(t, err)
		assert.Len(t, affected, 2)
	})

	t.Run("Success_EmptyPrefixSetRevokesNothingWhenGrouped", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		tokens := seedGroup(t, repo, seqID("100"), "sk", "pk")
		strategy := NewPartialCascade(repo, nil)

		require.NoError(t, strategy.Revoke(ctx, tokens[0]))

		for key, revoked := range revokedState(t, repo, tokens) {
			assert.False(t, revoked, key)
		}
		affected, err := strategy.AffectedTokens(ctx, tokens[0])
		require.NoError(t, err)
		assert.Empty(t, affected)
	})

	t.Run("Success_UngroupedIgnoresPrefixSet", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		token := &domain.Token{ID: seqID("1"), Prefix: "pk", TokenHash: "h"}
		require.NoError(t, repo.Create(ctx, token))

		require.NoError(t, NewPartialCascade(repo, []string{"sk"}).Revoke(ctx, token))
		assert.NotNil(t, token.RevokedAt)
	})

	t.Run("Success_PrefixesAreCopied", func(t *testing.T) {
		prefixes := []string{"sk"}
		strategy := NewPartialCascade(&mockRepository{}, prefixes)
		prefixes[0] = "pk"
		assert.Equal(t, []string{"sk"}, strategy.Prefixes())
	})
}

func TestCascadeDescendants(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RevokesTokenAndDescendants", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		root := &domain.Token{ID: seqID("1"), TokenHash: "h1"}
		child := &domain.Token{ID: seqID("2"), TokenHash: "h2", ParentID: &root.ID}
		grandchild := &domain.Token{ID: seqID("3"), TokenHash: "h3", ParentID: &child.ID}
		sibling := &domain.Token{ID: seqID("4"), TokenHash: "h4"}
		for _, token := range []*domain.Token{root, child, grandchild, sibling} {
			require.NoError(t, repo.Create(ctx, token))
		}

		strategy := NewCascadeDescendants(repo, "")
		affected, err := strategy.AffectedTokens(ctx, root)
		require.NoError(t, err)
		assert.Len(t, affected, 3)

		require.NoError(t, strategy.Revoke(ctx, root))
		state := revokedState(t, repo, []*domain.Token{root, child, grandchild, sibling})
		assert.True(t, state["-1"])
		assert.True(t, state["-2"])
		assert.True(t, state["-3"])
		assert.False(t, state["-4"])
		assert.NotNil(t, root.RevokedAt)
	})

	t.Run("Success_SingleBulkUpdate", func(t *testing.T) {
		repo := &mockRepository{}
		token := &domain.Token{ID: seqID("1")}
		child := &domain.Token{ID: seqID("2")}
		repo.On("Descendants", ctx, token, domain.HierarchyParent, true).
			Return([]*domain.Token{token, child}, nil)
		repo.On("BulkUpdateByIDs", ctx, []domain.ID{token.ID, child.ID}, mock.Anything).
			Return(int64(2), nil).
			Once()

		require.NoError(t, NewCascadeDescendants(repo, domain.HierarchyParent).Revoke(ctx, token))
		repo.AssertExpectations(t)
	})

	t.Run("Error_TraversalFailure", func(t *testing.T) {
		repo := &mockRepository{}
		token := &domain.Token{ID: seqID("1")}
		repo.On("Descendants", ctx, token, domain.HierarchyParent, true).Return(nil, errors.New("boom"))

		err := NewCascadeDescendants(repo, "").Revoke(ctx, token)
		assert.EqualError(t, err, "boom")
		repo.AssertNotCalled(t, "BulkUpdateByIDs", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTimed(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ScheduledRevocationBoundary", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		token := &domain.Token{ID: seqID("1"), TokenHash: "h1"}
		require.NoError(t, repo.Create(ctx, token))
		now, _ := fixedClock(t0)

		strategy, err := NewTimed(repo, 60, WithClock(now))
		require.NoError(t, err)
		require.NoError(t, strategy.Revoke(ctx, token))

		require.NotNil(t, token.RevokedAt)
		assert.Equal(t, t0.Add(60*time.Minute), *token.RevokedAt)
		assert.False(t, token.IsRevoked(t0.Add(59*time.Minute)))
		assert.True(t, token.IsRevocationScheduled(t0.Add(59*time.Minute)))
		assert.True(t, token.IsRevoked(t0.Add(60*time.Minute)))

		affected, err := strategy.AffectedTokens(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, []*domain.Token{token}, affected)
	})

	t.Run("Success_RepeatedCallsReschedule", func(t *testing.T) {
		repo := memory.NewTokenRepository()
		token := &domain.Token{ID: seqID("1"), TokenHash: "h1"}
		require.NoError(t, repo.Create(ctx, token))
		now, advance := fixedClock(t0)

		strategy, err := NewTimed(repo, 10, WithClock(now))
		require.NoError(t, err)
		require.NoError(t, strategy.Revoke(ctx, token))
		advance(5 * time.Minute)
		require.NoError(t, strategy.Revoke(ctx, token))

		assert.Equal(t, t0.Add(15*time.Minute), *token.RevokedAt)
	})

	t.Run("Error_NonPositiveDelay", func(t *testing.T) {
		_, err := NewTimed(&mockRepository{}, 0)
		var cfgErr *domain.InvalidConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "delay_minutes", cfgErr.Field)
	})
}
