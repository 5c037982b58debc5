// Package memory provides mutex-guarded in-memory token, group and audit log storage
// for development and tests. Every read returns a copy.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/allisson/apikeys/internal/token/domain"
)

// TokenRepository stores tokens in memory.
type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[domain.ID]*domain.Token
	byHash map[string]domain.ID
	order  []domain.ID
	now    func() time.Time

	// lastSequential is the highest sequential id handed out or stored.
	lastSequential int64
}

// NewTokenRepository creates an empty in-memory token store.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[domain.ID]*domain.Token),
		byHash: make(map[string]domain.ID),
		now:    time.Now,
	}
}

// Create stores a copy of token. Duplicate ids or hashes yield ErrTokenAlreadyExists.
func (r *TokenRepository) Create(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.ID]; ok {
		return domain.ErrTokenAlreadyExists
	}
	if _, ok := r.byHash[token.TokenHash]; ok {
		return domain.ErrTokenAlreadyExists
	}

	r.tokens[token.ID] = token.Clone()
	r.byHash[token.TokenHash] = token.ID
	r.order = append(r.order, token.ID)
	if token.ID.Kind() == domain.IDKindSequential {
		r.lastSequential = max(r.lastSequential, sequentialValue(token.ID))
	}
	return nil
}

// FindByHash returns the token with the given digest.
func (r *TokenRepository) FindByHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return r.tokens[id].Clone(), nil
}

// FindByID returns the token with the given id.
func (r *TokenRepository) FindByID(_ context.Context, id domain.ID) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[id]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return token.Clone(), nil
}

// Update applies fields to the stored copy of token.
func (r *TokenRepository) Update(_ context.Context, token *domain.Token, fields domain.TokenFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tokens[token.ID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	stored.ApplyFields(fields, r.now())
	return nil
}

// BulkUpdateByGroup applies fields to every group member passing filter in one locked pass.
func (r *TokenRepository) BulkUpdateByGroup(
	_ context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
	fields domain.TokenFields,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var affected int64
	for _, id := range r.order {
		token := r.tokens[id]
		if token.GroupID == nil || *token.GroupID != groupID || !filter.Matches(token) {
			continue
		}
		token.ApplyFields(fields, now)
		affected++
	}
	return affected, nil
}

// BulkUpdateByIDs applies fields to every listed token in one locked pass. Unknown ids are skipped.
func (r *TokenRepository) BulkUpdateByIDs(
	_ context.Context,
	ids []domain.ID,
	fields domain.TokenFields,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var affected int64
	for _, id := range ids {
		if token, ok := r.tokens[id]; ok {
			token.ApplyFields(fields, now)
			affected++
		}
	}
	return affected, nil
}

// ListByGroup returns group members passing filter in creation order.
func (r *TokenRepository) ListByGroup(
	_ context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
) ([]*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]*domain.Token, 0)
	for _, id := range r.order {
		token := r.tokens[id]
		if token.GroupID != nil && *token.GroupID == groupID && filter.Matches(token) {
			tokens = append(tokens, token.Clone())
		}
	}
	return tokens, nil
}

// Descendants walks the parent hierarchy breadth first starting at token.
func (r *TokenRepository) Descendants(
	_ context.Context,
	token *domain.Token,
	hierarchyType string,
	includeSelf bool,
) ([]*domain.Token, error) {
	if hierarchyType != domain.HierarchyParent {
		return nil, &domain.InvalidConfigurationError{Field: "hierarchy_type", Constraint: "must be parent"}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]*domain.Token, 0)
	if includeSelf {
		if stored, ok := r.tokens[token.ID]; ok {
			tokens = append(tokens, stored.Clone())
		}
	}

	visited := map[domain.ID]bool{token.ID: true}
	queue := []domain.ID{token.ID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, id := range r.order {
			child := r.tokens[id]
			if child.ParentID == nil || *child.ParentID != parent || visited[id] {
				continue
			}
			visited[id] = true
			tokens = append(tokens, child.Clone())
			queue = append(queue, id)
		}
	}
	return tokens, nil
}

// NextSequentialID returns the next value of the store's sequential id counter, always
// past any manually assigned sequential token id. The counter lives in this process only.
func (r *TokenRepository) NextSequentialID(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSequential++
	return r.lastSequential, nil
}

// GroupRepository stores token groups in memory.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[domain.ID]*domain.TokenGroup
}

// NewGroupRepository creates an empty in-memory group store.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[domain.ID]*domain.TokenGroup)}
}

// CreateGroup stores a copy of group.
func (r *GroupRepository) CreateGroup(_ context.Context, group *domain.TokenGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *group
	r.groups[group.ID] = &cp
	return nil
}

// FindGroupByID returns the group with the given id.
func (r *GroupRepository) FindGroupByID(_ context.Context, id domain.ID) (*domain.TokenGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	cp := *group
	return &cp, nil
}

// AuditLogRepository stores audit log entries in memory.
type AuditLogRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLogEntry
}

// NewAuditLogRepository creates an empty in-memory audit log.
func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

// Create appends a copy of entry.
func (r *AuditLogRepository) Create(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

// List returns entries ordered by creation time descending, like the SQL repositories.
func (r *AuditLogRepository) List(_ context.Context, offset, limit int) ([]*domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := slices.Clone(r.entries)
	slices.Reverse(sorted)

	if offset >= len(sorted) {
		return []*domain.AuditLogEntry{}, nil
	}
	end := min(offset+limit, len(sorted))

	out := make([]*domain.AuditLogEntry, 0, end-offset)
	for _, entry := range sorted[offset:end] {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

func sequentialValue(id domain.ID) int64 {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
