package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/models"
)

// Mock collaborators for testing. Each keeps state in memory and records the
// calls the reconcilers make; the ...Func hooks override a single method.

type mockDirectory struct {
	verifications []*models.WalletVerification

	findByAddressesFunc func(ctx context.Context, addresses []string) ([]*models.WalletVerification, error)
	findAllByUserIDFunc func(ctx context.Context, userID string) ([]*models.WalletVerification, error)

	batchSizes []int
}

func (m *mockDirectory) FindByAddresses(ctx context.Context, addresses []string) ([]*models.WalletVerification, error) {
	m.batchSizes = append(m.batchSizes, len(addresses))
	if m.findByAddressesFunc != nil {
		return m.findByAddressesFunc(ctx, addresses)
	}

	wanted := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		wanted[a] = true
	}

	var result []*models.WalletVerification
	for _, v := range m.verifications {
		if wanted[strings.ToLower(v.WalletAddress)] {
			result = append(result, v)
		}
	}
	return result, nil
}

func (m *mockDirectory) FindAllByUserID(ctx context.Context, userID string) ([]*models.WalletVerification, error) {
	if m.findAllByUserIDFunc != nil {
		return m.findAllByUserIDFunc(ctx, userID)
	}

	var result []*models.WalletVerification
	for _, v := range m.verifications {
		if v.UserID == userID {
			result = append(result, v)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].VerifiedAt.After(result[j].VerifiedAt) })
	return result, nil
}

type mockGateway struct {
	mu sync.Mutex

	members map[string]bool            // users present in the guild
	roles   map[string]map[string]bool // roleID -> userID -> held

	guildErr   error
	hasRoleErr map[string]error
	grantErr   map[string]error
	revokeErr  map[string]error
	holdersErr error

	grants  []string
	revokes []string
}

func newMockGateway(members ...string) *mockGateway {
	g := &mockGateway{
		members:    make(map[string]bool),
		roles:      make(map[string]map[string]bool),
		hasRoleErr: make(map[string]error),
		grantErr:   make(map[string]error),
		revokeErr:  make(map[string]error),
	}
	for _, m := range members {
		g.members[m] = true
	}
	return g
}

func (g *mockGateway) give(userID, roleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[userID] = true
	if g.roles[roleID] == nil {
		g.roles[roleID] = make(map[string]bool)
	}
	g.roles[roleID][userID] = true
}

func (g *mockGateway) holds(userID, roleID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[roleID][userID]
}

func (g *mockGateway) CheckGuild(ctx context.Context) error {
	return g.guildErr
}

func (g *mockGateway) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.hasRoleErr[userID]; err != nil {
		return false, err
	}
	if !g.members[userID] {
		return false, apperrors.NewMemberNotFoundError(userID, nil)
	}
	return g.roles[roleID][userID], nil
}

func (g *mockGateway) GrantRole(ctx context.Context, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.grantErr[userID]; err != nil {
		return err
	}
	if g.roles[roleID] == nil {
		g.roles[roleID] = make(map[string]bool)
	}
	g.roles[roleID][userID] = true
	g.grants = append(g.grants, userID)
	return nil
}

func (g *mockGateway) RevokeRole(ctx context.Context, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.revokeErr[userID]; err != nil {
		return err
	}
	delete(g.roles[roleID], userID)
	g.revokes = append(g.revokes, userID)
	return nil
}

func (g *mockGateway) ListHolders(ctx context.Context, roleID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holdersErr != nil {
		return nil, g.holdersErr
	}
	var holders []string
	for userID, held := range g.roles[roleID] {
		if held {
			holders = append(holders, userID)
		}
	}
	sort.Strings(holders)
	return holders, nil
}

type mockSource struct {
	entries []*models.LeaderboardEntry
	err     error
	calls   int
	lastN   int
}

func (m *mockSource) FetchTop(ctx context.Context, n int) ([]*models.LeaderboardEntry, error) {
	m.calls++
	m.lastN = n
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

type mockSnapshots struct {
	entries    []*models.LeaderboardEntry
	replaceErr error
	listErr    error
	replaced   int
}

func (m *mockSnapshots) List(ctx context.Context) ([]*models.LeaderboardEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]*models.LeaderboardEntry(nil), m.entries...), nil
}

func (m *mockSnapshots) Replace(ctx context.Context, entries []*models.LeaderboardEntry) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced++
	m.entries = append([]*models.LeaderboardEntry(nil), entries...)
	return nil
}

func (m *mockSnapshots) FindByAddress(ctx context.Context, address string) (*models.LeaderboardEntry, error) {
	for _, e := range m.entries {
		if strings.EqualFold(e.Address, address) {
			return e, nil
		}
	}
	return nil, nil
}

type mockWhales struct {
	records   map[string]*models.WhaleRecord
	upsertErr map[string]error
	upserts   int
	deletes   int
}

func newMockWhales() *mockWhales {
	return &mockWhales{
		records:   make(map[string]*models.WhaleRecord),
		upsertErr: make(map[string]error),
	}
}

func (m *mockWhales) Upsert(ctx context.Context, record *models.WhaleRecord) error {
	if err := m.upsertErr[record.UserID]; err != nil {
		return err
	}
	m.upserts++
	copied := *record
	if existing, ok := m.records[record.UserID]; ok {
		copied.CreatedAt = existing.CreatedAt
	}
	m.records[record.UserID] = &copied
	return nil
}

func (m *mockWhales) Delete(ctx context.Context, userID string) error {
	m.deletes++
	delete(m.records, userID)
	return nil
}

func (m *mockWhales) List(ctx context.Context) ([]*models.WhaleRecord, error) {
	result := make([]*models.WhaleRecord, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	return result, nil
}

type mockCommunityStore struct {
	collections map[string][]string
	errs        map[string]error
}

func (m *mockCommunityStore) ListAddresses(ctx context.Context, collection string) ([]string, error) {
	if err := m.errs[collection]; err != nil {
		return nil, err
	}
	return m.collections[collection], nil
}

type mockEventSink struct {
	mu     sync.Mutex
	events []*models.RoleEvent
}

func (m *mockEventSink) RecordRoleEvents(ctx context.Context, events []*models.RoleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventSink) actions() []models.RoleAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var actions []models.RoleAction
	for _, e := range m.events {
		actions = append(actions, e.Action)
	}
	return actions
}
