package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/persistence"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if p, ok := args.Get(0).(*models.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *MockStore) SaveMatch(ctx context.Context, result *models.MatchResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockStore) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	args := m.Called(ctx, userID)
	if s, ok := args.Get(0).(*models.PlayerStats); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockStore) Close() error                   { return m.Called().Error(0) }

var _ persistence.Store = (*MockStore)(nil)

func TestGetProfileMissingIsIncomplete(t *testing.T) {
	store := &MockStore{}
	store.On("GetProfile", mock.Anything, "u1").Return(nil, persistence.ErrRecordNotFound)
	svc := NewPlayerService(store, time.Second)

	p, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.False(t, p.ProfileComplete)
}

func TestGetProfileAppliesTimeout(t *testing.T) {
	store := &MockStore{}
	store.On("GetProfile", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 200*time.Millisecond
	}), "u1").Return(&models.Profile{UserID: "u1", DisplayName: "Ann", ProfileComplete: true}, nil)
	svc := NewPlayerService(store, 200*time.Millisecond)

	p, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.ProfileComplete)
	store.AssertExpectations(t)
}

func TestGetProfileStoreFailure(t *testing.T) {
	store := &MockStore{}
	store.On("GetProfile", mock.Anything, "u1").Return(nil, errors.New("db down"))
	svc := NewPlayerService(store, time.Second)

	_, err := svc.GetProfile(context.Background(), "u1")
	assert.EqualError(t, err, "db down")
}

func result(id string) *models.MatchResult {
	return &models.MatchResult{
		MatchID:   id,
		RoomID:    "r1",
		Standings: []models.Standing{{PlayerID: "u1", Score: 10, Rank: 1}},
	}
}

func TestRecordMatchRetriesThenSucceeds(t *testing.T) {
	store := &MockStore{}
	m := result("m1")
	store.On("SaveMatch", mock.Anything, m).Return(errors.New("deadlock")).Twice()
	store.On("SaveMatch", mock.Anything, m).Return(nil).Once()

	svc := NewMatchService(store, time.Second)
	svc.SetRetry(3, time.Millisecond)
	svc.RecordMatch(m)

	require.NoError(t, svc.Close(context.Background()))
	store.AssertNumberOfCalls(t, "SaveMatch", 3)
	assert.Zero(t, svc.Failed())
}

func TestRecordMatchGivesUpAfterAttempts(t *testing.T) {
	store := &MockStore{}
	store.On("SaveMatch", mock.Anything, mock.Anything).Return(errors.New("db down"))

	svc := NewMatchService(store, time.Second)
	svc.SetRetry(3, time.Millisecond)
	svc.RecordMatch(result("m1"))

	require.NoError(t, svc.Close(context.Background()))
	store.AssertNumberOfCalls(t, "SaveMatch", 3)
	assert.Equal(t, 1, svc.Failed())
}

func TestRecordMatchSkipsEmptyResults(t *testing.T) {
	store := &MockStore{}
	svc := NewMatchService(store, time.Second)
	svc.RecordMatch(&models.MatchResult{MatchID: "m1"})
	svc.RecordMatch(nil)

	require.NoError(t, svc.Close(context.Background()))
	store.AssertNotCalled(t, "SaveMatch", mock.Anything, mock.Anything)
}

func TestCloseAbandonsRetries(t *testing.T) {
	store := &MockStore{}
	store.On("SaveMatch", mock.Anything, mock.Anything).Return(errors.New("db down"))

	svc := NewMatchService(store, time.Second)
	svc.SetRetry(5, time.Hour)
	svc.RecordMatch(result("m1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	store.AssertNumberOfCalls(t, "SaveMatch", 1)
	assert.Equal(t, 1, svc.Failed())
}
