package recovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/fulfillment/recovery"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListUnfulfilled(ctx context.Context, limit int) ([]paymentdomain.Transaction, error) {
	args := m.Called(ctx, limit)
	txns, _ := args.Get(0).([]paymentdomain.Transaction)
	return txns, args.Error(1)
}

func (m *mockSource) Replay(ctx context.Context, id snowflake.ID) error {
	return m.Called(ctx, id).Error(0)
}

func TestRunOnceReplaysEachTransaction(t *testing.T) {
	source := &mockSource{}
	cfg := config.Config{Fulfillment: config.FulfillmentConfig{SweepBatchSize: 10}}

	source.On("ListUnfulfilled", mock.Anything, 10).Return([]paymentdomain.Transaction{
		{ID: 1, ExternalID: "INV-1"},
		{ID: 2, ExternalID: "INV-2"},
	}, nil)
	source.On("Replay", mock.Anything, snowflake.ID(1)).Return(errors.New("course.grant: boom"))
	source.On("Replay", mock.Anything, snowflake.ID(2)).Return(nil)

	sweeper, err := recovery.NewSweeper(recovery.Params{Log: zap.NewNop(), Cfg: cfg, Source: source})
	require.NoError(t, err)

	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	source.AssertExpectations(t)
}

func TestRunOnceSurfacesListErrors(t *testing.T) {
	source := &mockSource{}
	source.On("ListUnfulfilled", mock.Anything, 25).Return(nil, errors.New("db down"))

	sweeper, err := recovery.NewSweeper(recovery.Params{Log: zap.NewNop(), Source: source})
	require.NoError(t, err)

	_, err = sweeper.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
	source.AssertNotCalled(t, "Replay", mock.Anything, mock.Anything)
}

func TestNewSweeperRequiresSource(t *testing.T) {
	_, err := recovery.NewSweeper(recovery.Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, recovery.ErrInvalidConfig)
}
