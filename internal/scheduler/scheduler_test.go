package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quotabl/quotabl/internal/clock"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type validationServiceStub struct {
	expireCalls int
	expired     int
	expireErr   error
}

func (s *validationServiceStub) CreateRequest(ctx context.Context, tx *gorm.DB, decision *pricingdomain.PricingDecision, corr *validationdomain.SourceCorrelation) (*validationdomain.ValidationRequest, error) {
	return nil, errors.New("not implemented")
}

func (s *validationServiceStub) Decide(ctx context.Context, id string, verdict validationdomain.VerdictRequest) (*validationdomain.ValidationRequest, error) {
	return nil, errors.New("not implemented")
}

func (s *validationServiceStub) ExpireStale(ctx context.Context) (int, error) {
	s.expireCalls++
	if s.expireErr != nil {
		return 0, s.expireErr
	}
	n := s.expired
	s.expired = 0
	return n, nil
}

func (s *validationServiceStub) Get(ctx context.Context, id string) (*validationdomain.ValidationRequest, error) {
	return nil, validationdomain.ErrNotFound
}

func (s *validationServiceStub) List(ctx context.Context, filter validationdomain.ListFilter) ([]validationdomain.ValidationRequest, error) {
	return nil, nil
}

func (s *validationServiceStub) Statistics(ctx context.Context, windowDays int) (*validationdomain.Statistics, error) {
	return &validationdomain.Statistics{}, nil
}

func newTestScheduler(t *testing.T, stub *validationServiceStub) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		ValidationSvc: stub,
	})
	require.NoError(t, err)
	return s
}

func TestNewRejectsMissingDeps(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(time.Now())})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Clock: clock.NewFakeClock(time.Now()), ValidationSvc: &validationServiceStub{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceExpiresAndIsIdempotent(t *testing.T) {
	stub := &validationServiceStub{expired: 3}
	s := newTestScheduler(t, stub)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, stub.expireCalls)

	// Nothing left to expire; a second sweep is a no-op, not an error.
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 2, stub.expireCalls)
}

func TestRunOncePropagatesError(t *testing.T) {
	stub := &validationServiceStub{expireErr: errors.New("db unavailable")}
	s := newTestScheduler(t, stub)

	err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "db unavailable")
}

func TestRunOnceWithoutLocker(t *testing.T) {
	// A nil locker means single-instance mode: the sweep runs unguarded.
	stub := &validationServiceStub{expired: 1}
	s := newTestScheduler(t, stub)
	require.Nil(t, s.locker)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, stub.expireCalls)
}

func TestConfigWithDefaults(t *testing.T) {
	filled := Config{}.withDefaults()
	assert.Equal(t, time.Minute, filled.RunInterval)
	assert.Equal(t, 30*time.Second, filled.JobTimeout)
	assert.Equal(t, 45*time.Second, filled.LockTTL)

	custom := Config{RunInterval: 5 * time.Minute}.withDefaults()
	assert.Equal(t, 5*time.Minute, custom.RunInterval)
	assert.Equal(t, 30*time.Second, custom.JobTimeout)
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	stub := &validationServiceStub{}
	s := newTestScheduler(t, stub)
	s.cfg.RunInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
	assert.GreaterOrEqual(t, stub.expireCalls, 1)
}
