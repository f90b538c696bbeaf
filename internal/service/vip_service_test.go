package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/model"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/repository"
	"github.com/qs3c/petvip_server/internal/testutil"
)

func setupVipService(t *testing.T, cfg *config.PaymentConfig) (*VipService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	if cfg == nil {
		cfg = &config.PaymentConfig{}
	}
	svc, err := NewVipService(repository.NewVipRepository(db), fixedClock(), cfg)
	require.NoError(t, err)
	return svc, db
}

func TestVipService_GetVipStatus_NoRecord(t *testing.T) {
	svc, db := setupVipService(t, nil)
	user := testutil.TestUser(t, db)

	status, err := svc.GetVipStatus(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, status.IsVip)
	assert.Nil(t, status.Subscription)
	assert.Nil(t, status.DaysRemaining)
}

func TestVipService_GetVipStatus_Active(t *testing.T) {
	svc, db := setupVipService(t, nil)
	user := testutil.TestUser(t, db)
	start := testToday.AddDate(0, 0, -10)
	h := testutil.TestVipHistory(t, db, user.ID, start, testutil.WithVipAmount(100000, 3),
		testutil.WithVipPeriod(start, model.AddMonths(start, 3)))

	status, err := svc.GetVipStatus(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, status.IsVip)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, h.ID, status.Subscription.HistoryID)
	assert.Equal(t, "2026-10-09", status.Subscription.StartDate)
	assert.Equal(t, "2027-01-09", status.Subscription.EndDate)
	assert.Equal(t, model.VipStatusActive, status.Subscription.Status)
	require.NotNil(t, status.DaysRemaining)
	assert.Equal(t, 82, *status.DaysRemaining)
}

func TestVipService_GetVipStatus_LastDay(t *testing.T) {
	svc, db := setupVipService(t, nil)
	user := testutil.TestUser(t, db)
	testutil.TestVipHistory(t, db, user.ID, testToday.AddDate(0, -1, 0),
		testutil.WithVipPeriod(testToday.AddDate(0, -1, 0), testToday))

	status, err := svc.GetVipStatus(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, status.IsVip)
	require.NotNil(t, status.DaysRemaining)
	assert.Equal(t, 0, *status.DaysRemaining)
}

func TestVipService_GetVipStatus_ExpiredReadThrough(t *testing.T) {
	svc, db := setupVipService(t, nil)
	user := testutil.TestUser(t, db)
	yesterday := testToday.AddDate(0, 0, -1)
	h := testutil.TestVipHistory(t, db, user.ID, yesterday.AddDate(0, -1, 0),
		testutil.WithVipPeriod(yesterday.AddDate(0, -1, 0), yesterday))

	status, err := svc.GetVipStatus(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, status.IsVip)
	assert.Nil(t, status.DaysRemaining)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, model.VipStatusExpired, status.Subscription.Status)

	var reloaded model.VipHistory
	require.NoError(t, db.First(&reloaded, h.ID).Error)
	assert.Equal(t, model.VipStatusExpired, reloaded.Status)
	assert.Nil(t, reloaded.ActiveUserID)
}

func TestVipService_GetVipStatus_InvalidUser(t *testing.T) {
	svc, _ := setupVipService(t, nil)

	_, err := svc.GetVipStatus(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestVipService_ListHistory(t *testing.T) {
	svc, db := setupVipService(t, nil)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)

	oldStart := testToday.AddDate(0, -6, 0)
	old := testutil.TestVipHistory(t, db, user.ID, oldStart, testutil.WithVipStatus(model.VipStatusExpired))
	// 状态仍为 active 但已过期
	stale := testutil.TestVipHistory(t, db, user.ID, testToday.AddDate(0, -2, 0))
	testutil.TestVipHistory(t, db, other.ID, testToday)

	items, err := svc.ListHistory(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, stale.ID, items[0].HistoryID)
	assert.Equal(t, old.ID, items[1].HistoryID)
	for _, item := range items {
		assert.Equal(t, user.ID, item.UserID)
		assert.Equal(t, model.VipStatusExpired, item.Status)
		assert.NotEmpty(t, item.CreatedAt)
	}

	items, err = svc.ListHistory(context.Background(), 99999)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestVipService_ListPlans(t *testing.T) {
	svc, _ := setupVipService(t, &config.PaymentConfig{
		Plans: []config.PlanConfig{
			{Months: 12, Price: "350000"},
			{Months: 1, Price: "50000"},
			{Months: 3, Price: "100000"},
		},
	})

	plans := svc.ListPlans()
	require.Len(t, plans, 3)
	assert.Equal(t, 1, plans[0].Months)
	assert.Equal(t, 3, plans[1].Months)
	assert.Equal(t, 12, plans[2].Months)
	assert.True(t, decimal.NewFromInt(350000).Equal(plans[2].Price))
}

// 端到端：付款附言 userId1months3 开通后查询
func TestVipService_StatusAfterActivation(t *testing.T) {
	f := setupPaymentService(t)
	svc, err := NewVipService(repository.NewVipRepository(f.db), fixedClock(), &config.PaymentConfig{})
	require.NoError(t, err)

	f.feed.add("t1", 100000, memoOf(f.user.ID, 3), time.Minute)
	_, err = f.svc.TryReconcile(context.Background(), f.user.ID, 3, decimal.NewFromInt(100000))
	require.NoError(t, err)

	status, err := svc.GetVipStatus(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.True(t, status.IsVip)
	assert.Equal(t, "2026-10-19", status.Subscription.StartDate)
	assert.Equal(t, "2027-01-19", status.Subscription.EndDate)
	assert.Equal(t, 92, *status.DaysRemaining)
}

func TestClock_Today(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	clock := &Clock{loc: loc, now: func() time.Time {
		return time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	}}

	// UTC 20:00 在 +7 时区已是次日
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), clock.Today())
	assert.Equal(t, "2026-10-20", clock.FormatDate(clock.Now()))
	assert.Equal(t, time.Local, NewClock(nil).Location())
}

func TestVipService_ExpireDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	events := &fakePublisher{}
	svc, err := NewVipService(repository.NewVipRepository(db), fixedClock(), &config.PaymentConfig{},
		WithExpiryPublisher(events))
	require.NoError(t, err)

	yesterday := testToday.AddDate(0, 0, -1)
	due := testutil.TestVipHistory(t, db, testutil.TestUser(t, db).ID, yesterday.AddDate(0, -1, 0),
		testutil.WithVipPeriod(yesterday.AddDate(0, -1, 0), yesterday))
	lastDay := testutil.TestVipHistory(t, db, testutil.TestUser(t, db).ID, testToday.AddDate(0, -1, 0),
		testutil.WithVipPeriod(testToday.AddDate(0, -1, 0), testToday))

	n, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got model.VipHistory
	require.NoError(t, db.First(&got, due.ID).Error)
	assert.Equal(t, model.VipStatusExpired, got.Status)
	assert.Nil(t, got.ActiveUserID)

	var gotLast model.VipHistory
	require.NoError(t, db.First(&gotLast, lastDay.ID).Error)
	assert.Equal(t, model.VipStatusActive, gotLast.Status)

	require.Equal(t, 1, events.count())
	assert.Equal(t, pubsub.EventVipExpired, events.events[0].Type)
	assert.Equal(t, due.UserID, events.events[0].UserID)
	assert.Equal(t, "2026-10-18", events.events[0].EndDate)

	n, err = svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
