package catalog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(inUse map[string]bool) *catalog.Service {
	return catalog.NewService(catalog.NewMemoryStore(),
		catalog.WithClock(func() time.Time { return fixedNow }),
		catalog.WithUsageChecker(catalog.UsageCheckerFunc(func(_ context.Context, code string) (bool, error) {
			return inUse[code], nil
		})),
	)
}

func premium() catalog.Spec {
	return catalog.Spec{
		Code:          "premium_monthly",
		Name:          "Premium",
		Amount:        2999,
		Currency:      "usd",
		IntervalUnit:  catalog.IntervalMonth,
		IntervalCount: 1,
		TrialDays:     7,
	}
}

func TestService_CreatePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(nil)

	plan, err := svc.CreatePlan(ctx, premium())
	require.NoError(t, err)
	assert.Equal(t, "USD", plan.Currency)
	assert.True(t, plan.Active)
	assert.True(t, plan.HasTrial())
	assert.Equal(t, fixedNow, plan.CreatedAt)

	got, err := svc.GetPlan(ctx, "premium_monthly")
	require.NoError(t, err)
	assert.Equal(t, plan, got)

	_, err = svc.CreatePlan(ctx, premium())
	assert.ErrorIs(t, err, catalog.ErrDuplicatePlanCode)
}

func TestSpec_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*catalog.Spec)
	}{
		{"zero amount", func(s *catalog.Spec) { s.Amount = 0 }},
		{"negative amount", func(s *catalog.Spec) { s.Amount = -1 }},
		{"zero interval count", func(s *catalog.Spec) { s.IntervalCount = 0 }},
		{"negative trial", func(s *catalog.Spec) { s.TrialDays = -1 }},
		{"unknown unit", func(s *catalog.Spec) { s.IntervalUnit = "fortnight" }},
		{"bad currency", func(s *catalog.Spec) { s.Currency = "US" }},
		{"missing code", func(s *catalog.Spec) { s.Code = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := premium()
			tt.mutate(&spec)
			_, err := newService(nil).CreatePlan(context.Background(), spec)
			assert.ErrorIs(t, err, catalog.ErrInvalidPlan)
		})
	}
}

func TestService_ActivationAndListing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(nil)

	basic := premium()
	basic.Code = "basic_monthly"
	basic.Amount = 999
	_, err := svc.CreatePlan(ctx, basic)
	require.NoError(t, err)
	_, err = svc.CreatePlan(ctx, premium())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "basic_monthly"))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "premium_monthly", active[0].Code)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.Activate(ctx, "basic_monthly"))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	assert.ErrorIs(t, svc.Deactivate(ctx, "missing"), catalog.ErrPlanNotFound)
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(map[string]bool{"premium_monthly": true})

	_, err := svc.CreatePlan(ctx, premium())
	require.NoError(t, err)
	unused := premium()
	unused.Code = "unused"
	_, err = svc.CreatePlan(ctx, unused)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "premium_monthly"), catalog.ErrPlanInUse)
	require.NoError(t, svc.Delete(ctx, "unused"))

	_, err = svc.GetPlan(ctx, "unused")
	assert.ErrorIs(t, err, catalog.ErrPlanNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "unused"), catalog.ErrPlanNotFound)

	noChecker := catalog.NewService(catalog.NewMemoryStore())
	_, err = noChecker.CreatePlan(ctx, unused)
	require.NoError(t, err)
	assert.ErrorIs(t, noChecker.Delete(ctx, "unused"), catalog.ErrPlanInUse)
}

func TestService_DeleteKeepsPlansOfEndedSubscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	subs := subscription.NewMemoryStore()
	svc := catalog.NewService(catalog.NewMemoryStore(),
		catalog.WithClock(func() time.Time { return fixedNow }),
		catalog.WithUsageChecker(subs))

	_, err := svc.CreatePlan(ctx, premium())
	require.NoError(t, err)

	for _, status := range []subscription.Status{subscription.StatusCancelled, subscription.StatusExpired} {
		ended := fixedNow
		require.NoError(t, subs.Create(ctx, &subscription.Subscription{
			ID:         uuid.New(),
			CustomerID: "cus_" + string(status),
			PlanCode:   "premium_monthly",
			Status:     status,
			EndedAt:    &ended,
		}))
	}

	assert.ErrorIs(t, svc.Delete(ctx, "premium_monthly"), catalog.ErrPlanInUse)
	_, err = svc.GetPlan(ctx, "premium_monthly")
	assert.NoError(t, err)
}

func TestPlan_NextPeriodEnd(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		unit  catalog.IntervalUnit
		count int
		want  time.Time
	}{
		{catalog.IntervalDay, 30, time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)},
		{catalog.IntervalWeek, 2, time.Date(2025, 1, 29, 10, 0, 0, 0, time.UTC)},
		{catalog.IntervalMonth, 1, time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)},
		{catalog.IntervalMonth, 3, time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)},
		{catalog.IntervalYear, 1, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		plan := catalog.Plan{IntervalUnit: tt.unit, IntervalCount: tt.count}
		assert.Equal(t, tt.want, plan.NextPeriodEnd(start), plan.Interval())
	}

	trial := catalog.Plan{TrialDays: 7}
	assert.Equal(t, start.AddDate(0, 0, 7), trial.TrialEnd(start))
}

func TestPlan_PeriodEndClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 9, 30, 0, 0, time.UTC) }
	monthly := catalog.Plan{IntervalUnit: catalog.IntervalMonth, IntervalCount: 1}
	quarterly := catalog.Plan{IntervalUnit: catalog.IntervalMonth, IntervalCount: 3}
	yearly := catalog.Plan{IntervalUnit: catalog.IntervalYear, IntervalCount: 1}

	tests := []struct {
		name   string
		plan   catalog.Plan
		start  time.Time
		anchor int
		want   time.Time
	}{
		{"jan 31 to feb 28", monthly, at(2025, time.January, 31), 31, at(2025, time.February, 28)},
		{"jan 31 to feb 29 in leap year", monthly, at(2024, time.January, 31), 31, at(2024, time.February, 29)},
		{"aug 31 to sep 30", monthly, at(2025, time.August, 31), 31, at(2025, time.September, 30)},
		{"feb 28 back to anchor 31", monthly, at(2025, time.February, 28), 31, at(2025, time.March, 31)},
		{"sep 30 back to anchor 31", monthly, at(2025, time.September, 30), 31, at(2025, time.October, 31)},
		{"dec 31 across year end", monthly, at(2025, time.December, 31), 31, at(2026, time.January, 31)},
		{"nov 30 quarterly to feb 28", quarterly, at(2025, time.November, 30), 30, at(2026, time.February, 28)},
		{"leap day yearly", yearly, at(2024, time.February, 29), 29, at(2025, time.February, 28)},
		{"zero anchor uses start day", monthly, at(2025, time.March, 15), 0, at(2025, time.April, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.plan.AnchoredPeriodEnd(tt.start, tt.anchor))
		})
	}

	assert.Equal(t, at(2025, time.February, 28), monthly.NextPeriodEnd(at(2025, time.January, 31)))
}

func TestLoadYAMLAndSeed(t *testing.T) {
	t.Parallel()

	const doc = `
plans:
  - code: premium_monthly
    name: Premium
    amount: 2999
    currency: USD
    interval_unit: month
    interval_count: 1
    trial_days: 7
  - code: starter_yearly
    name: Starter
    amount: 9900
    currency: EUR
    interval_unit: year
    interval_count: 1
`
	specs, err := catalog.LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, 7, specs[0].TrialDays)

	ctx := context.Background()
	svc := newService(nil)

	created, err := catalog.Seed(ctx, svc, specs)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = catalog.Seed(ctx, svc, specs)
	require.NoError(t, err)
	assert.Zero(t, created)

	_, err = catalog.LoadYAML(strings.NewReader("plans:\n  - code: x\n    price: 1\n"))
	assert.ErrorIs(t, err, catalog.ErrInvalidSeedFile)
}
