package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a disposable PostgreSQL container with the embedded
// migrations applied
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("groupbuy_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Positive(t, version)

	return db
}

func TestPostgres_ConcurrentJoinsKeepLedgerConsistent(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormGroupOrderRepository(db)
	ctx := context.Background()

	g := newStoredGroup(t, repo, 15)

	const joiners = 25
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	cmds := make([]groupbuy.JoinCommand, joiners)
	for i := range cmds {
		cmds[i] = joinCmd(t, g.ID, fmt.Sprintf("buyer%02d", i), 1, groupbuy.PricingBestTierForAll)
	}
	for _, cmd := range cmds {
		wg.Add(1)
		go func(cmd groupbuy.JoinCommand) {
			defer wg.Done()
			_, err := repo.Join(ctx, cmd)
			errs <- err
		}(cmd)
	}
	wg.Wait()
	close(errs)

	// the group fills on the 15th unit and stops accepting joins
	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, shared.CodeInvalidTransition, de.Code)
	}
	assert.Equal(t, 15, succeeded)

	stored, err := repo.FindByID(ctx, g.ID)
	require.NoError(t, err)
	require.NoError(t, stored.VerifyLedger())
	assert.Equal(t, 15, stored.CurrentQty)
	assert.Len(t, stored.Participants, 15)
	assert.Equal(t, groupbuy.StatusFilled, stored.Status)
	assert.True(t, stored.CurrentUnitPrice.Equal(dec("90")))
	for _, p := range stored.Participants {
		assert.True(t, p.UnitPrice.Equal(dec("90")), p.Name)
	}
}

func TestPostgres_ReminderLogIsIdempotent(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormGroupOrderRepository(db)
	reminders := NewGormReminderLog(db)
	ctx := context.Background()

	g := newStoredGroup(t, repo, 10)
	now := repoNow()

	first, err := reminders.Claim(ctx, g.ID, groupbuy.Reminder1Day, now)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := reminders.Claim(ctx, g.ID, groupbuy.Reminder1Day, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, second)
}
