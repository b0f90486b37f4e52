package services

import (
	"testing"
	"time"

	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB spins up an isolated in-memory sqlite with the production
// schema. Single connection, because each :memory: connection is its
// own database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Member{},
		&models.ReferralRelation{},
		&models.Transaction{},
		&models.ProcessedEvent{},
		&models.Withdrawal{},
	))
	return db
}

func seedMember(t *testing.T, db *gorm.DB, username string, class models.UserClass) *models.Member {
	t.Helper()
	m := &models.Member{
		ID:           uuid.NewString(),
		Username:     username,
		ReferralCode: "REF" + username,
		Class:        class,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// seedActiveChildren gives parent n direct referrals that already
// completed a monetizable event.
func seedActiveChildren(t *testing.T, db *gorm.DB, parent *models.Member, n int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		child := seedMember(t, db, parent.Username+"-child-"+uuid.NewString()[:8], models.UserClassPlayer)
		require.NoError(t, db.Model(&models.Member{}).Where("id = ?", child.ID).
			Updates(map[string]any{"referrer_id": parent.ID, "activated_at": &now}).Error)
	}
}
