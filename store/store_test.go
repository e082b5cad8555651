package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wellmom/chat-service/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Provider{},
		&models.Recipient{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	))
	return db
}

type testPair struct {
	recipientUser models.User
	providerUser  models.User
	recipient     models.Recipient
	provider      models.Provider
}

func seedPair(t *testing.T, db *gorm.DB) testPair {
	t.Helper()

	providerUser := models.User{FullName: "Sari Wulandari", Phone: "+62811" + uuidSuffix(), PasswordHash: "x", Role: models.RoleProvider, IsActive: true}
	recipientUser := models.User{FullName: "Dewi Lestari", Phone: "+62812" + uuidSuffix(), PasswordHash: "x", Role: models.RoleRecipient, IsActive: true}
	require.NoError(t, db.Create(&providerUser).Error)
	require.NoError(t, db.Create(&recipientUser).Error)

	provider := models.Provider{UserID: providerUser.ID, FullName: providerUser.FullName, JobTitle: "Community Midwife", IsActive: true}
	require.NoError(t, db.Create(&provider).Error)

	recipient := models.Recipient{UserID: recipientUser.ID, ProviderID: &provider.ID, FullName: recipientUser.FullName, IsActive: true}
	require.NoError(t, db.Create(&recipient).Error)

	return testPair{
		recipientUser: recipientUser,
		providerUser:  providerUser,
		recipient:     recipient,
		provider:      provider,
	}
}

func uuidSuffix() string {
	return uuid.NewString()[:8]
}
