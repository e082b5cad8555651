package database

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	config "github.com/wellmom/chat-service/configs"
	"github.com/wellmom/chat-service/models"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Provider{},
		&models.Recipient{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// SeedDemo provisions one recipient/provider pair so the chat surface can be
// exercised on a fresh database. Profiles are normally created by the
// care-center service.
func SeedDemo() {
	phone := config.Config("DEMO_RECIPIENT_PHONE")
	if phone == "" {
		return
	}

	var count int64
	if err := DB.Model(&models.User{}).Where("phone = ?", phone).Count(&count).Error; err != nil {
		log.Fatalf("🔥 Failed to check for demo users: %v", err)
	}
	if count > 0 {
		log.Println("Demo users already exist.")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(config.Config("DEMO_PASSWORD")), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("🔥 Failed to hash demo password: %v", err)
	}

	providerUser := models.User{
		FullName:     "Sari Wulandari",
		Phone:        config.Config("DEMO_PROVIDER_PHONE"),
		PasswordHash: string(hashed),
		Role:         models.RoleProvider,
		IsActive:     true,
	}
	recipientUser := models.User{
		FullName:     "Dewi Lestari",
		Phone:        phone,
		PasswordHash: string(hashed),
		Role:         models.RoleRecipient,
		IsActive:     true,
	}

	err = DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&providerUser).Error; err != nil {
			return err
		}
		if err := tx.Create(&recipientUser).Error; err != nil {
			return err
		}
		provider := models.Provider{
			UserID:   providerUser.ID,
			FullName: providerUser.FullName,
			JobTitle: "Community Midwife",
			IsActive: true,
		}
		if err := tx.Create(&provider).Error; err != nil {
			return err
		}
		recipient := models.Recipient{
			UserID:     recipientUser.ID,
			ProviderID: &provider.ID,
			FullName:   recipientUser.FullName,
			IsActive:   true,
		}
		return tx.Create(&recipient).Error
	})
	if err != nil {
		log.Fatalf("🔥 Failed to seed demo users: %v", err)
	}

	log.Println("✅ Demo recipient/provider pair seeded successfully")
}
