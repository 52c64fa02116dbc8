// Migration entry point. Run once per deploy, before the server.
package main

import (
	"fmt"

	"stageflow/config"
	"stageflow/dao/model"

	"github.com/go-gormigrate/gormigrate/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectPostgres() *gorm.DB {
	cfg := config.GetConfig()
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Postgres.Host, cfg.Postgres.User, cfg.Postgres.Password,
		cfg.Postgres.DBName, cfg.Postgres.Port, cfg.Postgres.SSLMode, cfg.Postgres.TimeZone)
	db, err := gorm.Open(postgres.Open(dsn))
	if err != nil {
		panic(fmt.Errorf("connect to postgres: %w", err))
	}
	return db
}

func main() {
	db := ConnectPostgres()

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			// add options column to import logs
			ID: "2026061001",
			Migrate: func(tx *gorm.DB) error {
				// it's a good practice to copy the struct inside the function,
				// so side effects are prevented if the original struct changes during the time
				type ImportLog struct {
					Options []byte `gorm:"type:jsonb"`
				}
				return tx.Migrator().AddColumn(&ImportLog{}, "Options")
			},
			Rollback: func(tx *gorm.DB) error {
				type ImportLog struct {
					Options []byte `gorm:"type:jsonb"`
				}
				return tx.Migrator().DropColumn(&ImportLog{}, "Options")
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		err := tx.AutoMigrate(
			&model.User{},
			&model.Area{},
			&model.AreaFlow{},
			&model.FieldMapping{},
			&model.StagingProject{},
			&model.Project{},
			&model.Transfer{},
			&model.ImportLog{},
		)
		if err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		password := string(hash)
		admin := model.User{
			Name:     "admin",
			Nickname: "Administrator",
			Password: &password,
			Role:     model.RoleAdmin,
		}
		if res := tx.Create(&admin); res.Error != nil {
			return res.Error
		}

		intake := model.Area{Name: "Intake", Code: "INT", Color: "#4f86c6"}
		if res := tx.Create(&intake); res.Error != nil {
			return res.Error
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		panic(fmt.Errorf("could not migrate: %w", err))
	}
}
