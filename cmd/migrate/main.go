package main

import (
	"log"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pricepulse/pricepulse/configs"
)

func main() {
	cfg := configs.AppLoad()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Goose: failed to set dialect: %v", err)
	}

	log.Println("Running database migrations...")
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		log.Fatalf("Goose migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")
}
