package main

import (
	"context"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"storeapi/internal/database"
	"storeapi/internal/domain"
	"storeapi/internal/repository"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "storeapi.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := repository.Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM users")

	users := repository.NewUserRepository(db)
	ctx := context.Background()

	adminHash, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	admin := domain.User{
		Email:        "admin@storeapi.local",
		PasswordHash: string(adminHash),
		Role:         domain.RoleAdmin,
		Name:         "Admin",
		IsActive:     true,
	}
	if err := users.Create(ctx, &admin); err != nil {
		log.Fatal("Admin create failed:", err)
	}
	log.Println("Admin created: admin@storeapi.local / admin123")

	demoHash, _ := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.DefaultCost)
	demo := domain.User{
		Email:        "demo@storeapi.local",
		PasswordHash: string(demoHash),
		Role:         domain.RoleUser,
		Name:         "Demo User",
		IsActive:     true,
	}
	if err := users.Create(ctx, &demo); err != nil {
		log.Fatal("Demo user create failed:", err)
	}
	log.Println("Demo user created: demo@storeapi.local / demo1234")

	log.Println("Seed complete")
}
