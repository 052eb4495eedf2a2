package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/galerija/internal/db"
	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
	"github.com/erazemk/galerija/internal/store"
)

// marketSetup is the marketplace a new database is created with.
type marketSetup struct {
	Prices  []model.Amount
	Royalty model.Amount
	Creator model.Identity
	BaseURI string
}

// initDatabase creates a new database, ensures the schema, creates the admin
// user and initializes the marketplace with the admin as administrator. The
// pool is funded with the sum of the prices. On failure the file is removed.
func initDatabase(path, adminUsername string, setup marketSetup) (*sql.DB, string, error) {
	funding, err := model.AddAmounts(setup.Prices...)
	if err != nil {
		return nil, "", fmt.Errorf("summing prices: %w", err)
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	ctx := context.Background()
	admin, err := store.CreateUser(ctx, database, adminUsername, string(hash), model.RoleAdmin)
	if err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	creator := setup.Creator
	if creator == "" {
		creator = admin.Identity()
	}
	_, err = store.InitializeLedger(ctx, database, ledger.Config{
		Administrator: admin.Identity(),
		Creator:       creator,
		RoyaltyRate:   setup.Royalty,
		BaseURI:       setup.BaseURI,
	}, setup.Prices, funding)
	if err != nil {
		return fail(fmt.Errorf("initializing marketplace: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string, items int) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Printf("Marketplace initialized with %d items.\n", items)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
