package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erazemk/galerija/internal/db"
	"github.com/erazemk/galerija/internal/model"
	"github.com/erazemk/galerija/internal/store"
)

func TestInitDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	database, password, err := initDatabase(path, "Admin", marketSetup{
		Prices:  []model.Amount{model.Unit, 2 * model.Unit},
		Royalty: model.MustParseAmount("0.5"),
		Creator: "artist",
		BaseURI: "ipfs://collection/",
	})
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	database.Close()

	if len(password) != 16 {
		t.Errorf("expected 16 character password, got %d", len(password))
	}

	database, err = db.Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	l, err := store.OpenLedger(ctx, database)
	if err != nil || l == nil {
		t.Fatalf("OpenLedger: %v / %v", l, err)
	}
	if l.Administrator() != "Admin" || l.Creator() != "artist" || l.ItemCount() != 2 {
		t.Errorf("unexpected ledger config %+v", l.Config())
	}
	if l.Pool() != 3*model.Unit {
		t.Errorf("expected pool funded with 3, got %s", l.Pool())
	}

	user, err := store.GetUserByUsername(ctx, database, "Admin")
	if err != nil || user == nil || user.Role != model.RoleAdmin {
		t.Errorf("expected admin user, got %+v (%v)", user, err)
	}
}

func TestInitDatabaseCreatorDefaultsToAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	database, _, err := initDatabase(path, "curator", marketSetup{Prices: []model.Amount{model.Unit}})
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	info, err := store.GetMarketplace(context.Background(), database)
	if err != nil || info == nil {
		t.Fatalf("GetMarketplace: %v", err)
	}
	if info.Config.Creator != "curator" {
		t.Errorf("expected creator to default to admin, got %q", info.Config.Creator)
	}
}

func TestInitDatabaseRemovesFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	_, _, err := initDatabase(path, "Admin", marketSetup{Prices: []model.Amount{model.Unit, 0}})
	if err == nil {
		t.Fatal("expected error for zero price")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected database file to be removed, stat err = %v", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(24)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	b, _ := generatePassword(24)
	if len(a) != 24 || a == b {
		t.Errorf("expected distinct 24 character passwords, got %q and %q", a, b)
	}
}

func TestLevelRouter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(newLevelRouter(&stdout, &stderr)).With("component", "test")

	logger.Debug("hidden")
	logger.Info("informational")
	logger.Warn("warning")
	logger.Error("failure")

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug records should be dropped")
	}
	if !strings.Contains(stdout.String(), "informational") || !strings.Contains(stdout.String(), "warning") {
		t.Errorf("expected info and warn on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "failure") || !strings.Contains(stderr.String(), "failure") {
		t.Errorf("expected error only on stderr, got stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
	if !strings.Contains(stderr.String(), "component=test") {
		t.Errorf("expected attrs to carry over, got %q", stderr.String())
	}
}
