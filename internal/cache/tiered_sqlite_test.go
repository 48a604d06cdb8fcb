package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/revittco/fetchgate/internal/secrets"
	"github.com/revittco/fetchgate/internal/store/sqlite"
)

func newSQLiteStore(t *testing.T, dir string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), dir+"/cache.db")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestValueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db := newSQLiteStore(t, dir)
	c := New[float64](db, Options{})
	if err := c.Set(ctx, "price:AAA", 101.5, EntryOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.Close()
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	// A fresh process: empty memory tier, same durable tier.
	db2 := newSQLiteStore(t, dir)
	defer db2.Close()
	c2 := New[float64](db2, Options{})
	defer c2.Close()

	v, ok := c2.Get(ctx, "price:AAA")
	if !ok || v != 101.5 {
		t.Fatalf("Get after restart = %v, %v; want 101.5, true", v, ok)
	}
	if c2.Len() != 1 {
		t.Fatalf("len = %d, want 1 (promoted)", c2.Len())
	}
}

func TestSealedValuesAtRest(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	enc := secrets.NewAgeEncryptor(identity)

	db := newSQLiteStore(t, dir)
	defer db.Close()
	c := New[string](db, Options{Sealer: enc})
	defer c.Close()

	secret := "market-moving-payload"
	if err := c.Set(ctx, "k", secret, EntryOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// On disk the value must be ciphertext.
	rec, err := db.Get(ctx, "k")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if bytes.Contains(rec.Value, []byte(secret)) {
		t.Fatal("durable record stores plaintext")
	}

	// And it round-trips through a promotion.
	c2 := New[string](db, Options{Sealer: enc})
	defer c2.Close()
	v, ok := c2.Get(ctx, "k")
	if !ok || v != secret {
		t.Fatalf("Get = %q, %v; want %q, true", v, ok, secret)
	}
}

func TestUnsealableRecordIsMiss(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	id1, _ := age.GenerateX25519Identity()
	id2, _ := age.GenerateX25519Identity()

	db := newSQLiteStore(t, dir)
	defer db.Close()

	writer := New[string](db, Options{Sealer: secrets.NewAgeEncryptor(id1)})
	defer writer.Close()
	if err := writer.Set(ctx, "k", "v", EntryOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A reader with the wrong key treats the record as absent rather
	// than failing the lookup.
	reader := New[string](db, Options{Sealer: secrets.NewAgeEncryptor(id2)})
	defer reader.Close()
	if _, ok := reader.Get(ctx, "k"); ok {
		t.Fatal("unsealable record must be a miss")
	}
}
