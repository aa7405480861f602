package monitor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"propwatch-backend/lib/historystore"
	"propwatch-backend/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) historystore.Store {
	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlite.Close()
	})
	_, err = sqlite.Exec(historystore.Schema())
	if err != nil {
		t.Fatal(err)
	}
	return historystore.NewStore(sqlite)
}

func saleRecord(id, address string, price int64, date string) PropertyRecord {
	parsed, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		panic(err)
	}
	return PropertyRecord{
		County:   "test_county",
		RecordID: id,
		Type:     RecordTypeSale,
		Address:  address,
		ZipCode:  "33139",
		Price:    &price,
		Date:     parsed,
	}
}

func TestDiffNewRecord(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	record := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")

	classified, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(record)}, now)
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationNew, classified[0].Classification)
	require.Equal(t, "2024-00123", classified[0].Key)

	entry, err := store.Get(ctx, "test_county", "2024-00123")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, now.Unix(), entry.FirstSeen.Unix())
	require.Equal(t, now.Unix(), entry.LastSeen.Unix())
	require.False(t, entry.Removed)
	require.Nil(t, entry.LastNotified)
}

func TestDiffUnchangedRecord(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	record := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	_, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(record)}, first)
	require.NoError(t, err)

	classified, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(record)}, second)
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationUnchanged, classified[0].Classification)

	// unchanged still advances last_seen, so the record doesn't look
	// removed next cycle
	entry, err := store.Get(ctx, "test_county", "2024-00123")
	require.NoError(t, err)
	require.Equal(t, first.Unix(), entry.FirstSeen.Unix())
	require.Equal(t, second.Unix(), entry.LastSeen.Unix())
}

func TestDiffUpdatedRecord(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	original := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(original)}, first)
	require.NoError(t, err)

	repriced := original
	price := int64(365000)
	repriced.Price = &price

	second := first.Add(time.Hour)
	classified, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(repriced)}, second)
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationUpdated, classified[0].Classification)
	require.Equal(t, Resolve(original).ContentHash, classified[0].PreviousHash)

	entry, err := store.Get(ctx, "test_county", "2024-00123")
	require.NoError(t, err)
	require.Equal(t, first.Unix(), entry.FirstSeen.Unix())
	require.Equal(t, second.Unix(), entry.LastSeen.Unix())
	require.Equal(t, Resolve(repriced).ContentHash, entry.ContentHash)
}

func TestDiffRemovedOnce(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	record := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(record)}, first)
	require.NoError(t, err)

	classified, err := Diff(ctx, store, "test_county", nil, first.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationRemoved, classified[0].Classification)
	// the removal event carries the last-known snapshot
	require.Equal(t, "123 Ocean Dr, Miami FL 33139", classified[0].Record.Address)

	// absent again: already flagged removed, reported nothing
	classified, err = Diff(ctx, store, "test_county", nil, first.Add(time.Hour*2))
	require.NoError(t, err)
	require.Len(t, classified, 0)

	entry, err := store.Get(ctx, "test_county", "2024-00123")
	require.NoError(t, err)
	require.True(t, entry.Removed)
}

func TestDiffDeterministicOrder(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := saleRecord("A-100", "1 First St", 100000, "2024-02-28")
	b := saleRecord("B-200", "2 Second St", 200000, "2024-02-28")
	c := saleRecord("C-300", "3 Third St", 300000, "2024-02-28")

	_, err := Diff(ctx, store, "test_county", []Fingerprint{Resolve(c)}, now)
	require.NoError(t, err)

	// c disappears while a and b arrive, in shuffled input order
	classified, err := Diff(ctx, store, "test_county",
		[]Fingerprint{Resolve(b), Resolve(a)}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, classified, 3)
	// present records ascending by key, then removals
	require.Equal(t, "A-100", classified[0].Key)
	require.Equal(t, "B-200", classified[1].Key)
	require.Equal(t, "C-300", classified[2].Key)
	require.Equal(t, ClassificationRemoved, classified[2].Classification)
}

func TestDiffDedupesRescrapedDuplicates(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	record := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")

	classified, err := Diff(ctx, store, "test_county",
		[]Fingerprint{Resolve(record), Resolve(record)}, now)
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationNew, classified[0].Classification)
}

func TestDiffDerivedKeyDrift(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	original := saleRecord("", "123 Ocean Drive, Miami FL 33139", 350000, "2024-02-28")
	fp := Resolve(original)
	require.True(t, fp.Derived)

	_, err := Diff(ctx, store, "test_county", []Fingerprint{fp}, now)
	require.NoError(t, err)

	// the county reformats the address; the derived key changes
	drifted := saleRecord("", "123 Ocean Dr, Miami FL 33139", 365000, "2024-02-28")
	driftedFp := Resolve(drifted)
	require.NotEqual(t, fp.Key, driftedFp.Key)

	classified, err := Diff(ctx, store, "test_county", []Fingerprint{driftedFp}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, classified, 1)
	// rematched as one Updated, not a New plus a Removed
	require.Equal(t, ClassificationUpdated, classified[0].Classification)
	require.Equal(t, fp.ContentHash, classified[0].PreviousHash)

	// the history row moved to the new key with first_seen intact
	entry, err := store.Get(ctx, "test_county", driftedFp.Key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, now.Unix(), entry.FirstSeen.Unix())

	old, err := store.Get(ctx, "test_county", fp.Key)
	require.NoError(t, err)
	require.Nil(t, old)
}

func TestDiffStoreIsolationPerCounty(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	record := saleRecord("2024-00123", "123 Ocean Dr, Miami FL 33139", 350000, "2024-02-28")

	_, err := Diff(ctx, store, "county_a", []Fingerprint{Resolve(record)}, now)
	require.NoError(t, err)

	// the same key in a different county is an independent record
	classified, err := Diff(ctx, store, "county_b", []Fingerprint{Resolve(record)}, now)
	require.NoError(t, err)
	require.Equal(t, ClassificationNew, classified[0].Classification)

	// county_b seeing nothing does not remove county_a's entry
	classified, err = Diff(ctx, store, "county_b", nil, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, classified, 1)
	require.Equal(t, ClassificationRemoved, classified[0].Classification)

	entry, err := store.Get(ctx, "county_a", "2024-00123")
	require.NoError(t, err)
	require.False(t, entry.Removed)
}
