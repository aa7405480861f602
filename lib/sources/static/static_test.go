package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"propwatch-backend/lib/sources"

	"github.com/stretchr/testify/require"
)

func TestFixtureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	err := os.WriteFile(path, []byte(`[
		{
			"fields": {"folio": "A-1", "address": "1 First St"},
			"url": "https://records.example.gov/A-1"
		}
	]`), 0o644)
	require.NoError(t, err)

	source, err := sources.New("static", sources.Config{FixtureFile: path})
	require.NoError(t, err)

	records, err := source.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "A-1", records[0].Fields["folio"])
	require.Equal(t, "https://records.example.gov/A-1", records[0].URL)
}

func TestRequiresFixtureFile(t *testing.T) {
	_, err := sources.New("static", sources.Config{})
	require.Error(t, err)
}
