package crs

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	mu      sync.Mutex
	calls   int
	entries []Entry
	err     error
}

func (l *countingLoader) Load(context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.entries, l.err
}

var testEntries = []Entry{
	{AuthName: "EPSG", Code: "4326", Name: "WGS 84", Type: Geographic2D},
	{AuthName: "EPSG", Code: "3857", Name: "WGS 84 / Pseudo-Mercator", Type: Projected},
	{AuthName: "EPSG", Code: "32630", Name: "WGS 84 / UTM zone 30N", Type: Projected},
	{AuthName: "ESRI", Code: "54030", Name: "World_Robinson", Type: Projected},
}

func TestEntry_StringAndKey(t *testing.T) {
	e := testEntries[0]
	assert.Equal(t, "WGS 84 (EPSG:4326)", e.String())
	assert.Equal(t, "EPSG:4326", e.Key())
	assert.True(t, e.Geographic())
	assert.False(t, testEntries[1].Geographic())
}

func TestParseKey(t *testing.T) {
	auth, code, err := ParseKey(" epsg:32630 ")
	require.NoError(t, err)
	assert.Equal(t, "EPSG", auth)
	assert.Equal(t, "32630", code)

	for _, bad := range []string{"", "EPSG", "EPSG:", ":4326"} {
		_, _, err := ParseKey(bad)
		assert.True(t, errors.Is(err, ErrInvalidKey), bad)
	}
}

func TestCatalogue_LoadsOnce(t *testing.T) {
	src := &countingLoader{entries: testEntries}
	c := NewCatalogue(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.All(ctx)
			_, _ = c.Search(ctx, "utm", 0)
		}()
	}
	wg.Wait()
	_, err := c.Lookup(ctx, "EPSG", "4326")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
}

func TestCatalogue_RetriesAfterFailure(t *testing.T) {
	src := &countingLoader{err: errors.New("disk on fire")}
	c := NewCatalogue(src)
	_, err := c.All(context.Background())
	require.Error(t, err)

	src.err = nil
	src.entries = testEntries
	all, err := c.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 2, src.calls)
}

func TestCatalogue_Search(t *testing.T) {
	c := NewCatalogue(&countingLoader{entries: testEntries})
	ctx := context.Background()

	got, err := c.Search(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = c.Search(ctx, "wgs 84", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = c.Search(ctx, "UTM 30n", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "32630", got[0].Code)

	got, err = c.Search(ctx, "esri:54030", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "World_Robinson", got[0].Name)

	got, err = c.Search(ctx, "nowhere", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalogue_Lookup(t *testing.T) {
	c := NewCatalogue(&countingLoader{entries: testEntries})
	ctx := context.Background()

	e, err := c.Lookup(ctx, "epsg", "3857")
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / Pseudo-Mercator", e.Name)

	e, err = c.LookupKey(ctx, "ESRI:54030")
	require.NoError(t, err)
	assert.Equal(t, "ESRI", e.AuthName)

	_, err = c.Lookup(ctx, "EPSG", "1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.LookupKey(ctx, "garbage")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestOpenBundled_InMemory(t *testing.T) {
	db, err := OpenBundled("")
	require.NoError(t, err)
	defer db.Close()

	entries, err := db.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, len(bundledEntries()))

	c := NewCatalogue(db)
	e, err := c.Lookup(context.Background(), "EPSG", "32631")
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / UTM zone 31N", e.Name)
	assert.Equal(t, Projected, e.Type)

	e, err = c.Lookup(context.Background(), "EPSG", "900913")
	require.NoError(t, err)
	assert.True(t, e.Deprecated)
}

func TestOpenBundled_FileIsSeededOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crs.db")

	db, err := OpenBundled(path)
	require.NoError(t, err)
	first, err := db.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenBundled(path)
	require.NoError(t, err)
	defer db.Close()
	second, err := db.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
}

func TestOpenProjDB(t *testing.T) {
	_, err := OpenProjDB(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)

	// A minimal stand-in with the proj.db crs_view columns.
	path := filepath.Join(t.TempDir(), "proj.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE geodetic_crs (auth_name TEXT, code TEXT, name TEXT, type TEXT, deprecated BOOLEAN);
		CREATE TABLE projected_crs (auth_name TEXT, code TEXT, name TEXT, deprecated BOOLEAN);
		CREATE VIEW crs_view AS
			SELECT auth_name, code, name, type, deprecated FROM geodetic_crs
			UNION ALL
			SELECT auth_name, code, name, 'projected' AS type, deprecated FROM projected_crs;
		INSERT INTO geodetic_crs VALUES ('EPSG', '4326', 'WGS 84', 'geographic 2D', 0);
		INSERT INTO projected_crs VALUES ('EPSG', '25832', 'ETRS89 / UTM zone 32N', 0);
		INSERT INTO projected_crs VALUES ('IGNF', 'LAMB93', 'RGF93 Lambert 93', 0);
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := OpenProjDB(path)
	require.NoError(t, err)
	defer db.Close()
	entries, err := db.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{AuthName: "EPSG", Code: "4326", Name: "WGS 84", Type: Geographic2D}, entries[0])
	assert.Equal(t, "IGNF", entries[2].AuthName)
}

func TestAttachAdminRoutes(t *testing.T) {
	db, err := OpenBundled("")
	require.NoError(t, err)
	defer db.Close()

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	_, pattern := mux.Handler(httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil))
	assert.NotEmpty(t, pattern)
}
