package staging

import (
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pkgstats/pkg/models"
)

const testDate = "2024-01-15"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testDate, logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesFile(t *testing.T) {
	s := newTestStore(t)
	if !strings.HasSuffix(s.Path(), "pkgstats_etl_20240115.db") {
		t.Fatalf("unexpected staging path: %s", s.Path())
	}
	_, err := os.Stat(s.Path())
	require.NoError(t, err)
}

func TestCloseRemovesFile(t *testing.T) {
	s, err := Open(t.TempDir(), testDate, logrus.New())
	require.NoError(t, err)
	path := s.Path()
	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	if !os.IsNotExist(err) {
		t.Fatalf("expected staging file to be removed, stat err: %v", err)
	}
}

func TestInsertBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	rows := []models.DownloadCount{
		{Date: testDate, Package: "requests", Category: models.CategoryWithoutMirrors, Downloads: 100},
		{Date: testDate, Package: "numpy", Category: models.CategoryWithoutMirrors, Downloads: 50},
	}

	stored, err := s.InsertBatch(models.TableOverall, rows)
	require.NoError(t, err)
	require.Equal(t, 2, stored)

	// Re-running the same batch must not duplicate rows
	stored, err = s.InsertBatch(models.TableOverall, rows)
	require.NoError(t, err)
	require.Equal(t, 2, stored)

	count, err := s.RowCount(models.TableOverall, testDate)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestInsertBatchDropsInvalidRows(t *testing.T) {
	s := newTestStore(t)
	longName := strings.Repeat("x", 200)
	rows := []models.DownloadCount{
		{Date: testDate, Package: longName, Category: "3", Downloads: 1},
		{Date: testDate, Package: "flask", Category: "", Downloads: 2},
		{Date: testDate, Package: "flask", Category: models.NullCategory, Downloads: 3},
	}

	stored, err := s.InsertBatch(models.TablePythonMajor, rows)
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	chunk, err := s.ReadChunk(models.TablePythonMajor, testDate, 10, 0)
	require.NoError(t, err)
	require.Len(t, chunk, 1)
	require.Equal(t, "flask", chunk[0].Package)
	require.Equal(t, models.NullCategory, chunk[0].Category)
}

func TestInsertBatchUnknownTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertBatch("recent; DROP TABLE overall", nil)
	require.Error(t, err)
}

func TestAggregateAll(t *testing.T) {
	s := newTestStore(t)
	rows := []models.DownloadCount{
		{Date: testDate, Package: "requests", Category: models.CategoryWithoutMirrors, Downloads: 100},
		{Date: testDate, Package: "numpy", Category: models.CategoryWithoutMirrors, Downloads: 50},
		{Date: testDate, Package: "requests", Category: models.CategoryWithMirrors, Downloads: 120},
	}
	_, err := s.InsertBatch(models.TableOverall, rows)
	require.NoError(t, err)

	require.NoError(t, s.BuildIndexes())
	require.NoError(t, s.AggregateAll(testDate))

	chunk, err := s.ReadChunk(models.TableOverall, testDate, 100, 0)
	require.NoError(t, err)

	totals := map[string]int64{}
	for _, row := range chunk {
		if row.Package == models.AllPackages {
			totals[row.Category] = row.Downloads
		}
	}
	require.Equal(t, int64(150), totals[models.CategoryWithoutMirrors])
	require.Equal(t, int64(120), totals[models.CategoryWithMirrors])

	// Re-aggregating must replace, not double, the __all__ rows
	require.NoError(t, s.AggregateAll(testDate))
	chunk, err = s.ReadChunk(models.TableOverall, testDate, 100, 0)
	require.NoError(t, err)
	var allRows int
	for _, row := range chunk {
		if row.Package == models.AllPackages {
			allRows++
		}
	}
	require.Equal(t, 2, allRows)
}

func TestReadChunkOrderingAndPaging(t *testing.T) {
	s := newTestStore(t)
	rows := []models.DownloadCount{
		{Date: testDate, Package: "zzz", Category: "3", Downloads: 1},
		{Date: testDate, Package: "aaa", Category: "3", Downloads: 2},
		{Date: testDate, Package: "mmm", Category: "2", Downloads: 3},
	}
	_, err := s.InsertBatch(models.TablePythonMajor, rows)
	require.NoError(t, err)

	first, err := s.ReadChunk(models.TablePythonMajor, testDate, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "aaa", first[0].Package)
	require.Equal(t, "mmm", first[1].Package)

	second, err := s.ReadChunk(models.TablePythonMajor, testDate, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "zzz", second[0].Package)
}

func TestRowCountOtherDate(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertBatch(models.TableSystem, []models.DownloadCount{
		{Date: testDate, Package: "requests", Category: "Linux", Downloads: 9},
	})
	require.NoError(t, err)

	count, err := s.RowCount(models.TableSystem, "2024-01-16")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
