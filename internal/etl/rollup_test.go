package etl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func expectWindow(mock sqlmock.Sqlmock, period, boundary string) {
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recent WHERE category").
		WithArgs(period).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("INSERT INTO recent").
		WithArgs(period, boundary).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectCommit()
}

func TestUpdateRecentWindows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectWindow(mock, "day", "2024-01-15")
	expectWindow(mock, "week", "2024-01-08")
	expectWindow(mock, "month", "2023-12-16")

	rollup := NewRollup(db, logrus.New())
	require.NoError(t, rollup.UpdateRecent(context.Background(), "2024-01-15"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecentWindowFailureIsIndependent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Day window fails, week and month still run.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recent WHERE category").
		WithArgs("day").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()
	expectWindow(mock, "week", "2024-01-08")
	expectWindow(mock, "month", "2023-12-16")

	rollup := NewRollup(db, logrus.New())
	err = rollup.UpdateRecent(context.Background(), "2024-01-15")
	require.Error(t, err)
	if !strings.Contains(err.Error(), "day") {
		t.Fatalf("error should name the failed window: %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecentBadDate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rollup := NewRollup(db, logrus.New())
	require.Error(t, rollup.UpdateRecent(context.Background(), "not-a-date"))
}
