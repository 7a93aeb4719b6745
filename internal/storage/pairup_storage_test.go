package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var mappingColumns = []string{"user_object_id", "team_id", "is_paused", "updated_on"}

func newPairUpStorage(t *testing.T) (*PairUpStorage, sqlmock.Sqlmock) {
	t.Helper()
	pg, mock, log := newMockDB(t)
	st, err := NewPairUpStorage(pg, log)
	if err != nil {
		t.Fatalf("NewPairUpStorage: %v", err)
	}
	return st, mock
}

func TestPairUpStorage_InsertMapping(t *testing.T) {
	st, mock := newPairUpStorage(t)
	now := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("insert into team_user_pairup_mappings")).
		WithArgs("u1", "team1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("on conflict (user_object_id, team_id) do nothing")).
		WithArgs("u1", "team1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := st.InsertMapping(context.Background(), "u1", "team1", now)
	if err != nil {
		t.Fatalf("InsertMapping returned err: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report inserted")
	}

	inserted, err = st.InsertMapping(context.Background(), "u1", "team1", now)
	if err != nil {
		t.Fatalf("InsertMapping returned err: %v", err)
	}
	if inserted {
		t.Fatalf("expected existing row to be kept")
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_InsertMapping_DBError(t *testing.T) {
	st, mock := newPairUpStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("insert into team_user_pairup_mappings")).
		WillReturnError(errors.New("db error"))

	if _, err := st.InsertMapping(context.Background(), "u1", "team1", time.Now()); err == nil {
		t.Fatalf("expected error, got nil")
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_DeleteMapping(t *testing.T) {
	st, mock := newPairUpStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("delete from team_user_pairup_mappings where user_object_id = $1 and team_id = $2")).
		WithArgs("u1", "team1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.DeleteMapping(context.Background(), "u1", "team1"); err != nil {
		t.Fatalf("DeleteMapping returned err: %v", err)
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_GetActiveTeamMappings(t *testing.T) {
	st, mock := newPairUpStorage(t)
	now := time.Now()
	rows := sqlmock.NewRows(mappingColumns).
		AddRow("u1", "team1", false, now).
		AddRow("u3", "team1", false, now)
	mock.ExpectQuery(regexp.QuoteMeta("and not is_paused")).
		WithArgs("team1").
		WillReturnRows(rows)

	mappings, err := st.GetActiveTeamMappings(context.Background(), "team1")
	if err != nil {
		t.Fatalf("GetActiveTeamMappings returned err: %v", err)
	}
	if len(mappings) != 2 || mappings[0].UserObjectID != "u1" || mappings[1].UserObjectID != "u3" {
		t.Fatalf("unexpected mappings: %#v", mappings)
	}
	for _, m := range mappings {
		if m.IsPaused {
			t.Fatalf("paused mapping returned: %#v", m)
		}
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_GetUserMappings_ScanError(t *testing.T) {
	st, mock := newPairUpStorage(t)
	rows := sqlmock.NewRows([]string{"user_object_id"}).AddRow("u1")
	mock.ExpectQuery(regexp.QuoteMeta("where user_object_id = $1")).
		WithArgs("u1").
		WillReturnRows(rows)

	if _, err := st.GetUserMappings(context.Background(), "u1"); err == nil {
		t.Fatalf("expected scan error, got nil")
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_SetPaused(t *testing.T) {
	st, mock := newPairUpStorage(t)
	now := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("update team_user_pairup_mappings set is_paused = $1")).
		WithArgs(true, now, "u1", "team1").
		WillReturnRows(sqlmock.NewRows(mappingColumns).AddRow("u1", "team1", true, now))

	m, err := st.SetPaused(context.Background(), "u1", "team1", true, now)
	if err != nil {
		t.Fatalf("SetPaused returned err: %v", err)
	}
	if !m.IsPaused || m.TeamID != "team1" {
		t.Fatalf("unexpected mapping: %#v", m)
	}
	verifyExpectations(t, mock)
}

func TestPairUpStorage_SetPaused_NotFound(t *testing.T) {
	st, mock := newPairUpStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("update team_user_pairup_mappings")).
		WillReturnError(sql.ErrNoRows)

	_, err := st.SetPaused(context.Background(), "u1", "team1", true, time.Now())
	if !errors.Is(err, ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
	verifyExpectations(t, mock)
}
