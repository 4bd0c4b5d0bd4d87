package settings

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var settingsColumns = []string{
	"version", "business_start_hour", "business_end_hour", "active_weekdays",
	"dial_targets", "dial_domain", "dial_timeout_seconds", "timezone", "updated_by", "updated_at",
}

func TestPostgresStoreCurrent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewPostgresStore(mock)

	updated := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT version, business_start_hour").
		WillReturnRows(pgxmock.NewRows(settingsColumns).AddRow(
			4, 8, 18, []string{"Monday", "Saturday"}, []string{"desk", "+17195550000"},
			"pbx.example.com", 25, "America/Denver", "ops@example.com", updated,
		))

	got, err := store.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got.Version != 4 || got.BusinessStartHour != 8 || got.BusinessEndHour != 18 {
		t.Fatalf("unexpected settings %+v", got)
	}
	if len(got.DialTargets) != 2 || got.DialTargets[1] != "+17195550000" {
		t.Fatalf("unexpected targets %v", got.DialTargets)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreCurrentMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewPostgresStore(mock)

	mock.ExpectQuery("SELECT version, business_start_hour").WillReturnError(pgx.ErrNoRows)
	if _, err := store.Current(context.Background()); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPostgresStoreSaveSwapsActiveRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewPostgresStore(mock)

	in := Defaults()
	in.UpdatedBy = "ops@example.com"
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(saveLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("UPDATE phone_settings SET active = false").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO phone_settings").
		WithArgs(9, 17, in.ActiveWeekdays, in.DialTargets, DefaultDialDomain, 20, DefaultTimezone, "ops@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"version", "updated_at"}).AddRow(5, now))
	mock.ExpectCommit()

	saved, err := store.Save(context.Background(), in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 5 || !saved.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected saved %+v", saved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreSaveValidatesBeforeWriting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewPostgresStore(mock)

	bad := Defaults()
	bad.BusinessStartHour = 18
	if _, err := store.Save(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no queries: %v", err)
	}
}
