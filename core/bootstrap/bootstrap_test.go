package bootstrap

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/reservebot/core/config"
	coredatabase "github.com/m3rciful/reservebot/core/database"

	"github.com/jmoiron/sqlx"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSkipDatabaseRunsChecks(t *testing.T) {
	ran := 0
	res, err := Run(Options{
		Config:       &coreconfig.Config{},
		SkipDatabase: true,
		LoggerInit:   noLogger,
		Checks: []Check{
			{Name: "a", Run: func(context.Context) error { ran++; return nil }},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.DB != nil || ran != 1 {
		t.Fatalf("db = %v ran = %d", res.DB, ran)
	}
}

func TestRunFailingCheck(t *testing.T) {
	_, err := Run(Options{
		Config:       &coreconfig.Config{},
		SkipDatabase: true,
		LoggerInit:   noLogger,
		Checks: []Check{
			{Name: "redis", Run: func(context.Context) error { return errors.New("refused") }},
		},
	})
	if err == nil {
		t.Fatal("expected check failure")
	}
}

func TestRunConnectError(t *testing.T) {
	migrated := false
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			return nil, errors.New("no db")
		},
		Migrate: func(coredatabase.Config) error { migrated = true; return nil },
	})
	if err == nil || migrated {
		t.Fatalf("err = %v migrated = %v", err, migrated)
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(Options{}); err == nil {
		t.Fatal("expected error")
	}
}
