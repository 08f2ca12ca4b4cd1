//go:build integration

package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kkkkikiki/contest/internal/codegen"
	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/model"
)

var (
	pgDB        *database.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain starts PostgreSQL, or uses TEST_DB_* when TEST_DB_HOST is set
func TestMain(m *testing.M) {
	ctx := context.Background()

	var dsn string
	var err error

	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, envOr("TEST_DB_PORT", "5432"), envOr("TEST_DB_USER", "postgres"),
			envOr("TEST_DB_PASSWORD", "postgres"), envOr("TEST_DB_NAME", "contest_test"))
		fmt.Printf("Using external database: %s\n", host)
	} else {
		pgContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("contest_test"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			_ = pgContainer.Terminate(ctx)
			os.Exit(1)
		}
	}

	pgDB, err = database.Open(ctx, database.Postgres, dsn)
	if err != nil {
		fmt.Printf("Failed to open PostgreSQL: %v\n", err)
		if pgContainer != nil {
			_ = pgContainer.Terminate(ctx)
		}
		os.Exit(1)
	}
	pgDB.SQL.SetMaxOpenConns(32)

	code := m.Run()

	_ = pgDB.Close()
	if pgContainer != nil {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
		}
	}
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgres_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	contests := NewContestService(pgDB, codegen.New("integration"))
	engine, publisher := newTestEngine(t, pgDB, nil)

	in := validInput()
	in.Name = fmt.Sprintf("oversell-%d", time.Now().UnixNano())
	in.Capacity = 20
	contest, err := contests.CreateContest(ctx, in)
	require.NoError(t, err)

	const students = 300
	var wg sync.WaitGroup
	var mu sync.Mutex
	holders := map[string]string{}
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every student sends twice to exercise replays under contention
			email := fmt.Sprintf("pg%03d@example.edu", i%(students/2))
			outcome, err := engine.ProcessVerification(ctx, contest.ID, student(email), time.Now())
			if !assert.NoError(t, err) {
				return
			}
			if outcome.Won {
				mu.Lock()
				defer mu.Unlock()
				if prev, ok := holders[email]; ok {
					assert.Equal(t, prev, outcome.Code)
				}
				holders[email] = outcome.Code
			}
		}(i)
	}
	wg.Wait()

	details, err := contests.GetContest(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, details.Won)
	assert.Equal(t, students/2-20, details.Lost)
	assert.Len(t, details.IssuedCodes, 20)
	assert.Zero(t, details.Remaining)
	assert.Len(t, holders, 20)
	assert.Equal(t, students/2, publisher.count())
}

func TestPostgres_EndContestLocksRow(t *testing.T) {
	ctx := context.Background()
	contests := NewContestService(pgDB, codegen.New("integration"))

	in := validInput()
	in.Name = fmt.Sprintf("end-%d", time.Now().UnixNano())
	contest, err := contests.CreateContest(ctx, in)
	require.NoError(t, err)

	ended, err := contests.EndContest(ctx, contest.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ended.EndAt.Before(contest.EndAt))

	_, err = contests.EndContest(ctx, contest.ID, contest.EndAt)
	assert.ErrorIs(t, err, model.ErrInvalidContest)
}
