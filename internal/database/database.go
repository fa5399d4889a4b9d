package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// NewDB creates a new database connection for the database/sql query paths.
// An empty url falls back to DATABASE_URL from the environment or a .env
// file found in the working directory or any parent.
func NewDB(url string) (*sql.DB, error) {
	dbURL, err := resolveURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// NewPool creates a pgx connection pool for the conversation read paths.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	dbURL, err := resolveURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return pool, nil
}

func resolveURL(url string) (string, error) {
	if direct := strings.TrimSpace(url); direct != "" {
		return direct, nil
	}
	if direct := strings.TrimSpace(os.Getenv("DATABASE_URL")); direct != "" {
		return direct, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	envPath, err := findEnvFile(wd)
	if err != nil {
		return "", err
	}

	if err := godotenv.Load(envPath); err != nil {
		return "", fmt.Errorf("load %s: %w", envPath, err)
	}

	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		return value, nil
	}
	return "", errors.New("DATABASE_URL not found in environment or .env")
}

func findEnvFile(start string) (string, error) {
	dir := start
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf(".env not found starting from %s", start)
}
