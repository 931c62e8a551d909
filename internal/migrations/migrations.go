package migrations

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"datasethub/internal/logutils"
)

//go:embed sql/*.sql
var files embed.FS

// Options управляют повторными попытками подключения мигратора
type Options struct {
	Attempts int
	Delay    time.Duration
}

// Run применяет все миграции к базе по адресу databaseURL.
// Схема адреса выбирает драйвер: postgres:// в работе, sqlite:// в тестах.
// Драйвер должен быть зарегистрирован импортом в вызывающем пакете.
func Run(databaseURL string, opts Options) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	log := logutils.Component("migrations")

	var m *migrate.Migrate
	var err error

	for i := 0; i < opts.Attempts; i++ {
		m, err = newMigrate(databaseURL)
		if err == nil {
			break
		}
		log.Warnf("Failed to create migrate instance (attempt %d/%d): %v", i+1, opts.Attempts, err)
		time.Sleep(opts.Delay)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warnf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}
