// Package testutil содержит общие помощники для тестов: базу sqlite с миграциями и поддельные хранилища.
package testutil

import (
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"datasethub/internal/migrations"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewDB создает файл sqlite во временном каталоге теста и применяет миграции.
// Одно соединение: sqlite не допускает параллельных писателей.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "datasethub.db")
	err := migrations.Run("sqlite://"+path, migrations.Options{Attempts: 1})
	qt.Assert(t, err, qt.IsNil)

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	qt.Assert(t, err, qt.IsNil)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
