package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"
)

// Drivers suportados.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrNotFound         = errors.New("storage: registro não encontrado")
	ErrStaleAsset       = errors.New("storage: status do ativo mudou desde a leitura")
	ErrDuplicateReceipt = errors.New("storage: recibo já registrado")
)

// Cada dialeto tem seu diretório de migrações. No PostgreSQL os valores
// decimais são NUMERIC; no SQLite são TEXT.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// DB representa a conexão com o banco de dados (PostgreSQL ou SQLite).
type DB struct {
	*sqlx.DB
}

// NewDB conecta-se ao banco e executa as migrações.
func NewDB(driver, dataSourceName string) (*DB, error) {
	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}
	if driver == DriverSQLite {
		// Uma única conexão: bancos em memória não são compartilhados entre conexões.
		db.SetMaxOpenConns(1)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	log.Info().Str("driver", driver).Msg("Conexão com o banco de dados estabelecida com sucesso.")

	if err := runMigrations(db.DB, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao executar migrações: %w", err)
	}

	return &DB{db}, nil
}

// runMigrations executa as migrações embutidas usando sql-migrate.
func runMigrations(db *sql.DB, driver string) error {
	migrations := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations/" + driver,
	}

	dialect := driver
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}

	n, err := migrate.Exec(db, dialect, migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Migrações aplicadas ao banco de dados.")
	} else {
		log.Debug().Msg("Nenhuma migração nova para aplicar.")
	}
	return nil
}

// numeric devolve expr como expressão comparável numericamente no dialeto.
func (d *DB) numeric(expr string) string {
	if d.DriverName() == DriverSQLite {
		return "CAST(" + expr + " AS REAL)"
	}
	return expr
}

// forUpdate trava as linhas lidas até o fim da transação. No SQLite a conexão
// única já serializa as escritas.
func (d *DB) forUpdate() string {
	if d.DriverName() == DriverSQLite {
		return ""
	}
	return " FOR UPDATE"
}

// inTx executa fn dentro de uma transação, com rollback em caso de erro.
func (d *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("falha ao desfazer transação")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", err)
	}
	return nil
}
