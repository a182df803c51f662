package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/config"
	"github.com/saeid-a/SigmaChatSync/internal/logger"
)

func main() {
	envErr := godotenv.Load()
	log := logger.New(config.NormalizeEnv(os.Getenv("APP_ENV")), os.Getenv("LOG_LEVEL"))
	if envErr != nil {
		log.Debug().Msg("no .env file found")
	}

	dbUrl := os.Getenv("DB_URL")
	if dbUrl == "" {
		log.Fatal().Msg("DB_URL environment variable is required")
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := run(cmd, dbUrl, log); err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}
}

func run(cmd string, dbUrl string, log zerolog.Logger) error {
	migrationsPath, err := findMigrations()
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+migrationsPath, dbUrl)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info().Msg("no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info().Str("command", cmd).Str("path", migrationsPath).Msg("migration successful")
	return nil
}

// findMigrations walks up from the working directory and the executable
// so the binary works both from the repo and from a deploy layout.
func findMigrations() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	candidates := []string{}
	current := cwd
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(current, "migrations"))
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
		)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("migrations directory not found")
}
