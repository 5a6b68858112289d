package config

type StorageConfig interface {
	GetDatabaseURL() string
	GetAutoMigrate() bool
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDatabaseURL returns the Postgres DSN. Empty selects the in-memory store.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

func (Storage) GetAutoMigrate() bool {
	return getBool("AUTO_MIGRATE", false)
}
