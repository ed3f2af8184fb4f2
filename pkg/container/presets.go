package container

// Postgres returns a Builder for a throwaway PostgreSQL server. The database,
// user and password are all "test" and fsync is disabled.
func Postgres() Builder {
	return FromImage("postgres:latest").
		AddEnv("POSTGRES_DB", "test").
		AddEnv("POSTGRES_USER", "test").
		AddEnv("POSTGRES_PASSWORD", "test").
		AddExposedTCPPort(5432).
		WithCommand("postgres", "-c", "fsync=off").
		WaitForLogOnStartup(`.*database system is ready to accept connections.*\s`)
}

// Redis returns a Builder for a throwaway Redis server.
func Redis() Builder {
	return FromImage("redis:latest").
		AddExposedTCPPort(6379).
		WaitForLogOnStartup(`Ready to accept connections`)
}
