package config

// RedisConfig backs the job status tracker and the asynq enrichment queue.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func getRedisConfig() (RedisConfig, error) {
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	return RedisConfig{
		Addr:     getEnv("", "REDIS_ADDR"),
		Password: getEnv("", "REDIS_PASSWORD"),
		DB:       db,
	}, nil
}
