package config

// MinioConfig is used when STORAGE_BACKEND=minio, e.g. for local runs.
type MinioConfig struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	UseSSL    bool
	Region    string
}

// StorageConfig selects the object-store backend.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
}

func getStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		Backend: getEnv("s3", "STORAGE_BACKEND"),
		Minio: MinioConfig{
			AccessKey: getEnv("", "MINIO_ACCESS_KEY"),
			SecretKey: getEnv("", "MINIO_SECRET_KEY"),
			Endpoint:  getEnv("", "MINIO_ENDPOINT"),
			UseSSL:    getEnv("false", "MINIO_USE_SSL") == "true",
			Region:    getEnv("", "MINIO_REGION"),
		},
	}
	switch cfg.Backend {
	case "s3":
	case "minio":
		r := &requireEnv{}
		r.get("MINIO_ENDPOINT")
		r.get("MINIO_ACCESS_KEY")
		r.get("MINIO_SECRET_KEY")
		if err := r.err(); err != nil {
			return StorageConfig{}, err
		}
	default:
		return StorageConfig{}, invalid("STORAGE_BACKEND", errUnsupported(cfg.Backend))
	}
	return cfg, nil
}
