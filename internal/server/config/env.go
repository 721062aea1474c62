package config

import "os"

// Environment variables consulted after flags. They carry key material and
// the database DSN so secrets stay out of argv.
const (
	EnvPrivateKey     = "ZAPPRO_JWT_PRIVATE_KEY"
	EnvPrivateKeyPath = "ZAPPRO_JWT_PRIVATE_KEY_PATH"
	EnvPublicKey      = "ZAPPRO_JWT_PUBLIC_KEY"
	EnvPublicKeyPath  = "ZAPPRO_JWT_PUBLIC_KEY_PATH"
	EnvDatabaseDSN    = "ZAPPRO_DATABASE_DSN"
)

func parseEnv(config *Config) {
	for name, dst := range map[string]*string{
		EnvPrivateKey:     &config.JWTPrivateKey,
		EnvPrivateKeyPath: &config.JWTPrivateKeyPath,
		EnvPublicKey:      &config.JWTPublicKey,
		EnvPublicKeyPath:  &config.JWTPublicKeyPath,
		EnvDatabaseDSN:    &config.DatabaseDSN,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}
