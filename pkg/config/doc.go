// Package config populates configuration structs from environment variables.
//
// Every package in this module exposes a Config struct annotated with
// github.com/caarlos0/env tags. Load fills such a struct, optionally after
// reading one or more dotenv files with github.com/joho/godotenv:
//
//	var cfg auth.Config
//	if err := config.Load(&cfg, config.WithEnvFiles(".env")); err != nil {
//	    return err
//	}
//
// Missing dotenv files are not an error; malformed ones are. Variables
// already present in the process environment win over dotenv values.
package config
