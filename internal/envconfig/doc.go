// Package envconfig reads process settings from the environment for the
// authcore binaries.
//
// Load reads optional .env files with godotenv and parses Settings with
// caarlos0/env. Unset variables keep the values of Defaults, which mirror
// authcore.DefaultConfig. Settings then derives the authcore.Config, the
// logger and the adapter configs.
package envconfig
