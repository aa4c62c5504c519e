package main

import "time"

type Config struct {
	Host           string        `env:"HOST,default=0.0.0.0"`
	Port           int           `env:"PORT,default=8080"`
	LogLevel       string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	SecretKey      string        `env:"SECRET_KEY,required=true"`
	LimitMessages  *int          `env:"LIMIT_MESSAGES"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT,default=5s"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`

	// Push fallback. Without credentials the relay runs with a log-only
	// notifier, which is the local development mode.
	FCMCredentialsPath string `env:"FCM_CREDENTIALS_PATH"`
	GroupOfflineNotify bool   `env:"GROUP_OFFLINE_NOTIFY,default=false"`
}
