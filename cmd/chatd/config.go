package main

import "os"

type config struct {
	Addr        string
	PostgresDSN string
	RedisAddr   string
	JWTSecret   string
}

func loadConfig() config {
	cfg := config{
		Addr:        ":8080",
		RedisAddr:   "localhost:6379",
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	return cfg
}
