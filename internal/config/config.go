package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env    string
	Port   int
	DBURL  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	RunnerID         string
	ClusterTransport string // socket|http|websocket|auto
	ClusterHealth    string // k8s|noop|auto
	SnowflakeNode    int64

	DlqCheckInterval time.Duration
	DlqMaxRetries    int

	PurgeCompletedTTLDays int
	PurgeFailedTTLDays    int
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:   env,
		Port:  port,
		DBURL: dbURL,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 30),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		RunnerID:         getEnv("RUNNER_ID", hostnameOrFallback()),
		ClusterTransport: getEnv("CLUSTER_TRANSPORT", "auto"),
		ClusterHealth:    getEnv("CLUSTER_HEALTH_MODE", "auto"),
		SnowflakeNode:    int64(getEnvInt("SNOWFLAKE_NODE", 1)),

		DlqCheckInterval: time.Duration(getEnvInt("JOB_DLQ_CHECK_INTERVAL_MS", 300000)) * time.Millisecond,
		DlqMaxRetries:    getEnvInt("JOB_DLQ_MAX_RETRIES", 3),

		PurgeCompletedTTLDays: getEnvInt("JOB_PURGE_COMPLETED_TTL_DAYS", 7),
		PurgeFailedTTLDays:    getEnvInt("JOB_PURGE_FAILED_TTL_DAYS", 30),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "jobmesh")
	pass := getEnv("DB_PASSWORD", "jobmesh")
	name := getEnv("DB_NAME", "jobmesh")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "runner-local"
	}
	return h
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
		}

		return num
	}
	return fallback
}
