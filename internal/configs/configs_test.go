package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv_DevelopmentDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0, cfg.PowDifficulty)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, defaultDatabaseDSN, cfg.DatabaseDSN)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.NotEqual(t, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
	assert.Empty(t, cfg.FrontendURLs)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, defaultKafkaTopic, cfg.KafkaTopic)
}

func TestFromEnv_Production(t *testing.T) {
	base := map[string]string{
		"ENVIRONMENT":          "production",
		"ACCESS_TOKEN_SECRET":  "a-secret",
		"REFRESH_TOKEN_SECRET": "r-secret",
		"DATABASE_URL":         "postgres://db/duochat",
		"FRONTEND_URLS":        " https://a.example.com, ,https://b.example.com ",
		"KAFKA_BROKERS":        "k1:9092,k2:9092",
		"ACCESS_TOKEN_TTL":     "15m",
	}

	cfg, err := FromEnv(envOf(base))
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.FrontendURLs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non numeric port", map[string]string{"PORT": "http"}},
		{"privileged port", map[string]string{"PORT": "80"}},
		{"negative difficulty", map[string]string{"POW_DIFFICULTY": "-1"}},
		{"bad ttl", map[string]string{"ACCESS_TOKEN_TTL": "soon"}},
		{"zero ttl", map[string]string{"REFRESH_TOKEN_TTL": "0s"}},
		{"same secrets", map[string]string{"ACCESS_TOKEN_SECRET": "x", "REFRESH_TOKEN_SECRET": "x"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"partial s3", map[string]string{"S3_BUCKET_NAME": "avatars"}},
		{"production without secrets", map[string]string{"ENVIRONMENT": "production", "DATABASE_URL": "postgres://db"}},
		{"production without database", map[string]string{
			"ENVIRONMENT":          "production",
			"ACCESS_TOKEN_SECRET":  "a",
			"REFRESH_TOKEN_SECRET": "b",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_MemoryDriverNeedsNoDatabase(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"ENVIRONMENT":          "production",
		"ACCESS_TOKEN_SECRET":  "a",
		"REFRESH_TOKEN_SECRET": "b",
		"STORE_DRIVER":         "memory",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DatabaseDSN)
}
