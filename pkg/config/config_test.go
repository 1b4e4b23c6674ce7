package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 4, cfg.Scheduler.InitialWeeks)
	assert.Equal(t, 12, cfg.Scheduler.HorizonWeeks)
	assert.Equal(t, "UTC", cfg.Scheduler.DefaultTimezone)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StoreTimeout)
	assert.Equal(t, 3, cfg.Retry.CriticalAttempts)
	assert.Equal(t, 2, cfg.Notifications.Workers)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SCHEDULER_HORIZON_WEEKS", 8)
	v.Set("SCHEDULER_INITIAL_WEEKS", 0)
	v.Set("AVAILABILITY_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, 8, cfg.Scheduler.HorizonWeeks)
	assert.Equal(t, 4, cfg.Scheduler.InitialWeeks)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.AvailabilityCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
