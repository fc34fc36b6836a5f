// Package config loads engine and database configuration from config.yaml
// with environment variable overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/crmigrate/crmigrate/internal/db"
)

// EngineConfig is the migration engine's recognized option surface.
type EngineConfig struct {
	BatchSize           int
	StopOnError         bool
	ValidateReferences  bool
	CheckDuplicates     bool
	CalculateQuality    bool
	MinQualityScore     int
	EnableRollback      bool
	DryRun              bool
	CheckpointFrequency int
	SampleSize          int
}

// DefaultEngineConfig returns the standard engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:           500,
		ValidateReferences:  true,
		CheckDuplicates:     true,
		CalculateQuality:    true,
		EnableRollback:      true,
		CheckpointFrequency: 1000,
		SampleSize:          100,
	}
}

// Config is the full configuration loaded at startup.
type Config struct {
	Database db.Config
	Engine   EngineConfig
}

// Load reads config.yaml from the given directory, falling back to defaults
// plus environment overrides (CRM_DATABASE_HOST, CRM_ENGINE_BATCHSIZE, ...).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Engine:   DefaultEngineConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CRM")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("engine.batch_size") {
		cfg.Engine.BatchSize = v.GetInt("engine.batch_size")
	}
	if v.IsSet("engine.stop_on_error") {
		cfg.Engine.StopOnError = v.GetBool("engine.stop_on_error")
	}
	if v.IsSet("engine.validate_references") {
		cfg.Engine.ValidateReferences = v.GetBool("engine.validate_references")
	}
	if v.IsSet("engine.check_duplicates") {
		cfg.Engine.CheckDuplicates = v.GetBool("engine.check_duplicates")
	}
	if v.IsSet("engine.calculate_quality") {
		cfg.Engine.CalculateQuality = v.GetBool("engine.calculate_quality")
	}
	if v.IsSet("engine.min_quality_score") {
		cfg.Engine.MinQualityScore = v.GetInt("engine.min_quality_score")
	}
	if v.IsSet("engine.enable_rollback") {
		cfg.Engine.EnableRollback = v.GetBool("engine.enable_rollback")
	}
	if v.IsSet("engine.dry_run") {
		cfg.Engine.DryRun = v.GetBool("engine.dry_run")
	}
	if v.IsSet("engine.checkpoint_frequency") {
		cfg.Engine.CheckpointFrequency = v.GetInt("engine.checkpoint_frequency")
	}
	if v.IsSet("engine.sample_size") {
		cfg.Engine.SampleSize = v.GetInt("engine.sample_size")
	}

	return cfg, nil
}
