// File: internal/device/config.go
package device

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

// EngineConfig holds the tunables for the container engine. Every knob has
// a working default so the engine runs with no config file present.
type EngineConfig struct {
	// FATCacheSectors is the capacity of the FAT sector cache.
	FATCacheSectors int `mapstructure:"fat_cache_sectors"`

	// FATPrefetchSectors is how many consecutive FAT sectors a cache miss
	// pulls in alongside the missed one.
	FATPrefetchSectors int `mapstructure:"fat_prefetch_sectors"`

	// XTSWorkers is the number of goroutines decrypting sector batches.
	XTSWorkers int `mapstructure:"xts_workers"`

	// ParallelThresholdSectors is the batch size below which decryption
	// stays on the calling goroutine.
	ParallelThresholdSectors int `mapstructure:"parallel_threshold_sectors"`

	// ReadRunClusters caps how many contiguous clusters a whole-file read
	// fetches per device operation.
	ReadRunClusters int `mapstructure:"read_run_clusters"`

	// RangedRunClusters caps contiguous runs for ranged reads.
	RangedRunClusters int `mapstructure:"ranged_run_clusters"`

	// StreamBatchClusters caps contiguous runs while streaming to a sink
	// or from a source.
	StreamBatchClusters int `mapstructure:"stream_batch_clusters"`
}

func defaultXTSWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 2 {
		n = 2
	}
	return n
}

// LoadEngineConfig loads engine configuration using Viper.
func LoadEngineConfig() (*EngineConfig, error) {
	v := viper.New()
	v.SetConfigName("veracrypt-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.go-veracrypt")
	v.AddConfigPath("/etc/go-veracrypt")

	v.SetDefault("fat_cache_sectors", 256)
	v.SetDefault("fat_prefetch_sectors", 32)
	v.SetDefault("xts_workers", defaultXTSWorkers())
	v.SetDefault("parallel_threshold_sectors", 16)
	v.SetDefault("read_run_clusters", 256)
	v.SetDefault("ranged_run_clusters", 64)
	v.SetDefault("stream_batch_clusters", 64)

	v.SetEnvPrefix("VERACRYPT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config EngineConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Sanitize()

	return &config, nil
}

// DefaultEngineConfig returns the built-in defaults without consulting any
// config file or environment.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		FATCacheSectors:          256,
		FATPrefetchSectors:       32,
		XTSWorkers:               defaultXTSWorkers(),
		ParallelThresholdSectors: 16,
		ReadRunClusters:          256,
		RangedRunClusters:        64,
		StreamBatchClusters:      64,
	}
}

// Sanitize clamps nonsensical values back to usable ones so a bad config
// file degrades performance instead of breaking the engine.
func (c *EngineConfig) Sanitize() {
	if c.FATCacheSectors < 1 {
		c.FATCacheSectors = 256
	}
	if c.FATPrefetchSectors < 1 {
		c.FATPrefetchSectors = 1
	}
	if c.FATPrefetchSectors > c.FATCacheSectors {
		c.FATPrefetchSectors = c.FATCacheSectors
	}
	if c.XTSWorkers < 1 {
		c.XTSWorkers = defaultXTSWorkers()
	}
	if c.ParallelThresholdSectors < 1 {
		c.ParallelThresholdSectors = 16
	}
	if c.ReadRunClusters < 1 {
		c.ReadRunClusters = 256
	}
	if c.RangedRunClusters < 1 {
		c.RangedRunClusters = 64
	}
	if c.StreamBatchClusters < 1 {
		c.StreamBatchClusters = 64
	}
}
