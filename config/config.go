// Package config loads the engine's handful of tunables: how many blocks
// the pool holds and how large each one is. It follows the flags-over-
// struct pattern used throughout the example pack's own config layers
// (viper binding pflag flags, mapstructure decoding into a plain struct),
// scaled down to the knobs this engine actually has.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/inodefs/inodefs/block"
)

// EnvPrefix is the prefix viper binds environment variables under, e.g.
// BLOCKFS_TOTAL_BLOCKS.
const EnvPrefix = "BLOCKFS"

// DefaultTotalBlocks is used when neither a flag nor an environment
// variable supplies one.
const DefaultTotalBlocks = 4096

// Config holds the engine's tunables. BlockSize is accepted here only to
// fail fast with a clear error if it does not match the compiled-in
// block.Size constant; the engine has no notion of variable block sizes,
// so this field's job is validation, not parameterization.
type Config struct {
	TotalBlocks int `mapstructure:"total_blocks"`
	BlockSize   int `mapstructure:"block_size"`
}

// BindFlags registers this package's flags on fs, the way gcsfuse's and
// vorteil's command trees register their own config flags on a cobra
// command's flag set before binding them through viper.
func BindFlags(fs *pflag.FlagSet) {
	fs.Int("total-blocks", DefaultTotalBlocks, "number of blocks in the pool, including the reserved sentinel")
	fs.Int("block-size", block.Size, "bytes per block (must equal the compiled-in block size)")
}

// Load reads total-blocks/block-size from fs (already parsed) and the
// BLOCKFS_-prefixed environment, and validates the result.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	settings := map[string]interface{}{
		"total_blocks": v.Get("total-blocks"),
		"block_size":   v.Get("block-size"),
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the config is usable: a pool of at least one block
// beyond the sentinel, and a block size matching the engine's compiled-in
// constant (spec's Non-goals exclude variable block sizes, so a mismatch
// here is a configuration error, not something the engine adapts to).
func (c *Config) Validate() error {
	if c.TotalBlocks < 2 {
		return fmt.Errorf("config: total-blocks must be at least 2 (got %d)", c.TotalBlocks)
	}
	if c.BlockSize != block.Size {
		return fmt.Errorf("config: block-size must be %d, got %d", block.Size, c.BlockSize)
	}
	return nil
}
