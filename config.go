package bufmgr

// Default configuration values.
const (
	// DefaultAcquireThreshold is the fraction of the buffer an update
	// must cover, while the buffer is in use by the GPU, before the
	// manager swaps in a fresh handle instead of staging the update.
	DefaultAcquireThreshold = 0.5

	// DefaultMaxCPUCopyBytes bounds the size of preserved-region copies
	// done on the CPU during acquire-and-update when the GPU is busy.
	DefaultMaxCPUCopyBytes = 256 * 1024

	// DefaultStagingBlockSize is the initial size of the shared staging
	// pool's blocks, sized to amortize many small updates.
	DefaultStagingBlockSize = 128 * 1024

	// sizeGranularity rounds buffer allocations up to a multiple of 4
	// bytes. Conversion compute passes read buffers in 4-byte chunks;
	// on some hardware a read straddling the end of an allocation
	// returns zero, so the trailing bytes must exist.
	sizeGranularity = 4
)

// Config carries the feature flags and tuning knobs for a Manager. The
// zero value is usable; New replaces zero fields with package defaults.
type Config struct {
	// ShadowBuffers enables CPU-side mirrors for buffers bound to
	// bindings with CPU-read-heavy access patterns (pixel unpack).
	ShadowBuffers bool

	// PreferCPUCopy forces the CPU copy path whenever the old handle is
	// host-visible and idle, and lowers the acquire-and-update
	// threshold to zero. Matches drivers where GPU copies cause
	// pipeline bubbles.
	PreferCPUCopy bool

	// AcquireThreshold overrides DefaultAcquireThreshold when > 0.
	AcquireThreshold float64

	// MaxCPUCopyBytes overrides DefaultMaxCPUCopyBytes when > 0.
	MaxCPUCopyBytes int

	// StagingBlockSize overrides DefaultStagingBlockSize when > 0.
	StagingBlockSize int
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.AcquireThreshold <= 0 || cfg.AcquireThreshold > 1 {
		cfg.AcquireThreshold = DefaultAcquireThreshold
	}
	if cfg.MaxCPUCopyBytes <= 0 {
		cfg.MaxCPUCopyBytes = DefaultMaxCPUCopyBytes
	}
	if cfg.StagingBlockSize <= 0 {
		cfg.StagingBlockSize = DefaultStagingBlockSize
	}
	return cfg
}
