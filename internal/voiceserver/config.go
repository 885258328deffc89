package voiceserver

import "voudp/internal/mixer"

// Default configuration values (§6).
const (
	DefaultMaxUsers          = 1024
	DefaultCompressThreshold = float32(0.5)
	DefaultCompressRatio     = float32(0.8)
	DefaultTimeoutSecs       = uint64(5)
	DefaultThrottleMillis    = uint64(1)
	DefaultSampleRate        = uint32(48000)
	DefaultTickRate          = uint32(50)
	DefaultBindPort          = uint16(37549)
	MaxOpusBytes             = 400
)

// Config is the server's immutable configuration, set once at construction.
type Config struct {
	BindAddr        string // e.g. ":37549"
	Passphrase      string
	ConsolePassword string

	MaxUsers int

	ShouldNormalize   bool
	ShouldCompress    bool
	CompressThreshold float32
	CompressRatio     float32
	Clipping          mixer.ClipMode

	TimeoutSecs    uint64
	ThrottleMillis uint64

	SampleRate uint32
	TickRate   uint32

	// AuditPath is the sqlite database path for the audit sink. Empty
	// disables auditing entirely (not an error).
	AuditPath string
	// AdminAddr, when non-empty, starts the read-only admin HTTP surface
	// on this address (e.g. ":8090").
	AdminAddr string
}

// FrameSamples returns the per-channel sample count for one tick.
func (c Config) FrameSamples() int {
	return int(c.SampleRate / c.TickRate)
}

// TickPeriodMillis returns the tick period in milliseconds.
func (c Config) TickPeriodMillis() int64 {
	return 1000 / int64(c.TickRate)
}

// DefaultConfig returns a Config populated with the §6 defaults. Callers
// must still set Passphrase and BindAddr.
func DefaultConfig() Config {
	return Config{
		BindAddr:          ":37549",
		MaxUsers:          DefaultMaxUsers,
		ShouldNormalize:   true,
		ShouldCompress:    true,
		CompressThreshold: DefaultCompressThreshold,
		CompressRatio:     DefaultCompressRatio,
		Clipping:          mixer.ClipSoft,
		TimeoutSecs:       DefaultTimeoutSecs,
		ThrottleMillis:    DefaultThrottleMillis,
		SampleRate:        DefaultSampleRate,
		TickRate:          DefaultTickRate,
	}
}
