// Package speech defines the text-to-speech provider boundary used by the
// narration worker. Implementations live under internal/platform.
package speech
