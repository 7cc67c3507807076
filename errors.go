package esmshard

import "fmt"

// FormatError indicates a shard file that cannot be trusted: bad magic,
// unsupported version, or a payload that does not match the header's claimed
// token count. Always fatal; a truncated shard from a crashed writer surfaces
// here on the next read.
type FormatError struct {
	Path   string
	Reason string
}

func (e FormatError) Error() string {
	return fmt.Sprintf("shard format error in %s: %s", e.Path, e.Reason)
}

// CapacityError indicates a shard whose token count exceeds the 31-bit limit
// of the header's int32 count field.
type CapacityError struct {
	Tokens int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("shard capacity exceeded: %d tokens >= 2^31", e.Tokens)
}

// ConfigError indicates a construction-time invariant violation, such as a
// batch size that does not divide evenly across consumers.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}
