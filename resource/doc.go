// Package resource provides the handle table through which an embedding
// script engine references runtime objects (streams, readers, writers,
// signals, responses) without holding Go pointers.
//
// Handles are dense uint32 values backed by a slab with a free list, so a
// busy script reuses slots instead of growing the table. Handle 0 is
// reserved and always invalid. Values that implement Dropper are cleaned up
// when removed or when the table closes.
package resource
