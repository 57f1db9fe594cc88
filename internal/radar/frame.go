package radar

// ResolveFrame maps an animation frame number onto the timestamp list.
//
// Frame 0 shows the newest timestamp; later frames walk backwards through the
// list and wrap around. An empty list resolves to NoTimestamp.
func ResolveFrame(list TimestampList, frame uint64) int64 {
	n := uint64(len(list))
	if n == 0 {
		return NoTimestamp
	}
	// (frame + n - 1) mod n without overflowing near MaxUint64.
	idx := (frame%n + n - 1) % n
	return list[idx]
}
