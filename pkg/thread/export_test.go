package thread

// CorruptStack overwrites the guard bytes at the bottom of t's stack.
func CorruptStack(t *Thread) {
	t.stack[0] ^= 0xff
}
