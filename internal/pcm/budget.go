package pcm

// budget counts the data bytes a stream may still emit before its declared
// container size would be exceeded.
type budget struct {
	remaining int64
}

func newBudget() budget {
	return budget{remaining: MaxContainerSize - HeaderSize}
}

// spend records n emitted bytes and reports whether the stream must end
// after them.
func (b *budget) spend(n int) bool {
	b.remaining -= int64(n)
	return b.remaining <= 0
}
