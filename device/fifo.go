package device

// RX_FIFO_DEFAULT_CAPACITY is the default receive FIFO depth in characters.
const RX_FIFO_DEFAULT_CAPACITY = 64

// Fifo is the receive holding buffer of a UART: a circular buffer with a
// fixed capacity and separate read/write positions.
type Fifo struct {
	Capacity int // Capacity in characters.

	ReadIndex  int
	WriteIndex int
	Size       int
	Data       []byte
}

// Reset empties the FIFO, reallocating its storage.
func (fifo *Fifo) Reset() {
	if fifo.Capacity == 0 {
		fifo.Capacity = RX_FIFO_DEFAULT_CAPACITY
	}

	fifo.ReadIndex = 0
	fifo.WriteIndex = 0
	fifo.Size = 0
	fifo.Data = make([]byte, fifo.Capacity)
}

// Put appends a character. False if the FIFO is full.
func (fifo *Fifo) Put(value byte) bool {
	if fifo.Data == nil {
		fifo.Reset()
	}

	if fifo.Size >= fifo.Capacity {
		return false
	}

	fifo.Data[fifo.WriteIndex] = value

	fifo.WriteIndex++
	if fifo.WriteIndex == fifo.Capacity {
		fifo.WriteIndex = 0
	}
	fifo.Size++

	return true
}

// Get removes the oldest character.
func (fifo *Fifo) Get() (value byte, ok bool) {
	if fifo.Size == 0 {
		return
	}

	value = fifo.Data[fifo.ReadIndex]
	fifo.ReadIndex++
	if fifo.ReadIndex == fifo.Capacity {
		fifo.ReadIndex = 0
	}
	fifo.Size--
	ok = true

	return
}
