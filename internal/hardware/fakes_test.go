package hardware

import (
	"errors"
	"sync"
)

type pinWrite struct {
	pin  int
	high bool
}

// fakeGPIO records writes and serves reads from a level table.
type fakeGPIO struct {
	mu       sync.Mutex
	outputs  map[int]bool
	pullups  map[int]bool
	levels   map[int]bool
	writes   []pinWrite
	writeErr error
	readErr  error
	closed   bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		outputs: make(map[int]bool),
		pullups: make(map[int]bool),
		levels:  make(map[int]bool),
	}
}

func (g *fakeGPIO) ConfigureOutput(pin int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = true
	g.levels[pin] = false
	return nil
}

func (g *fakeGPIO) ConfigureInputPullUp(pin int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pullups[pin] = true
	return nil
}

func (g *fakeGPIO) Write(pin int, high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.levels[pin] = high
	g.writes = append(g.writes, pinWrite{pin, high})
	return nil
}

func (g *fakeGPIO) Read(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return false, g.readErr
	}
	return g.levels[pin], nil
}

func (g *fakeGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGPIO) set(pin int, high bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = high
}

func (g *fakeGPIO) history() []pinWrite {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]pinWrite(nil), g.writes...)
}

type regWrite struct {
	addr uint16
	reg  byte
	val  byte
}

// fakeBus emulates MCP23017 register files keyed by bus address. GPIO reads
// on a chip return its input levels; OLAT reads return the latch.
type fakeBus struct {
	mu     sync.Mutex
	regs   map[uint16]*[0x16]byte
	inputs map[uint16]uint16
	writes []regWrite
	reads  map[uint16]map[byte]int
	failOn map[byte]error
	closed bool
}

func newFakeBus(addrs ...uint16) *fakeBus {
	b := &fakeBus{
		regs:   make(map[uint16]*[0x16]byte),
		inputs: make(map[uint16]uint16),
		reads:  make(map[uint16]map[byte]int),
		failOn: make(map[byte]error),
	}
	for _, a := range addrs {
		b.regs[a] = &[0x16]byte{}
		b.reads[a] = make(map[byte]int)
	}
	return b
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs, ok := b.regs[addr]
	if !ok {
		return errors.New("nack")
	}
	if len(w) == 0 {
		return errors.New("empty write")
	}
	reg := w[0]
	if err := b.failOn[reg]; err != nil {
		return err
	}
	if len(w) == 2 {
		regs[reg] = w[1]
		b.writes = append(b.writes, regWrite{addr, reg, w[1]})
		return nil
	}
	b.reads[addr][reg]++
	switch reg {
	case regGPIOA:
		r[0] = byte(b.inputs[addr])
	case regGPIOB:
		r[0] = byte(b.inputs[addr] >> 8)
	default:
		r[0] = regs[reg]
	}
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) reg(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[addr][reg]
}

func (b *fakeBus) setReg(addr uint16, reg, v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[addr][reg] = v
}

func (b *fakeBus) setInputs(addr uint16, v uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[addr] = v
}

func (b *fakeBus) readCount(addr uint16, reg byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[addr][reg]
}

func (b *fakeBus) history(addr uint16) []regWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []regWrite
	for _, w := range b.writes {
		if w.addr == addr {
			out = append(out, w)
		}
	}
	return out
}

func (b *fakeBus) resetHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
	for a := range b.reads {
		b.reads[a] = make(map[byte]int)
	}
}
