package game

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

// StateHash digests the clock and every object's mutable state in id order.
// Peers that stay in lockstep produce identical hashes at equal clocks.
func (g *Game) StateHash() [32]byte {
	h := blake3.New(32, nil)
	var buf [8]byte

	putFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	putInt := func(i int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		h.Write(buf[:])
	}

	putFloat(g.clock.Value())
	for _, id := range g.ObjectIDs() {
		o := g.objects[id]
		putInt(int64(id))
		putFloat(o.position.X)
		putFloat(o.position.Y)
		putFloat(o.direction.Value())
		putInt(int64(o.hitPoints))
		putInt(int64(o.experience))
		if o.dead {
			putInt(1)
		} else {
			putInt(0)
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// StateHashHex is StateHash as lowercase hex.
func (g *Game) StateHashHex() string {
	sum := g.StateHash()
	return hex.EncodeToString(sum[:])
}
