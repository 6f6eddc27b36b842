package galaxy

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

// Fingerprint hashes the static layout of m: ids, positions, sizes, hit
// points, membership and neighbor lists. Damage counters are left out, so the
// value is stable for the whole match and equal for equal seeds.
func Fingerprint(m *Map) string {
	buf := make([]byte, 0, 64*m.StarCount()+32*m.Len())
	putInt := func(v int) {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(v)))
	}
	putFloat := func(v float64) {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}

	for _, c := range m.Constellations() {
		putInt(c.ID)
		putFloat(c.Center.X)
		putFloat(c.Center.Y)
		putInt(len(c.StarIDs))
		for _, s := range c.Stars() {
			putInt(s.ID)
			putFloat(s.Coordinates.X)
			putFloat(s.Coordinates.Y)
			putInt(s.Size)
			putInt(s.MaxHP)
		}
		putInt(len(c.NeighborIDs))
		for _, n := range c.NeighborIDs {
			putInt(n)
		}
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
