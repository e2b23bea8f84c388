package calibration

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Roll derives a pseudorandom value from the current time, an item id and a
// label. It is a plain Keccak-256 of public inputs and therefore predictable:
// anyone who controls or can anticipate the timestamp, including a caller who
// picks when to submit, can precompute every stat jitter and luck roll. The
// leveling distributions depend on this exact derivation, so it stays as is.
func Roll(now int64, itemID uint64, label string) uint64 {
	h := sha3.NewLegacyKeccak256()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(now))
	binary.BigEndian.PutUint64(buf[8:], itemID)
	h.Write(buf[:])
	h.Write([]byte(label))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// LuckRoll reports whether an inspection by caller at now earns the one-point
// wear reduction, which happens for roughly one roll in three.
func LuckRoll(now int64, itemID uint64, caller Address) bool {
	return Roll(now, itemID, "luck:"+caller.String())%3 == 0
}
