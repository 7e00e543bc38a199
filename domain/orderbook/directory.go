package orderbook

import (
	"fmt"
	"math/bits"
)

// MaxWidth is the largest ladder the two-level directory can index:
// 64 summary bits over 64-bit words.
const MaxWidth = 64 * 64

// BitDirectory answers "which ladder slots hold liquidity" in constant
// time. l1 bit w summarizes word l2[w]; scans walk l1 first and touch
// at most two words. All indices are in [0, width); width itself is
// the not-found sentinel.
type BitDirectory struct {
	l1    uint64
	l2    [64]uint64
	width uint32
}

func NewBitDirectory(width uint32) BitDirectory {
	return BitDirectory{width: width}
}

// Sentinel is the value scans return when no bit qualifies.
func (d *BitDirectory) Sentinel() uint32 { return d.width }

func (d *BitDirectory) Set(i uint32) {
	w := i >> 6
	d.l2[w] |= 1 << (i & 63)
	d.l1 |= 1 << w
}

func (d *BitDirectory) Clear(i uint32) {
	w := i >> 6
	d.l2[w] &^= 1 << (i & 63)
	if d.l2[w] == 0 {
		d.l1 &^= 1 << w
	}
}

func (d *BitDirectory) Test(i uint32) bool {
	return d.l2[i>>6]&(1<<(i&63)) != 0
}

// LowestSet returns the smallest set index, or the sentinel.
func (d *BitDirectory) LowestSet() uint32 {
	if d.l1 == 0 {
		return d.width
	}
	w := uint32(bits.TrailingZeros64(d.l1))
	return w<<6 + uint32(bits.TrailingZeros64(d.l2[w]))
}

// HighestSet returns the largest set index, or the sentinel.
func (d *BitDirectory) HighestSet() uint32 {
	if d.l1 == 0 {
		return d.width
	}
	w := uint32(63 - bits.LeadingZeros64(d.l1))
	return w<<6 + uint32(63-bits.LeadingZeros64(d.l2[w]))
}

// NextHigher returns the smallest set index strictly greater than i,
// or the sentinel.
func (d *BitDirectory) NextHigher(i uint32) uint32 {
	w := i >> 6
	// Shifting by 64 yields 0 in Go, so bit 63 masks out the whole
	// word and the search falls through to the summary.
	rest := d.l2[w] &^ (1<<((i&63)+1) - 1)
	if rest != 0 {
		return w<<6 + uint32(bits.TrailingZeros64(rest))
	}
	up := d.l1 &^ (1<<(w+1) - 1)
	if up == 0 {
		return d.width
	}
	w = uint32(bits.TrailingZeros64(up))
	return w<<6 + uint32(bits.TrailingZeros64(d.l2[w]))
}

// NextLower returns the largest set index strictly less than i, or the
// sentinel.
func (d *BitDirectory) NextLower(i uint32) uint32 {
	w := i >> 6
	rest := d.l2[w] & (1<<(i&63) - 1)
	if rest != 0 {
		return w<<6 + uint32(63-bits.LeadingZeros64(rest))
	}
	down := d.l1 & (1<<w - 1)
	if down == 0 {
		return d.width
	}
	w = uint32(63 - bits.LeadingZeros64(down))
	return w<<6 + uint32(63-bits.LeadingZeros64(d.l2[w]))
}

func (d *BitDirectory) ClearAll() {
	d.l1 = 0
	d.l2 = [64]uint64{}
}

// Validate enforces coherence: an l1 bit is set iff its word is
// non-empty, and no bit sits at or beyond width.
func (d *BitDirectory) Validate() error {
	for w := 0; w < 64; w++ {
		set := d.l1&(1<<w) != 0
		if set != (d.l2[w] != 0) {
			return fmt.Errorf("%w: l1 bit %d disagrees with l2 word", ErrInvariant, w)
		}
		base := uint32(w) << 6
		if base >= d.width && d.l2[w] != 0 {
			return fmt.Errorf("%w: bit set beyond width in word %d", ErrInvariant, w)
		}
		if base < d.width && base+64 > d.width {
			if d.l2[w]&^(1<<(d.width-base)-1) != 0 {
				return fmt.Errorf("%w: bit set beyond width in word %d", ErrInvariant, w)
			}
		}
	}
	return nil
}
