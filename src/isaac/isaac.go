// Package isaac implements Bob Jenkins' ISAAC pseudo-random generator.
//
// The generator is used where every node must draw the same "random" value from
// the same input, for instance the salt that orders transactions inside a
// candidate delta. It is not safe for concurrent use; callers seed a fresh Rand
// per derivation.
package isaac

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	size        = 256
	goldenRatio = 0x9e3779b9
)

// Rand is an ISAAC generator.
type Rand struct {
	rsl [size]uint32
	mm  [size]uint32
	cnt uint32

	aa, bb, cc uint32
}

// New seeds a generator with the lowercase hexadecimal form of seed. Each
// character of the hex string fills one word of the seed array; characters
// beyond the 256th are ignored.
func New(seed []byte) *Rand {
	r := &Rand{}

	s := hex.EncodeToString(seed)
	for i := 0; i < len(s) && i < size; i++ {
		r.rsl[i] = uint32(s[i])
	}

	r.init()

	return r
}

// Uint32 returns the next value of the stream.
func (r *Rand) Uint32() uint32 {
	result := r.rsl[r.cnt]
	r.cnt++
	if r.cnt == size {
		r.isaac()
		r.cnt = 0
	}
	return result
}

// Salt returns the little-endian bytes of the first value drawn from a
// generator seeded with seed.
func Salt(seed []byte) []byte {
	salt := make([]byte, 4)
	binary.LittleEndian.PutUint32(salt, New(seed).Uint32())
	return salt
}

func (r *Rand) isaac() {
	r.cc++
	r.bb += r.cc

	for i := uint32(0); i < size; i++ {
		x := r.mm[i]
		switch i & 3 {
		case 0:
			r.aa ^= r.aa << 13
		case 1:
			r.aa ^= r.aa >> 6
		case 2:
			r.aa ^= r.aa << 2
		case 3:
			r.aa ^= r.aa >> 16
		}
		r.aa = r.mm[(i+128)&255] + r.aa
		y := r.mm[(x>>2)&255] + r.aa + r.bb
		r.mm[i] = y
		r.bb = r.mm[(y>>10)&255] + x
		r.rsl[i] = r.bb
	}
}

func mix(s *[8]uint32) {
	s[0] ^= s[1] << 11
	s[3] += s[0]
	s[1] += s[2]
	s[1] ^= s[2] >> 2
	s[4] += s[1]
	s[2] += s[3]
	s[2] ^= s[3] << 8
	s[5] += s[2]
	s[3] += s[4]
	s[3] ^= s[4] >> 16
	s[6] += s[3]
	s[4] += s[5]
	s[4] ^= s[5] << 10
	s[7] += s[4]
	s[5] += s[6]
	s[5] ^= s[6] >> 4
	s[0] += s[5]
	s[6] += s[7]
	s[6] ^= s[7] << 8
	s[1] += s[6]
	s[7] += s[0]
	s[7] ^= s[0] >> 9
	s[2] += s[7]
	s[0] += s[1]
}

// init mixes the seed held in rsl into mm, then fills rsl with the first 256
// results.
func (r *Rand) init() {
	r.aa, r.bb, r.cc = 0, 0, 0

	var s [8]uint32
	for j := range s {
		s[j] = goldenRatio
	}

	for j := 0; j < 4; j++ {
		mix(&s)
	}

	for i := 0; i < size; i += 8 {
		for j := range s {
			s[j] += r.rsl[i+j]
		}
		mix(&s)
		copy(r.mm[i:i+8], s[:])
	}

	// second pass so that every seed word affects every word of mm
	for i := 0; i < size; i += 8 {
		for j := range s {
			s[j] += r.mm[i+j]
		}
		mix(&s)
		copy(r.mm[i:i+8], s[:])
	}

	r.isaac()
	r.cnt = 0
}
