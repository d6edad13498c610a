package ur

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/bits"
)

// xoshiro256 is the xoshiro256** generator seeded from a SHA-256 digest, as
// used by the fountain part selector.
type xoshiro256 struct {
	s [4]uint64
}

func newXoshiro(seed []byte) *xoshiro256 {
	digest := sha256.Sum256(seed)
	x := &xoshiro256{}
	for i := 0; i < 4; i++ {
		x.s[i] = binary.BigEndian.Uint64(digest[i*8 : i*8+8])
	}
	return x
}

func (x *xoshiro256) next() uint64 {
	result := bits.RotateLeft64(x.s[1]*5, 7) * 9
	t := x.s[1] << 17

	x.s[2] ^= x.s[0]
	x.s[3] ^= x.s[1]
	x.s[1] ^= x.s[2]
	x.s[0] ^= x.s[3]
	x.s[2] ^= t
	x.s[3] = bits.RotateLeft64(x.s[3], 45)

	return result
}

func (x *xoshiro256) nextDouble() float64 {
	return float64(x.next()) / (float64(math.MaxUint64) + 1)
}

// nextInt returns a value in [low, high].
func (x *xoshiro256) nextInt(low, high int) int {
	v := int(math.Floor(x.nextDouble()*float64(high-low+1))) + low
	if v > high {
		v = high
	}
	return v
}

func shuffled(items []int, rng *xoshiro256) []int {
	remaining := append([]int(nil), items...)
	result := make([]int, 0, len(items))
	for len(remaining) > 0 {
		i := rng.nextInt(0, len(remaining)-1)
		result = append(result, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return result
}

// aliasSampler draws indexes from a discrete distribution (Vose's alias method).
type aliasSampler struct {
	probs   []float64
	aliases []int
}

func newAliasSampler(weights []float64) *aliasSampler {
	n := len(weights)
	var sum float64
	for _, w := range weights {
		sum += w
	}

	p := make([]float64, n)
	for i, w := range weights {
		p[i] = w * float64(n) / sum
	}

	var small, large []int
	for i := n - 1; i >= 0; i-- {
		if p[i] < 1 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	probs := make([]float64, n)
	aliases := make([]int, n)
	for len(small) > 0 && len(large) > 0 {
		a := small[len(small)-1]
		small = small[:len(small)-1]
		g := large[len(large)-1]
		large = large[:len(large)-1]

		probs[a] = p[a]
		aliases[a] = g
		p[g] += p[a] - 1
		if p[g] < 1 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}
	for _, g := range large {
		probs[g] = 1
	}
	for _, a := range small {
		probs[a] = 1
	}

	return &aliasSampler{probs: probs, aliases: aliases}
}

func (s *aliasSampler) next(rng *xoshiro256) int {
	r1 := rng.nextDouble()
	r2 := rng.nextDouble()
	i := int(float64(len(s.probs)) * r1)
	if i >= len(s.probs) {
		i = len(s.probs) - 1
	}
	if r2 < s.probs[i] {
		return i
	}
	return s.aliases[i]
}

// chooseDegree picks how many fragments a mixed part combines, favoring
// small degrees (weight 1/d).
func chooseDegree(seqLen int, rng *xoshiro256) int {
	weights := make([]float64, seqLen)
	for i := range weights {
		weights[i] = 1 / float64(i+1)
	}
	return newAliasSampler(weights).next(rng) + 1
}

// chooseFragments returns the fragment indexes combined into part seqNum.
// The first seqLen parts are the plain fragments in order.
func chooseFragments(seqNum uint32, seqLen int, checksum uint32) []int {
	if seqNum <= uint32(seqLen) {
		return []int{int(seqNum) - 1}
	}

	var seed [8]byte
	binary.BigEndian.PutUint32(seed[0:4], seqNum)
	binary.BigEndian.PutUint32(seed[4:8], checksum)
	rng := newXoshiro(seed[:])

	degree := chooseDegree(seqLen, rng)
	indexes := make([]int, seqLen)
	for i := range indexes {
		indexes[i] = i
	}
	return shuffled(indexes, rng)[:degree]
}
