package ur

import (
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrDifferentMessage is returned when a part belongs to a message other
	// than the one currently being assembled.
	ErrDifferentMessage = errors.New("part belongs to a different message")
	ErrInvalidPart      = errors.New("invalid fountain part")
	ErrInvalidChecksum  = errors.New("message checksum mismatch")
)

// Part is one fountain-coded fragment (or XOR mix of fragments).
type Part struct {
	_          struct{} `cbor:",toarray"`
	SeqNum     uint32
	SeqLen     int
	MessageLen int
	Checksum   uint32
	Data       []byte
}

func (p Part) marshal() ([]byte, error) {
	return encMode.Marshal(p)
}

func unmarshalPart(data []byte) (Part, error) {
	var p Part
	if err := decMode.Unmarshal(data, &p); err != nil {
		return Part{}, fmt.Errorf("%w: %v", ErrInvalidPart, err)
	}
	if p.SeqNum < 1 || p.SeqLen < 1 || p.MessageLen < 1 || len(p.Data) == 0 {
		return Part{}, ErrInvalidPart
	}
	return p, nil
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// FountainEncoder splits a message into fragments and emits an endless
// stream of parts. Any sufficient subset of parts rebuilds the message.
type FountainEncoder struct {
	messageLen  int
	checksum    uint32
	fragmentLen int
	fragments   [][]byte
	seqNum      uint32
}

// nominalFragmentLength finds the smallest fragment count whose fragment
// length fits maxFragmentLen, never splitting below minFragmentLen.
func nominalFragmentLength(messageLen, minFragmentLen, maxFragmentLen int) int {
	maxCount := messageLen / minFragmentLen
	if maxCount < 1 {
		maxCount = 1
	}
	fragmentLen := messageLen
	for count := 1; count <= maxCount; count++ {
		fragmentLen = int(math.Ceil(float64(messageLen) / float64(count)))
		if fragmentLen <= maxFragmentLen {
			break
		}
	}
	return fragmentLen
}

func NewFountainEncoder(message []byte, maxFragmentLen, minFragmentLen int, firstSeqNum uint32) (*FountainEncoder, error) {
	if len(message) == 0 {
		return nil, errors.New("empty message")
	}
	if minFragmentLen < 1 || maxFragmentLen < minFragmentLen {
		return nil, fmt.Errorf("invalid fragment bounds %d..%d", minFragmentLen, maxFragmentLen)
	}

	fragmentLen := nominalFragmentLength(len(message), minFragmentLen, maxFragmentLen)
	count := (len(message) + fragmentLen - 1) / fragmentLen
	padded := make([]byte, count*fragmentLen)
	copy(padded, message)

	fragments := make([][]byte, count)
	for i := range fragments {
		fragments[i] = padded[i*fragmentLen : (i+1)*fragmentLen]
	}

	return &FountainEncoder{
		messageLen:  len(message),
		checksum:    crc32.ChecksumIEEE(message),
		fragmentLen: fragmentLen,
		fragments:   fragments,
		seqNum:      firstSeqNum,
	}, nil
}

func (e *FountainEncoder) SeqLen() int {
	return len(e.fragments)
}

func (e *FountainEncoder) IsSinglePart() bool {
	return len(e.fragments) == 1
}

func (e *FountainEncoder) NextPart() Part {
	e.seqNum++
	indexes := chooseFragments(e.seqNum, len(e.fragments), e.checksum)
	mixed := make([]byte, e.fragmentLen)
	for _, i := range indexes {
		xorInto(mixed, e.fragments[i])
	}
	return Part{
		SeqNum:     e.seqNum,
		SeqLen:     len(e.fragments),
		MessageLen: e.messageLen,
		Checksum:   e.checksum,
		Data:       mixed,
	}
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// indexSet is a sorted list of fragment indexes.
type indexSet []int

func (s indexSet) key() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (s indexSet) contains(other indexSet) bool {
	set := make(map[int]struct{}, len(s))
	for _, v := range s {
		set[v] = struct{}{}
	}
	for _, v := range other {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func (s indexSet) minus(other indexSet) indexSet {
	drop := make(map[int]struct{}, len(other))
	for _, v := range other {
		drop[v] = struct{}{}
	}
	out := make(indexSet, 0, len(s))
	for _, v := range s {
		if _, ok := drop[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

type mixedPart struct {
	indexes indexSet
	data    []byte
}

func (p mixedPart) isSimple() bool {
	return len(p.indexes) == 1
}

// reduce removes b from p when b's fragments are a subset of p's.
func (p mixedPart) reduce(b mixedPart) mixedPart {
	if !p.indexes.contains(b.indexes) {
		return p
	}
	data := append([]byte(nil), p.data...)
	xorInto(data, b.data)
	return mixedPart{indexes: p.indexes.minus(b.indexes), data: data}
}

// FountainDecoder reassembles a message from parts in any order.
type FountainDecoder struct {
	started     bool
	seqLen      int
	messageLen  int
	checksum    uint32
	fragmentLen int

	simple   map[int][]byte
	mixed    map[string]mixedPart
	queue    []mixedPart
	received int

	result []byte
	err    error
}

func NewFountainDecoder() *FountainDecoder {
	return &FountainDecoder{
		simple: make(map[int][]byte),
		mixed:  make(map[string]mixedPart),
	}
}

// Receive feeds one part. It returns ErrDifferentMessage when the part's
// shape does not match the message being assembled.
func (d *FountainDecoder) Receive(p Part) error {
	if d.IsComplete() {
		return nil
	}
	if p.SeqNum < 1 || len(p.Data) == 0 || p.SeqLen < 1 || p.MessageLen < 1 {
		return ErrInvalidPart
	}
	if p.SeqLen*len(p.Data) < p.MessageLen || (p.SeqLen-1)*len(p.Data) >= p.MessageLen {
		return ErrInvalidPart
	}
	if !d.started {
		d.started = true
		d.seqLen = p.SeqLen
		d.messageLen = p.MessageLen
		d.checksum = p.Checksum
		d.fragmentLen = len(p.Data)
	} else if p.SeqLen != d.seqLen || p.MessageLen != d.messageLen || p.Checksum != d.checksum || len(p.Data) != d.fragmentLen {
		return ErrDifferentMessage
	}

	indexes := indexSet(chooseFragments(p.SeqNum, p.SeqLen, p.Checksum))
	sort.Ints(indexes)
	d.received++
	d.queue = append(d.queue, mixedPart{indexes: indexes, data: append([]byte(nil), p.Data...)})
	for len(d.queue) > 0 && !d.IsComplete() {
		item := d.queue[0]
		d.queue = d.queue[1:]
		if item.isSimple() {
			d.processSimple(item)
		} else {
			d.processMixed(item)
		}
	}
	return d.err
}

func (d *FountainDecoder) processSimple(p mixedPart) {
	idx := p.indexes[0]
	if _, ok := d.simple[idx]; ok {
		return
	}
	d.simple[idx] = p.data

	if len(d.simple) == d.seqLen {
		joined := make([]byte, 0, d.seqLen*d.fragmentLen)
		for i := 0; i < d.seqLen; i++ {
			joined = append(joined, d.simple[i]...)
		}
		message := joined[:d.messageLen]
		if crc32.ChecksumIEEE(message) != d.checksum {
			d.err = ErrInvalidChecksum
			return
		}
		d.result = message
		return
	}

	d.reduceMixedBy(p)
}

func (d *FountainDecoder) processMixed(p mixedPart) {
	if _, ok := d.mixed[p.indexes.key()]; ok {
		return
	}
	for idx, data := range d.simple {
		p = p.reduce(mixedPart{indexes: indexSet{idx}, data: data})
	}
	for _, m := range d.mixed {
		p = p.reduce(m)
	}
	if len(p.indexes) == 0 {
		return
	}
	if p.isSimple() {
		d.queue = append(d.queue, p)
		return
	}
	d.reduceMixedBy(p)
	d.mixed[p.indexes.key()] = p
}

func (d *FountainDecoder) reduceMixedBy(p mixedPart) {
	next := make(map[string]mixedPart, len(d.mixed))
	for _, m := range d.mixed {
		reduced := m.reduce(p)
		if reduced.isSimple() {
			d.queue = append(d.queue, reduced)
		} else if len(reduced.indexes) > 0 {
			next[reduced.indexes.key()] = reduced
		}
	}
	d.mixed = next
}

func (d *FountainDecoder) IsComplete() bool {
	return d.result != nil || d.err != nil
}

func (d *FountainDecoder) Result() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.result == nil {
		return nil, errors.New("message incomplete")
	}
	return d.result, nil
}

// Progress is the fraction of fragments recovered so far. It never decreases.
func (d *FountainDecoder) Progress() float64 {
	if d.result != nil {
		return 1
	}
	if d.seqLen == 0 {
		return 0
	}
	return float64(len(d.simple)) / float64(d.seqLen)
}

// Started reports whether any part has been accepted.
func (d *FountainDecoder) Started() bool {
	return d.started
}
