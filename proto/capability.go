package proto

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Capability is a set of protocol features, fixed when a protocol is registered.
type Capability uint8

const (
	CapMessageSigning Capability = 1 << iota
	CapExtendedKeys
	CapBitcoinPSBT
	CapEthereum
)

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapMessageSigning) {
		parts = append(parts, "message-signing")
	}
	if c.Has(CapExtendedKeys) {
		parts = append(parts, "extended-keys")
	}
	if c.Has(CapBitcoinPSBT) {
		parts = append(parts, "bitcoin-psbt")
	}
	if c.Has(CapEthereum) {
		parts = append(parts, "ethereum")
	}
	return strings.Join(parts, "|")
}

// Protocol describes one coin protocol the exchange can carry.
type Protocol struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CoinType       uint32     `json:"coin_type"`
	Caps           Capability `json:"caps"`
	DerivationPath string     `json:"derivation_path"` // account-level default
	Network        string     `json:"network,omitempty"`
}

func (p Protocol) Has(c Capability) bool {
	return p.Caps.Has(c)
}

func (p *Protocol) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("protocol id is required")
	}
	if p.DerivationPath != "" {
		if _, err := ParsePath(p.DerivationPath); err != nil {
			return fmt.Errorf("protocol %q: %w", p.ID, err)
		}
	}
	if p.Caps.Has(CapBitcoinPSBT) && p.Caps.Has(CapEthereum) {
		return fmt.Errorf("protocol %q cannot be both bitcoin and ethereum", p.ID)
	}
	return nil
}

// Options is the resolved view of a protocol used by codecs.
type Options struct {
	Protocol Protocol
	Path     []uint32
	Network  string
}

// Registry holds the protocols known to one exchange context. Resolved
// options are cached per registry, never process-wide.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
	cache     map[string]*Options
}

func NewRegistry() *Registry {
	return &Registry{
		protocols: make(map[string]Protocol),
		cache:     make(map[string]*Options),
	}
}

// DefaultRegistry returns a fresh registry populated with the built-in protocols.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range builtinProtocols {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

var builtinProtocols = []Protocol{
	{ID: "bitcoin", Name: "Bitcoin (Legacy)", CoinType: 0, Caps: CapBitcoinPSBT | CapExtendedKeys | CapMessageSigning, DerivationPath: "m/44'/0'/0'", Network: "mainnet"},
	{ID: "bitcoin_segwit", Name: "Bitcoin (SegWit)", CoinType: 0, Caps: CapBitcoinPSBT | CapExtendedKeys | CapMessageSigning, DerivationPath: "m/84'/0'/0'", Network: "mainnet"},
	{ID: "eth", Name: "Ethereum", CoinType: 60, Caps: CapEthereum | CapExtendedKeys | CapMessageSigning, DerivationPath: "m/44'/60'/0'", Network: "mainnet"},
	{ID: "xtz", Name: "Tezos", CoinType: 1729, Caps: CapMessageSigning, DerivationPath: "m/44'/1729'/0'/0'"},
	{ID: "cosmos", Name: "Cosmos", CoinType: 118, Caps: CapMessageSigning, DerivationPath: "m/44'/118'/0'/0/0"},
	{ID: "polkadot", Name: "Polkadot", CoinType: 354, Caps: CapMessageSigning, DerivationPath: "m/44'/354'/0'/0'/0'"},
}

func (r *Registry) Register(p Protocol) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols[p.ID] = p
	delete(r.cache, p.ID)
	return nil
}

func (r *Registry) Lookup(id string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[id]
	return p, ok
}

// LookupCoinType returns the first protocol (by id order) with the given
// coin type and capability.
func (r *Registry) LookupCoinType(coinType uint32, caps Capability) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.protocols))
	for id := range r.protocols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := r.protocols[id]
		if p.CoinType == coinType && p.Has(caps) {
			return p, true
		}
	}
	return Protocol{}, false
}

// Has reports whether protocol id is registered with all of caps.
func (r *Registry) Has(id string, caps Capability) bool {
	p, ok := r.Lookup(id)
	return ok && p.Has(caps)
}

// Options resolves and memoizes the codec options for a protocol.
func (r *Registry) Options(id string) (*Options, error) {
	r.mu.RLock()
	if opts, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return opts, nil
	}
	p, ok := r.protocols[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", id)
	}

	path, err := ParsePath(p.DerivationPath)
	if err != nil {
		return nil, err
	}
	opts := &Options{Protocol: p, Path: path, Network: p.Network}

	r.mu.Lock()
	r.cache[id] = opts
	r.mu.Unlock()
	return opts, nil
}

func (r *Registry) List() []Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
