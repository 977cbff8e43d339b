// Package trace implements the append-only audit trail: a hash-chained
// log of which actor touched which node, in order. Each entry also
// carries an opaque modular-exponentiation fingerprint evolved over a
// fixed safe prime; the fingerprint is a label for display, the hash
// chain is what Verify checks.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// RFC 3526 2048-bit MODP group safe prime, used only to evolve the
// display fingerprint.
const rfc3526Prime2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA237327FFFFFFFFFFFFFFFF"

const genesisSeed = "GENESIS_SEED"

// Entry is one immutable record in the audit trail.
type Entry struct {
	// Depth is the 1-based position in the trail.
	Depth int `json:"depth"`
	// NodeID is the task node the actor operated on.
	NodeID string `json:"node_id"`
	// Actor is the component or crew that advanced the state.
	Actor string `json:"actor"`
	// Fingerprint is the opaque evolved state label, truncated hex.
	Fingerprint string `json:"fingerprint"`
	// PrevHash is the chain hash of the preceding entry.
	PrevHash string `json:"prev_hash"`
	// Hash chains this entry to its predecessor.
	Hash string `json:"hash"`
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives entries as they are appended, e.g. for persistence.
type Sink func(Entry)

// Log is an append-only, monotonically advancing audit trail.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	state   *big.Int
	modulus *big.Int
	gen     *big.Int
	sink    Sink
}

// NewLog creates an empty trail seeded from the genesis constant.
func NewLog() *Log {
	m, _ := new(big.Int).SetString(rfc3526Prime2048Hex, 16)
	seed := sha256.Sum256([]byte(genesisSeed))
	return &Log{
		state:   new(big.Int).SetBytes(seed[:]),
		modulus: m,
		gen:     big.NewInt(4), // quadratic residue generator
	}
}

// SetSink registers a callback invoked for every appended entry.
func (l *Log) SetSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
}

// Append records that actor advanced the state of nodeID and returns
// the new entry.
func (l *Log) Append(nodeID, actor string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	depth := len(l.entries) + 1
	l.evolve(actor, depth)

	prev := genesisSeedHash()
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}

	e := Entry{
		Depth:       depth,
		NodeID:      nodeID,
		Actor:       actor,
		Fingerprint: l.fingerprintLocked(),
		PrevHash:    prev,
		Timestamp:   time.Now(),
	}
	e.Hash = chainHash(prev, e)
	l.entries = append(l.entries, e)

	if l.sink != nil {
		l.sink(e)
	}
	return e
}

// evolve advances the modexp state:
//
//	T' = (T^H(actor) * G^H(depth)) mod M
func (l *Log) evolve(actor string, depth int) {
	ha := sha256.Sum256([]byte(actor))
	hd := sha256.Sum256([]byte(fmt.Sprintf("%d", depth)))

	term1 := new(big.Int).Exp(l.state, new(big.Int).SetBytes(ha[:]), l.modulus)
	term2 := new(big.Int).Exp(l.gen, new(big.Int).SetBytes(hd[:]), l.modulus)
	l.state = term1.Mul(term1, term2).Mod(term1, l.modulus)
}

// Fingerprint returns the current state label, truncated for display.
func (l *Log) Fingerprint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fingerprintLocked()
}

func (l *Log) fingerprintLocked() string {
	h := l.state.Text(16)
	if len(h) > 32 {
		h = h[:32]
	}
	return h
}

// Depth returns the number of appended entries.
func (l *Log) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the trail.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Verify walks the chain and reports the first break, if any.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return VerifyEntries(l.entries)
}

// VerifyEntries checks chain continuity of a trail, e.g. one reloaded
// from storage.
func VerifyEntries(entries []Entry) error {
	prev := genesisSeedHash()
	for i, e := range entries {
		if e.Depth != i+1 {
			return fmt.Errorf("trace entry %d: depth %d out of order", i, e.Depth)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("trace entry %d: chain break (prev hash mismatch)", i)
		}
		if chainHash(prev, e) != e.Hash {
			return fmt.Errorf("trace entry %d: hash mismatch (tampered)", i)
		}
		prev = e.Hash
	}
	return nil
}

func chainHash(prev string, e Entry) string {
	h := sha256.Sum256([]byte(prev + "|" + e.NodeID + "|" + e.Actor + "|" + e.Fingerprint + "|" + fmt.Sprintf("%d", e.Depth)))
	return hex.EncodeToString(h[:])
}

func genesisSeedHash() string {
	h := sha256.Sum256([]byte(genesisSeed))
	return hex.EncodeToString(h[:])
}
