package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable, and wrap
	// it in ulid.Monotonic so IDs minted within the same millisecond stay
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. ULIDs sort by creation time, which keeps
// simulation records (orders, positions, trades) naturally ordered in
// SQLite indexes.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		// Only possible if time runs backwards or entropy fails.
		panic(err)
	}
	return u.String()
}

// Entity constructors prefix the ULID so an id read off a log line or an
// API payload identifies its table without a lookup.

func Simulation() string   { return "sim_" + New() }
func Account() string      { return "acc_" + New() }
func Order() string        { return "ord_" + New() }
func Position() string     { return "pos_" + New() }
func Trade() string        { return "trd_" + New() }
func PendingOrder() string { return "pnd_" + New() }
