/*
File Name:  book.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

AddrBook is the core peer-address table: a hash-partitioned, bucketed store
of known network addresses with test-before-evict eviction and randomized
selection, modeled on Bitcoin Core's addrman. Every public method takes the
single exclusive mutex for its entire duration (spec §5) — there is no
read/write split, because every operation (including the logically
read-only Select and GetAddr) mutates bookkeeping state.
*/

package addrbook

import (
	"sync"
	"time"
)

const (
	// horizonDays is how old an entry's last-seen time may get before the
	// entry is terrible and thus evictable.
	horizonDays = 30
	// retries is the number of failed attempts that make an entry that
	// has never succeeded terrible.
	retries = 3
	// maxFailures is the number of failed attempts that make an entry
	// terrible when its last success is more than minSuccessDays ago.
	maxFailures = 10
	// minSuccessDays is how long ago the last success must be for
	// maxFailures failed attempts to make an entry terrible.
	minSuccessDays = 7

	maxPctGetAddr = 23 // fallback percentage cap when the caller passes none
	maxAddrToSend = 2500

	replacementHoursSecs = 4 * 3600 // ADDRMAN_REPLACEMENT_HOURS
	testWindowSecs       = 40 * 60  // ADDRMAN_TEST_WINDOW
	triedCollisionCap    = 10       // ADDRMAN_SET_TRIED_COLLISION_SIZE
)

// Book is the peer-address manager.
type Book struct {
	mu sync.Mutex

	hasher bucketHasher
	rng    *bookRNG
	now    func() time.Time

	idx    *addrIndex
	random []*addrEntry // vRandom: canonical entries only, tried and new alike

	nNew   int
	nTried int

	// lastGood is the timestamp of the most recent Good call (any
	// address), used by Attempt to avoid double-counting a run of
	// failures that spans two successes. Matches the original's
	// nLastGood, initialized to 1 rather than 0 so that an attempt
	// recorded before any Good call at t=0 still counts.
	lastGood int64

	// collisions holds canonical new-table entries deferred by Good's
	// test-before-evict protocol, capped at triedCollisionCap.
	collisions []*addrEntry

	key [32]byte

	consistencyCheckRatio int
	asmapChecksum         []byte
}

// Config controls construction of a Book.
type Config struct {
	// NetGroup maps an address to its group key. If nil, DefaultNetGroup
	// is used.
	NetGroup NetGroupFunc

	// Deterministic fixes the secret key and RNG seed, for reproducible
	// tests.
	Deterministic bool

	// ConsistencyCheckRatio runs Check() probabilistically, once every N
	// calls on average. Zero disables the probabilistic self-check
	// entirely (Check is still callable directly).
	ConsistencyCheckRatio int

	// Asmap, if non-nil, is recorded verbatim and returned by Asmap(); it
	// plays no role in bucket placement here (that is NetGroup's job).
	Asmap []byte
}

// NewBook constructs an empty address book.
func NewBook(cfg Config) *Book {
	netGroup := cfg.NetGroup
	if netGroup == nil {
		netGroup = DefaultNetGroup
	}

	var key [32]byte
	if cfg.Deterministic {
		key[0] = 1
	} else {
		randomKey(&key)
	}

	b := &Book{
		hasher:                bucketHasher{key: key, netGroup: netGroup},
		rng:                   newBookRNG(cfg.Deterministic),
		now:                   time.Now,
		idx:                   newAddrIndex(),
		lastGood:              1,
		key:                   key,
		consistencyCheckRatio: cfg.ConsistencyCheckRatio,
		asmapChecksum:         cfg.Asmap,
	}
	return b
}

// Size returns the number of canonical addresses in the new and tried
// tables respectively.
func (b *Book) Size() (newCount, triedCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nNew, b.nTried
}

// Asmap returns the asmap blob recorded at construction, or nil.
func (b *Book) Asmap() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asmapChecksum
}

// AddrMessage is one claim inside an incoming address-gossip message: an
// address together with the advertised services and the source-claimed
// last-seen time. These are deliberately not fields of Address itself —
// Address identity is network+bytes+port only (spec §3) — but they are
// exactly the per-message metadata AddSingle consumes.
type AddrMessage struct {
	Address  Address
	Services ServiceFlags
	Time     int64
}

// Add absorbs a batch of address claims announced by source, applying
// time_penalty to every claimed time (except for an address's own
// self-announcement, which is never penalized). It returns true iff at
// least one canonical or alias entry was created. Non-routable addresses
// are silently skipped, matching §7's PolicyReject taxonomy.
func (b *Book) Add(addrs []AddrMessage, source NetAddr, timePenalty int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCheck()
	added := false
	for _, m := range addrs {
		if !m.Address.IsRoutable() {
			continue
		}
		if b.addSingle(m.Address, source, m.Services, m.Time, timePenalty) {
			added = true
		}
	}
	b.maybeCheck()
	return added
}

func (b *Book) addSingle(addr Address, source NetAddr, services ServiceFlags, seenTime, timePenalty int64) bool {
	now := b.now().Unix()

	// Do not penalize a source for announcing itself.
	if addr.NetAddr.Equal(source) {
		timePenalty = 0
	}

	existing := b.idx.findCanonical(addr)
	if existing != nil {
		// Periodically refresh time: claims more than nUpdateInterval
		// older than our record never move it backwards in time, and a
		// peer that claims to be currently online (seenTime within the
		// last day) earns a much tighter refresh window than a stale one.
		currentlyOnline := now-seenTime < 24*3600
		updateInterval := int64(24 * 3600)
		if currentlyOnline {
			updateInterval = 60
		}
		if seenTime != 0 && (existing.time == 0 || existing.time < seenTime-updateInterval-timePenalty) {
			t := seenTime - timePenalty
			if t < 0 {
				t = 0
			}
			existing.time = t
		}
		if services != 0 {
			existing.services |= services
		}

		// No new information: the claim isn't newer than what we already
		// have recorded (post-update), so there's nothing to grow.
		if seenTime == 0 || (existing.time != 0 && seenTime <= existing.time) {
			return false
		}
		if existing.inTried {
			return false
		}

		refs := b.idx.countAddr(addr)
		if refs >= maxNewRefs {
			return false
		}
		// Growth probability halves with every existing reference:
		// accept with probability 1/2^refs.
		factor := 1 << uint(refs)
		if !b.rng.Chance(factor) {
			return false
		}

		alias := &addrEntry{
			addr:      addr,
			source:    source,
			inTried:   false,
			alias:     true,
			randomPos: -1,
		}
		alias.bucket, alias.bucketPos = b.hasher.rebucket(false, addr, source)
		return b.placeInNew(alias)
	}

	t := seenTime - timePenalty
	if t < 0 {
		t = 0
	}
	entry := &addrEntry{
		addr:     addr,
		source:   source,
		inTried:  false,
		alias:    false,
		time:     t,
		services: services,
	}
	entry.bucket, entry.bucketPos = b.hasher.rebucket(false, addr, source)
	return b.placeInNew(entry)
}

// placeInNew inserts entry into its computed new-table slot, evicting an
// incumbent of another address if that incumbent is terrible or, when entry
// is canonical, if the incumbent's address has more than one reference. It
// reports whether the entry was actually inserted — false means the slot
// was held by an incumbent that could not be evicted (or by another
// occurrence of the same address) and the entry was dropped.
func (b *Book) placeInNew(entry *addrEntry) bool {
	occupant := b.idx.slot(entry.slot())
	if occupant != nil && !occupant.addr.Equal(entry.addr) {
		if !(b.isTerrible(occupant) || (!entry.alias && b.idx.countAddr(occupant.addr) > 1)) {
			return false
		}
		b.eraseEntry(occupant)
	} else if occupant != nil {
		// Another occurrence of the same address already holds this slot
		// (an alias re-announced by the same source hashes to the same
		// place). Nothing new to record.
		return false
	}
	b.idx.insert(entry)
	if !entry.alias {
		b.nNew++
		b.appendRandom(entry)
	}
	return true
}

// isTerrible reports whether an entry is a fit eviction candidate. An
// entry tried within the last 60 seconds never is; otherwise it is if its
// last-seen time is more than 10 minutes in the future, unset, or older
// than the horizon, if it has never succeeded after retries attempts, or
// if it has maxFailures attempts and no success in minSuccessDays. Aliases
// share their address's single set of statistics, so they are judged by
// the canonical entry.
func (b *Book) isTerrible(e *addrEntry) bool {
	if e.alias {
		if c := b.idx.findCanonical(e.addr); c != nil {
			e = c
		}
	}
	now := b.now().Unix()
	if e.lastTry != 0 && now-e.lastTry <= 60 {
		return false
	}
	if e.time > now+600 {
		return true
	}
	if e.time == 0 || now-e.time > horizonDays*24*3600 {
		return true
	}
	if e.lastSuccess == 0 && e.attempts >= retries {
		return true
	}
	if now-e.lastSuccess > minSuccessDays*24*3600 && e.attempts >= maxFailures {
		return true
	}
	return false
}

// eraseEntry removes one occurrence of an address. Erasing a canonical
// entry that still has aliases does not lose the address: the canonical
// adopts the first alias's source (and with it that alias's slot), the
// alias dies in its place, and the statistics survive.
func (b *Book) eraseEntry(e *addrEntry) {
	if !e.alias {
		group := b.idx.aliases(e.addr)
		if len(group) > 1 {
			al := group[1]
			b.idx.erase(al)
			b.removeFromCollisionSet(al)
			b.idx.erase(e)
			e.source = al.source
			e.bucket, e.bucketPos = al.bucket, al.bucketPos
			b.idx.insert(e)
			return
		}
	}
	b.idx.erase(e)
	b.removeFromCollisionSet(e)
	if e.alias {
		return
	}
	if e.inTried {
		b.nTried--
	} else {
		b.nNew--
	}
	b.removeRandom(e)
}

func (b *Book) appendRandom(e *addrEntry) {
	e.randomPos = len(b.random)
	b.random = append(b.random, e)
}

func (b *Book) removeRandom(e *addrEntry) {
	if e.randomPos < 0 || e.randomPos >= len(b.random) {
		return
	}
	last := len(b.random) - 1
	b.random[e.randomPos] = b.random[last]
	b.random[e.randomPos].randomPos = e.randomPos
	b.random = b.random[:last]
	e.randomPos = -1
}

func (b *Book) removeFromCollisionSet(e *addrEntry) {
	if !e.collision {
		return
	}
	for i, c := range b.collisions {
		if c == e {
			b.collisions = append(b.collisions[:i], b.collisions[i+1:]...)
			break
		}
	}
	e.collision = false
}

func inCollisionSet(set []*addrEntry, e *addrEntry) bool {
	for _, c := range set {
		if c == e {
			return true
		}
	}
	return false
}

// Good records a successful connection to addr, moving it into the tried
// table (deferring to the collision set first if its tried slot is
// occupied by a different address). It returns true iff addr actually
// moved into tried as a result of this call — false if addr is unknown,
// was already tried, or the promotion was deferred into the collision set.
func (b *Book) Good(addr Address, connectTime int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCheck()
	ok := b.good(addr, connectTime, true)
	b.maybeCheck()
	return ok
}

func (b *Book) good(addr Address, connectTime int64, testBeforeEvict bool) bool {
	if connectTime <= 0 {
		connectTime = b.now().Unix()
	}
	b.lastGood = connectTime

	entry := b.idx.findCanonical(addr)
	if entry == nil {
		return false
	}

	entry.lastSuccess = connectTime
	entry.lastTry = connectTime
	entry.attempts = 0
	// time is deliberately left untouched, to avoid leaking which peers
	// we are currently connected to.

	if entry.inTried {
		return false
	}

	bucket, pos := b.hasher.rebucket(true, addr, entry.source)
	occupant := b.idx.slot(slotKey{inTried: true, bucket: bucket, pos: pos})

	if testBeforeEvict && occupant != nil && !occupant.addr.Equal(addr) {
		if len(b.collisions) < triedCollisionCap {
			entry.collision = true
			entry.pendingTriedBucket, entry.pendingTriedPos = bucket, pos
			if !inCollisionSet(b.collisions, entry) {
				b.collisions = append(b.collisions, entry)
			}
			return false
		}
		// Collision set is full: fall through and evict unconditionally.
	}

	b.removeFromCollisionSet(entry)
	b.makeTried(entry)
	return true
}

// makeTried moves a canonical new-table entry into the tried table at its
// computed slot, evicting and demoting to new whatever (if anything)
// already occupies that slot, and discarding every alias this address had
// in new — once an address is known-good there is no value in remembering
// who else announced it.
func (b *Book) makeTried(entry *addrEntry) {
	addr := entry.addr
	for _, e := range append([]*addrEntry{}, b.idx.aliases(addr)...) {
		if e != entry {
			b.eraseEntry(e)
		}
	}

	// Take the promoted entry out of new before touching the tried slot,
	// so the victim demoted below can never land on (and erase) it. It
	// stays canonical, so its random-vector position is untouched.
	b.idx.erase(entry)
	b.nNew--

	bucket, pos := b.hasher.rebucket(true, entry.addr, entry.source)

	if victim := b.idx.slot(slotKey{inTried: true, bucket: bucket, pos: pos}); victim != nil {
		b.idx.erase(victim)
		b.nTried--
		b.removeFromCollisionSet(victim)

		victim.inTried = false
		victim.bucket, victim.bucketPos = b.hasher.rebucket(false, victim.addr, victim.source)
		if occ := b.idx.slot(victim.slot()); occ != nil {
			b.eraseEntry(occ)
		}
		// Invariant #3 forbids a canonical new entry for victim's address
		// existing at this point (it was canonical tried a moment ago), so
		// it re-enters new as canonical, never as an alias. It stays
		// canonical throughout, so its random-vector position is untouched.
		victim.alias = false
		b.idx.insert(victim)
		b.nNew++
	}

	entry.inTried = true
	entry.bucket, entry.bucketPos = bucket, pos
	entry.collision = false
	b.idx.insert(entry)
	b.nTried++
}

// Attempt records a connection attempt to addr, whether or not it
// succeeded, silently no-oping if addr is unknown. countFailure selects
// whether this failed attempt counts toward the eviction-worthiness tally;
// it only does so the first time since the last successful Good call
// anywhere in the book, so a long run of failures between two successes
// is never counted twice.
func (b *Book) Attempt(addr Address, countFailure bool, attemptTime int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.idx.findCanonical(addr)
	if entry == nil {
		return
	}
	if attemptTime <= 0 {
		attemptTime = b.now().Unix()
	}
	entry.lastTry = attemptTime
	if countFailure && entry.lastCountAttempt < b.lastGood {
		entry.lastCountAttempt = attemptTime
		entry.attempts++
	}
}

// Connected updates the last-seen time of a currently connected peer, but
// only if its recorded time is already stale by more than 20 minutes — a
// cheap anti-thrashing throttle matching the original's identical rule.
// Silently no-ops if addr is unknown.
func (b *Book) Connected(addr Address, connectTime int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.idx.findCanonical(addr)
	if entry == nil {
		return
	}
	if connectTime <= 0 {
		connectTime = b.now().Unix()
	}
	if connectTime-entry.time > 20*60 {
		entry.time = connectTime
	}
}

// SetServices overwrites the service bitmask advertised by addr. Silently
// no-ops if addr is unknown.
func (b *Book) SetServices(addr Address, services ServiceFlags) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.idx.findCanonical(addr)
	if entry == nil {
		return
	}
	entry.services = services
}

// AddrInfo is the externally-visible snapshot of a canonical address
// entry, returned by FindAddressEntry.
type AddrInfo struct {
	Address     Address
	Source      NetAddr
	InTried     bool
	Time        int64
	Services    ServiceFlags
	LastTry     int64
	LastSuccess int64
	Attempts    int
	AliasCount  int
}

// FindAddressEntry returns a snapshot of the canonical entry for addr.
func (b *Book) FindAddressEntry(addr Address) (AddrInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.idx.findCanonical(addr)
	if entry == nil {
		return AddrInfo{}, ErrNotFound
	}
	return AddrInfo{
		Address:     entry.addr,
		Source:      entry.source,
		InTried:     entry.inTried,
		Time:        entry.time,
		Services:    entry.services,
		LastTry:     entry.lastTry,
		LastSuccess: entry.lastSuccess,
		Attempts:    entry.attempts,
		AliasCount:  b.idx.countAddr(addr) - 1,
	}, nil
}

// Select returns a random address, biased towards quality and freshness
// the way the original addrman's rejection-sampling Select does: pick a
// table (50/50 between new and tried, forced by newOnly or an empty
// table), pick a random bucket and starting position in it, scan linearly
// with wraparound for the first occupied slot, and accept that entry with
// probability min(1, f*chance(entry)) — retrying with a climbing f
// (x1.2 per rejection) and, if the chosen bucket was entirely empty, with
// a fresh bucket pick too.
func (b *Book) Select(newOnly bool) (Address, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.nNew == 0 && b.nTried == 0 {
		return Address{}, 0, ErrNoCandidate
	}
	if newOnly && b.nNew == 0 {
		return Address{}, 0, ErrNoCandidate
	}

	useTried := !newOnly && b.nTried > 0 && (b.nNew == 0 || b.rng.Bool())
	bucketCount := newBucketCount
	if useTried {
		bucketCount = triedBucketCount
	}

	chanceFactor := 1.0
	for {
		bucket := b.rng.Intn(bucketCount)
		start := b.rng.Intn(bucketSize)

		var entry *addrEntry
		for i := 0; i < bucketSize; i++ {
			pos := (start + i) % bucketSize
			if e := b.idx.slot(slotKey{inTried: useTried, bucket: bucket, pos: pos}); e != nil {
				entry = e
				break
			}
		}
		if entry == nil {
			// Bucket was entirely empty: start over with a new pick.
			continue
		}

		chance := chanceFactor * selectChance(entry, b.now().Unix())
		if b.rng.Float64() < chance {
			return entry.addr, entry.lastTry, nil
		}
		chanceFactor *= 1.2
	}
}

// selectChance mirrors the original addrman's GetChance: an address tried
// in the last 10 minutes keeps 1% of its selection weight, and every
// counted failed attempt multiplies the weight by 0.66, counting at most 8
// attempts so no address ever becomes permanently unreachable.
func selectChance(e *addrEntry, now int64) float64 {
	chance := 1.0
	sinceLastTry := now - e.lastTry
	if sinceLastTry < 0 {
		sinceLastTry = 0
	}
	if sinceLastTry < 10*60 {
		chance *= 0.01
	}
	chance *= pow66(e.attempts)
	return chance
}

func pow66(attempts int) float64 {
	if attempts > 8 {
		attempts = 8
	}
	v := 1.0
	for i := 0; i < attempts; i++ {
		v *= 0.66
	}
	return v
}

// GetAddr returns up to maxAddresses (capped additionally at maxPct
// percent of the table) addresses, optionally restricted to a single
// network family, sampled without replacement via a prefix Fisher-Yates
// shuffle over the random vector, skipping any entry that fails the
// network filter or is_terrible.
func (b *Book) GetAddr(maxAddresses int, maxPct int, network *Network) []Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := len(b.random)
	if total == 0 {
		return nil
	}
	if maxPct <= 0 || maxPct > 100 {
		maxPct = maxPctGetAddr
	}
	limit := total * maxPct / 100
	if maxAddresses > 0 && maxAddresses < limit {
		limit = maxAddresses
	}
	if limit > maxAddrToSend {
		limit = maxAddrToSend
	}
	if limit > total {
		limit = total
	}

	out := make([]Address, 0, limit)
	for i := 0; i < total && len(out) < limit; i++ {
		j := i + b.rng.Intn(total-i)
		b.random[i], b.random[j] = b.random[j], b.random[i]
		b.random[i].randomPos, b.random[j].randomPos = i, j

		e := b.random[i]
		if network != nil && e.addr.Net != *network {
			continue
		}
		if b.isTerrible(e) {
			continue
		}
		out = append(out, e.addr)
	}
	return out
}

// SelectTriedCollision picks a uniformly random pending collision and
// returns the tried-table occupant it collides with, if the collision
// still exists.
func (b *Book) SelectTriedCollision() (Address, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.collisions) == 0 {
		return Address{}, 0, ErrNoCandidate
	}
	e := b.collisions[b.rng.Intn(len(b.collisions))]
	occupant := b.idx.slot(slotKey{inTried: true, bucket: e.pendingTriedBucket, pos: e.pendingTriedPos})
	if occupant == nil {
		return Address{}, 0, ErrNoCandidate
	}
	return occupant.addr, occupant.lastTry, nil
}

// ResolveCollisions walks every pending tried-slot collision and resolves
// it: a collision whose tried slot has since become free is resolved by
// promoting the challenger; one whose slot already holds the challenger's
// own address is dropped outright; a healthy incumbent (recent success) keeps its slot and the challenger is
// dropped; an incumbent that has been failing to connect for a while is
// evicted to new in the challenger's favor once it's had at least 60
// seconds to prove itself; and a challenger that has waited past the test
// window is promoted regardless, on the assumption the incumbent is simply
// unreachable. Anything not matching one of those is left pending for the
// next round.
func (b *Book) ResolveCollisions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCheck()

	now := b.now().Unix()
	for _, e := range append([]*addrEntry{}, b.collisions...) {
		bucket, pos := b.hasher.rebucket(true, e.addr, e.source)
		occupant := b.idx.slot(slotKey{inTried: true, bucket: bucket, pos: pos})

		switch {
		case occupant == nil:
			b.removeFromCollisionSet(e)
			b.good(e.addr, now, false)
		case occupant.addr.Equal(e.addr):
			b.removeFromCollisionSet(e)
		case now-occupant.lastSuccess < replacementHoursSecs:
			b.removeFromCollisionSet(e)
		case now-occupant.lastTry < replacementHoursSecs && now-occupant.lastTry > 60:
			b.removeFromCollisionSet(e)
			b.good(e.addr, now, false)
		case now-e.lastSuccess > testWindowSecs:
			b.removeFromCollisionSet(e)
			b.good(e.addr, now, false)
		default:
			// Leave pending for the next round.
		}
	}

	b.maybeCheck()
}

func (b *Book) maybeCheck() {
	if b.consistencyCheckRatio <= 0 {
		return
	}
	if b.rng.Chance(b.consistencyCheckRatio) {
		if err := b.check(); err != nil {
			// The table is not designed to survive an invariant violation;
			// continuing would serve corrupted candidates to the dialer.
			panic(err)
		}
	}
}

func randomKey(key *[32]byte) {
	rngSource := newBookRNG(false)
	for i := range key {
		key[i] = byte(rngSource.Intn(256))
	}
}
