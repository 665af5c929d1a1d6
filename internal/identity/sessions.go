package identity

import (
	"cmp"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"
)

// SessionNamer produces the external name of a session.
type SessionNamer interface {
	Name(key SessionKey, user string) (string, error)
}

// Blake3Namer names sessions by a keyed BLAKE3 hash of anchor and username.
// Names are stable across runs that use the same key.
type Blake3Namer struct {
	key [32]byte
}

// NewBlake3Namer returns a namer keyed with key, which must be 32 bytes.
func NewBlake3Namer(key []byte) (*Blake3Namer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	n := &Blake3Namer{}
	copy(n.key[:], key)
	return n, nil
}

// NewBlake3NamerHex parses a 64-character hex key. An empty string selects a
// random key, so names are only stable within the run.
func NewBlake3NamerHex(s string) (*Blake3Namer, error) {
	if s == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session key: %w", err)
		}
		return NewBlake3Namer(key)
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding session key: %w", err)
	}
	return NewBlake3Namer(key)
}

// Name implements SessionNamer. Anchored sessions hash anchor and username;
// an unanchored session also hashes its stream key.
func (n *Blake3Namer) Name(key SessionKey, user string) (string, error) {
	h, err := blake3.NewKeyed(n.key[:])
	if err != nil {
		return "", err
	}
	buf := binary.BigEndian.AppendUint32(nil, key.Anchor)
	if u := key.Unanchored; u != (StreamKey{}) {
		for _, v := range []uint32{u.InitID, u.ExptID, u.Server, u.Channel} {
			buf = binary.BigEndian.AppendUint32(buf, v)
		}
	}
	_, _ = h.Write(buf)
	_, _ = h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SessionStream is one stream's position within its session.
type SessionStream struct {
	Key   StreamKey
	Index uint32
}

// Session groups streams that share an anchor and user.
type Session struct {
	Key     SessionKey
	Name    string
	Source  AnchorSource
	Streams []SessionStream
}

// Sessions accumulates streams into sessions in discovery order.
type Sessions struct {
	namer  SessionNamer
	byKey  map[SessionKey]*Session
	order  []SessionKey
	stream map[StreamKey]SessionKey
}

// NewSessions returns an empty grouping. A nil namer leaves names empty.
func NewSessions(namer SessionNamer) *Sessions {
	return &Sessions{
		namer:  namer,
		byKey:  make(map[SessionKey]*Session),
		stream: make(map[StreamKey]SessionKey),
	}
}

// SessionKeyFor returns the session a resolved stream belongs to. A stream
// without an anchor gets a session of its own.
func SessionKeyFor(key StreamKey, res Resolution) SessionKey {
	skey := SessionKey{Anchor: res.Anchor, UserID: key.UserID}
	if res.Source == AnchorNone {
		skey.Unanchored = key
	}
	return skey
}

// Add places a resolved stream in its session and returns the session and
// the stream's index within it. The index is init_id - first_init_id for
// explicitly anchored streams and discovery order otherwise. Adding the same
// stream twice returns its existing position.
func (s *Sessions) Add(key StreamKey, res Resolution, user string) (*Session, uint32, error) {
	skey := SessionKeyFor(key, res)
	sess, ok := s.byKey[skey]
	if !ok {
		sess = &Session{Key: skey, Source: res.Source}
		if s.namer != nil {
			name, err := s.namer.Name(skey, user)
			if err != nil {
				return nil, 0, fmt.Errorf("naming session %v: %w", skey, err)
			}
			sess.Name = name
		}
		s.byKey[skey] = sess
		s.order = append(s.order, skey)
	}

	if prev, seen := s.stream[key]; seen && prev == skey {
		for _, st := range sess.Streams {
			if st.Key == key {
				return sess, st.Index, nil
			}
		}
	}

	index := uint32(len(sess.Streams))
	if res.Source == AnchorExplicit {
		index = res.Distance
	}
	sess.Streams = append(sess.Streams, SessionStream{Key: key, Index: index})
	s.stream[key] = skey
	return sess, index, nil
}

// Len returns the number of sessions.
func (s *Sessions) Len() int { return len(s.order) }

// Get returns the session for key.
func (s *Sessions) Get(key SessionKey) (*Session, bool) {
	sess, ok := s.byKey[key]
	return sess, ok
}

// All returns sessions in discovery order, each with its streams sorted by
// index.
func (s *Sessions) All() []*Session {
	out := make([]*Session, 0, len(s.order))
	for _, k := range s.order {
		sess := s.byKey[k]
		slices.SortStableFunc(sess.Streams, func(a, b SessionStream) int {
			return cmp.Or(cmp.Compare(a.Index, b.Index), a.Key.Compare(b.Key))
		})
		out = append(out, sess)
	}
	return out
}

// MultiStream returns the number of sessions holding more than one stream.
func (s *Sessions) MultiStream() int {
	n := 0
	for _, sess := range s.byKey {
		if len(sess.Streams) > 1 {
			n++
		}
	}
	return n
}
