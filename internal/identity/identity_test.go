package identity

import (
	"bytes"
	"strings"
	"testing"
)

// =============================================================================
// Anchor Resolution
// =============================================================================

func TestExplicitAnchor(t *testing.T) {
	known := KeySet{{InitID: 104, UserID: 1, ExptID: 3}: {}}
	s := Stream{
		Key:            StreamKey{InitID: 104, UserID: 1, ExptID: 3},
		FirstInitID:    100,
		HasFirstInitID: true,
	}

	res, ok := ExplicitAnchor{}.Resolve(s, known)
	if !ok {
		t.Fatal("explicit anchor should apply when first_init_id is present")
	}
	if res.Source != AnchorExplicit || res.Anchor != 100 || res.Distance != 4 {
		t.Errorf("Resolve() = %+v", res)
	}
	if !res.HasClientInfo {
		t.Error("client info under the stream's own init_id should be found")
	}

	s.HasFirstInitID = false
	if _, ok := (ExplicitAnchor{}).Resolve(s, known); ok {
		t.Error("explicit anchor should not apply without first_init_id")
	}
}

func TestExplicitAnchor_BeforeAnchor(t *testing.T) {
	s := Stream{
		Key:            StreamKey{InitID: 98, UserID: 1, ExptID: 3},
		FirstInitID:    100,
		HasFirstInitID: true,
	}
	res, _ := ExplicitAnchor{}.Resolve(s, KeySet{})
	if !res.BeforeAnchor || res.Distance != 0 || res.Anchor != 100 {
		t.Errorf("Resolve() = %+v, want BeforeAnchor with distance 0", res)
	}

	s.Key.InitID = 100
	if res, _ := (ExplicitAnchor{}).Resolve(s, KeySet{}); res.BeforeAnchor {
		t.Error("the anchor stream itself is not before the anchor")
	}
}

// Explicit anchors are authoritative: a missing client-info record does not
// fall through to the decrement search, even when the anchor itself has one.
func TestResolver_ExplicitMissDoesNotSearch(t *testing.T) {
	known := KeySet{{InitID: 100, UserID: 1, ExptID: 3}: {}}
	s := Stream{
		Key:            StreamKey{InitID: 104, UserID: 1, ExptID: 3},
		FirstInitID:    100,
		HasFirstInitID: true,
	}
	res := NewResolver(DefaultSearchDepth).Resolve(s, known)
	if res.Source != AnchorExplicit || res.HasClientInfo {
		t.Errorf("Resolve() = %+v, want explicit anchor without client info", res)
	}
}

// The decrement search is a heuristic: it takes the closest client-info
// record at or below init_id, not necessarily the true session start.
func TestDecrementSearch_Heuristic(t *testing.T) {
	tests := []struct {
		name       string
		known      KeySet
		initID     uint32
		depth      int
		wantSource AnchorSource
		wantAnchor uint32
		wantDist   uint32
	}{
		{
			name:       "exact match",
			known:      KeySet{{InitID: 50, UserID: 1, ExptID: 2}: {}},
			initID:     50,
			wantSource: AnchorDecrement,
			wantAnchor: 50,
		},
		{
			name:       "three back",
			known:      KeySet{{InitID: 47, UserID: 1, ExptID: 2}: {}},
			initID:     50,
			wantSource: AnchorDecrement,
			wantAnchor: 47,
			wantDist:   3,
		},
		{
			name: "closest wins over earlier session",
			known: KeySet{
				{InitID: 40, UserID: 1, ExptID: 2}: {},
				{InitID: 48, UserID: 1, ExptID: 2}: {},
			},
			initID:     50,
			wantSource: AnchorDecrement,
			wantAnchor: 48,
			wantDist:   2,
		},
		{
			name:       "other user ignored",
			known:      KeySet{{InitID: 49, UserID: 9, ExptID: 2}: {}},
			initID:     50,
			wantSource: AnchorNone,
			wantAnchor: 50,
		},
		{
			name:       "other experiment ignored",
			known:      KeySet{{InitID: 49, UserID: 1, ExptID: 7}: {}},
			initID:     50,
			wantSource: AnchorNone,
			wantAnchor: 50,
		},
		{
			name:       "beyond depth",
			known:      KeySet{{InitID: 40, UserID: 1, ExptID: 2}: {}},
			initID:     50,
			depth:      10,
			wantSource: AnchorNone,
			wantAnchor: 50,
		},
		{
			name:       "at last step of depth",
			known:      KeySet{{InitID: 41, UserID: 1, ExptID: 2}: {}},
			initID:     50,
			depth:      10,
			wantSource: AnchorDecrement,
			wantAnchor: 41,
			wantDist:   9,
		},
		{
			name:       "no underflow below zero",
			known:      KeySet{},
			initID:     2,
			wantSource: AnchorNone,
			wantAnchor: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stream{Key: StreamKey{InitID: tt.initID, UserID: 1, ExptID: 2}}
			res, ok := DecrementSearch{Depth: tt.depth}.Resolve(s, tt.known)
			if !ok {
				t.Fatal("decrement search always applies")
			}
			if res.Source != tt.wantSource || res.Anchor != tt.wantAnchor || res.Distance != tt.wantDist {
				t.Errorf("Resolve() = %+v, want source=%v anchor=%d dist=%d",
					res, tt.wantSource, tt.wantAnchor, tt.wantDist)
			}
			if res.HasClientInfo != (tt.wantSource == AnchorDecrement) {
				t.Errorf("HasClientInfo = %v", res.HasClientInfo)
			}
		})
	}
}

func TestResolver_EmptyChain(t *testing.T) {
	r := &Resolver{}
	res := r.Resolve(Stream{Key: StreamKey{InitID: 9}}, KeySet{})
	if res.Source != AnchorNone || res.Anchor != 9 {
		t.Errorf("Resolve() = %+v, want none anchored at own init_id", res)
	}
}

// =============================================================================
// Sessions
// =============================================================================

type fixedNamer struct{}

func (fixedNamer) Name(key SessionKey, user string) (string, error) {
	return user + "-" + strings.Repeat("x", int(key.Anchor%3)), nil
}

func TestSessions_ExplicitIndex(t *testing.T) {
	s := NewSessions(fixedNamer{})
	k1 := StreamKey{InitID: 12, UserID: 1, Channel: 2}
	k0 := StreamKey{InitID: 10, UserID: 1, Channel: 1}

	_, idx, err := s.Add(k1, Resolution{Source: AnchorExplicit, Anchor: 10, Distance: 2}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}
	sess, idx, _ := s.Add(k0, Resolution{Source: AnchorExplicit, Anchor: 10}, "alice")
	if idx != 0 {
		t.Errorf("index = %d, want 0", idx)
	}
	if s.Len() != 1 || len(sess.Streams) != 2 {
		t.Fatalf("sessions = %d, streams = %d", s.Len(), len(sess.Streams))
	}

	all := s.All()
	if all[0].Streams[0].Key != k0 {
		t.Error("streams should be ordered by index")
	}
	if s.MultiStream() != 1 {
		t.Errorf("MultiStream() = %d, want 1", s.MultiStream())
	}
}

func TestSessions_DiscoveryIndexAndDedup(t *testing.T) {
	s := NewSessions(nil)
	res := Resolution{Source: AnchorDecrement, Anchor: 5}
	a := StreamKey{InitID: 7, UserID: 2}
	b := StreamKey{InitID: 6, UserID: 2}

	_, ia, _ := s.Add(a, res, "bob")
	_, ib, _ := s.Add(b, res, "bob")
	_, again, _ := s.Add(a, res, "bob")

	if ia != 0 || ib != 1 {
		t.Errorf("discovery indexes = %d, %d; want 0, 1", ia, ib)
	}
	if again != ia {
		t.Errorf("re-adding stream gave index %d, want %d", again, ia)
	}
	sess, _ := s.Get(SessionKey{Anchor: 5, UserID: 2})
	if len(sess.Streams) != 2 {
		t.Errorf("streams = %d, want 2", len(sess.Streams))
	}
	if sess.Name != "" {
		t.Error("nil namer should leave name empty")
	}
}

func TestSessions_SameAnchorDifferentUser(t *testing.T) {
	s := NewSessions(nil)
	res := Resolution{Source: AnchorExplicit, Anchor: 1}
	_, _, _ = s.Add(StreamKey{InitID: 1, UserID: 1}, res, "a")
	_, _, _ = s.Add(StreamKey{InitID: 1, UserID: 2}, res, "b")
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

// A stream without an anchor is classified on its own, even when another
// session of the same user is anchored at its init_id.
func TestSessions_UnanchoredStandsAlone(t *testing.T) {
	known := KeySet{{InitID: 100, UserID: 2, ExptID: 1}: {}}
	resolver := NewResolver(DefaultSearchDepth)
	s := NewSessions(fixedNamer{})

	found := StreamKey{InitID: 101, UserID: 2, ExptID: 1, Server: 1, Channel: 1}
	lost := StreamKey{InitID: 100, UserID: 2, ExptID: 2, Server: 1, Channel: 2}
	lostToo := StreamKey{InitID: 100, UserID: 2, ExptID: 2, Server: 1, Channel: 3}

	for _, k := range []StreamKey{found, lost, lostToo} {
		res := resolver.Resolve(Stream{Key: k}, known)
		if _, _, err := s.Add(k, res, "bob"); err != nil {
			t.Fatal(err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.MultiStream() != 0 {
		t.Errorf("MultiStream() = %d, want 0", s.MultiStream())
	}
	anchored, ok := s.Get(SessionKey{Anchor: 100, UserID: 2})
	if !ok || len(anchored.Streams) != 1 || anchored.Streams[0].Key != found {
		t.Errorf("anchored session = %+v", anchored)
	}
	alone, ok := s.Get(SessionKey{Anchor: 100, UserID: 2, Unanchored: lost})
	if !ok || alone.Source != AnchorNone || len(alone.Streams) != 1 {
		t.Errorf("unanchored session = %+v", alone)
	}
}

func TestSessionKeyFor(t *testing.T) {
	k := StreamKey{InitID: 7, UserID: 3, Server: 1}
	if got := SessionKeyFor(k, Resolution{Source: AnchorDecrement, Anchor: 5}); got != (SessionKey{Anchor: 5, UserID: 3}) {
		t.Errorf("anchored key = %v", got)
	}
	got := SessionKeyFor(k, Resolution{Source: AnchorNone, Anchor: 7})
	if got.Unanchored != k || !strings.HasPrefix(got.String(), "unanchored ") {
		t.Errorf("unanchored key = %v", got)
	}
}

// =============================================================================
// Session Naming
// =============================================================================

func TestBlake3Namer(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	n, err := NewBlake3Namer(key)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := n.Name(SessionKey{Anchor: 100}, "alice")
	b, _ := n.Name(SessionKey{Anchor: 100}, "alice")
	c, _ := n.Name(SessionKey{Anchor: 101}, "alice")
	d, _ := n.Name(SessionKey{Anchor: 100}, "bob")
	u1, _ := n.Name(SessionKey{Anchor: 100, Unanchored: StreamKey{InitID: 100, ExptID: 1, Server: 1}}, "alice")
	u2, _ := n.Name(SessionKey{Anchor: 100, Unanchored: StreamKey{InitID: 100, ExptID: 2, Server: 1}}, "alice")

	if len(a) != 64 {
		t.Errorf("name length = %d, want 64", len(a))
	}
	if a != b {
		t.Error("same input should give same name")
	}
	if a == c || a == d {
		t.Error("different sessions should get different names")
	}
	if u1 == a || u1 == u2 {
		t.Error("unanchored sessions should be named apart from each other and from anchored ones")
	}

	other, _ := NewBlake3Namer(bytes.Repeat([]byte{8}, 32))
	e, _ := other.Name(SessionKey{Anchor: 100}, "alice")
	if a == e {
		t.Error("different keys should give different names")
	}
}

func TestNewBlake3NamerHex(t *testing.T) {
	if _, err := NewBlake3NamerHex(strings.Repeat("ab", 32)); err != nil {
		t.Errorf("valid hex key rejected: %v", err)
	}
	if _, err := NewBlake3NamerHex("abcd"); err == nil {
		t.Error("short key should be rejected")
	}
	if _, err := NewBlake3NamerHex("zz"); err == nil {
		t.Error("non-hex key should be rejected")
	}
	if _, err := NewBlake3NamerHex(""); err != nil {
		t.Errorf("empty key should generate one: %v", err)
	}
}
