package identity

// DefaultSearchDepth bounds the decrement search. The value is empirical.
const DefaultSearchDepth = 1024

// AnchorSource records how a stream's session anchor was found.
type AnchorSource uint8

const (
	// AnchorNone means no anchor was found; the stream stands alone.
	AnchorNone AnchorSource = iota
	// AnchorExplicit means the stream carried first_init_id.
	AnchorExplicit
	// AnchorDecrement means a decremented init_id matched client metadata.
	AnchorDecrement
)

func (s AnchorSource) String() string {
	switch s {
	case AnchorExplicit:
		return "explicit"
	case AnchorDecrement:
		return "decrement"
	}
	return "none"
}

// Resolution is the outcome of anchor resolution for one stream.
type Resolution struct {
	Source AnchorSource
	// Anchor is the session anchor. With AnchorNone it is the stream's own
	// init_id so that the stream forms a session of one.
	Anchor uint32
	// Distance is init_id - Anchor.
	Distance uint32
	// BeforeAnchor is set when an explicit first_init_id is greater than the
	// stream's init_id. Distance is then 0.
	BeforeAnchor bool
	// ClientInfo is the client-metadata key that was matched.
	ClientInfo ClientInfoKey
	// HasClientInfo reports whether ClientInfo exists in the index.
	HasClientInfo bool
}

// Stream is what a strategy knows about the stream being resolved, taken
// from its first event.
type Stream struct {
	Key            StreamKey
	FirstInitID    uint32
	HasFirstInitID bool
}

// ClientInfoIndex answers whether client metadata exists for a key.
type ClientInfoIndex interface {
	HasClientInfo(ClientInfoKey) bool
}

// KeySet is a ClientInfoIndex backed by a set.
type KeySet map[ClientInfoKey]struct{}

// HasClientInfo implements ClientInfoIndex.
func (s KeySet) HasClientInfo(k ClientInfoKey) bool {
	_, ok := s[k]
	return ok
}

// AnchorStrategy resolves a session anchor. The boolean reports whether the
// strategy applies to the stream at all; a strategy that applies but finds
// nothing returns a Resolution with Source AnchorNone.
type AnchorStrategy interface {
	Resolve(s Stream, known ClientInfoIndex) (Resolution, bool)
}

// ExplicitAnchor uses first_init_id when the stream carries it. Data that
// carries first_init_id also records client metadata for every stream, so
// the metadata is looked up under the stream's own init_id.
type ExplicitAnchor struct{}

// Resolve implements AnchorStrategy.
func (ExplicitAnchor) Resolve(s Stream, known ClientInfoIndex) (Resolution, bool) {
	if !s.HasFirstInitID {
		return Resolution{}, false
	}
	key := ClientInfoKey{InitID: s.Key.InitID, UserID: s.Key.UserID, ExptID: s.Key.ExptID}
	res := Resolution{
		Source:        AnchorExplicit,
		Anchor:        s.FirstInitID,
		ClientInfo:    key,
		HasClientInfo: known.HasClientInfo(key),
	}
	if s.Key.InitID >= s.FirstInitID {
		res.Distance = s.Key.InitID - s.FirstInitID
	} else {
		res.BeforeAnchor = true
	}
	return res, true
}

// DecrementSearch tries init_id - d for d = 0 .. Depth-1 against the known
// client metadata of the same user and experiment, and takes the first hit.
//
// This assumes init_id counts up by one per stream within a session and that
// the session's client metadata was recorded under one of those values. It
// is a heuristic: streams from different sessions of the same user can be
// merged when their init_ids are close, and a session longer than Depth
// streams loses its anchor.
type DecrementSearch struct {
	Depth int
}

// Resolve implements AnchorStrategy.
func (d DecrementSearch) Resolve(s Stream, known ClientInfoIndex) (Resolution, bool) {
	depth := d.Depth
	if depth <= 0 {
		depth = DefaultSearchDepth
	}
	for dec := 0; dec < depth && uint32(dec) <= s.Key.InitID; dec++ {
		key := ClientInfoKey{
			InitID: s.Key.InitID - uint32(dec),
			UserID: s.Key.UserID,
			ExptID: s.Key.ExptID,
		}
		if known.HasClientInfo(key) {
			return Resolution{
				Source:        AnchorDecrement,
				Anchor:        key.InitID,
				Distance:      uint32(dec),
				ClientInfo:    key,
				HasClientInfo: true,
			}, true
		}
	}
	return Resolution{Source: AnchorNone, Anchor: s.Key.InitID}, true
}

// Resolver applies strategies in order; the first that applies decides.
type Resolver struct {
	Strategies []AnchorStrategy
}

// NewResolver returns the standard chain: explicit anchor, then decrement
// search with the given depth.
func NewResolver(depth int) *Resolver {
	return &Resolver{Strategies: []AnchorStrategy{
		ExplicitAnchor{},
		DecrementSearch{Depth: depth},
	}}
}

// Resolve never fails. A stream that no strategy anchors resolves to
// AnchorNone.
func (r *Resolver) Resolve(s Stream, known ClientInfoIndex) Resolution {
	for _, strat := range r.Strategies {
		if res, ok := strat.Resolve(s, known); ok {
			return res
		}
	}
	return Resolution{Source: AnchorNone, Anchor: s.Key.InitID}
}
