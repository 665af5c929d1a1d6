// Package identity computes the keys that partition records into streams and
// sessions, including the anchor search for data without an explicit session
// anchor.
package identity

import (
	"cmp"
	"fmt"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
)

// StreamKey identifies one physical playback stream.
type StreamKey struct {
	InitID  uint32
	UserID  uint32
	ExptID  uint32
	Server  uint32
	Channel uint32
}

// StreamKeyOf derives the stream key of a record observed at entity.
func StreamKeyOf(id record.Identity, entity record.EntityKey) StreamKey {
	return StreamKey{
		InitID:  id.InitID,
		UserID:  id.UserID,
		ExptID:  id.ExptID,
		Server:  entity.Server,
		Channel: entity.Channel,
	}
}

func (k StreamKey) String() string {
	return fmt.Sprintf("init_id=%d user=%d expt=%d server=%d channel=%d",
		k.InitID, k.UserID, k.ExptID, k.Server, k.Channel)
}

// Compare gives StreamKeys a total order.
func (k StreamKey) Compare(o StreamKey) int {
	return cmp.Or(
		cmp.Compare(k.InitID, o.InitID),
		cmp.Compare(k.UserID, o.UserID),
		cmp.Compare(k.ExptID, o.ExptID),
		cmp.Compare(k.Server, o.Server),
		cmp.Compare(k.Channel, o.Channel),
	)
}

// ClientInfoKey identifies the client metadata of one stream.
type ClientInfoKey struct {
	InitID uint32
	UserID uint32
	ExptID uint32
}

// ClientInfoKeyOf derives the client-info key of a record.
func ClientInfoKeyOf(id record.Identity) ClientInfoKey {
	return ClientInfoKey{InitID: id.InitID, UserID: id.UserID, ExptID: id.ExptID}
}

// SessionKey groups the streams of one viewing session.
type SessionKey struct {
	Anchor uint32
	UserID uint32
	// Unanchored is set to the stream's own key when no anchor was found,
	// so that stream is a session of one. It is zero for anchored sessions;
	// server ids start at 1, so a stream key is never zero.
	Unanchored StreamKey
}

func (k SessionKey) String() string {
	if k.Unanchored != (StreamKey{}) {
		return "unanchored " + k.Unanchored.String()
	}
	return fmt.Sprintf("anchor=%d user=%d", k.Anchor, k.UserID)
}
