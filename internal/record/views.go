package record

import "math"

// Identity holds the fields every kind carries.
type Identity struct {
	FirstInitID    uint32
	HasFirstInitID bool
	InitID         uint32
	ExptID         uint32
	UserID         uint32
}

func (r *Record) identity() Identity {
	first, ok := r.Get(FieldFirstInitID)
	return Identity{
		FirstInitID:    uint32(first),
		HasFirstInitID: ok,
		InitID:         r.u32(FieldInitID),
		ExptID:         r.u32(FieldExptID),
		UserID:         r.u32(FieldUser),
	}
}

// Event is a typed view of a playback record.
type Event struct {
	Identity
	Type     EventType
	Buffer   float64
	CumRebuf float64
}

// ClientInfo is a typed view of a client-info record.
type ClientInfo struct {
	Identity
	Browser uint32
	OS      uint32
	IP      uint32
}

// ChunkSent is a typed view of a chunk-sent record.
type ChunkSent struct {
	Identity
	SSIMIndex    float64
	DeliveryRate uint32
	Size         uint32
	Format       uint32
	HasFormat    bool
}

// ChunkAcked is a typed view of a chunk-acknowledgement record.
type ChunkAcked struct {
	Identity
	VideoTS uint64
}

func (r *Record) f32(f Field) float64 {
	v, _ := r.Get(f)
	return float64(math.Float32frombits(uint32(v)))
}

// Event returns the playback view of r.
func (r *Record) Event() Event {
	return Event{
		Identity: r.identity(),
		Type:     EventType(r.u32(FieldEvent)),
		Buffer:   r.f32(FieldBuffer),
		CumRebuf: r.f32(FieldCumRebuf),
	}
}

// ClientInfo returns the client-info view of r.
func (r *Record) ClientInfo() ClientInfo {
	return ClientInfo{
		Identity: r.identity(),
		Browser:  r.u32(FieldBrowser),
		OS:       r.u32(FieldOS),
		IP:       r.u32(FieldIP),
	}
}

// ChunkSent returns the chunk-sent view of r.
func (r *Record) ChunkSent() ChunkSent {
	format, ok := r.Get(FieldFormat)
	return ChunkSent{
		Identity:     r.identity(),
		SSIMIndex:    r.f32(FieldSSIMIndex),
		DeliveryRate: r.u32(FieldDeliveryRate),
		Size:         r.u32(FieldSize),
		Format:       uint32(format),
		HasFormat:    ok,
	}
}

// ChunkAcked returns the chunk-acknowledgement view of r.
func (r *Record) ChunkAcked() ChunkAcked {
	ts, _ := r.Get(FieldVideoTS)
	return ChunkAcked{Identity: r.identity(), VideoTS: ts}
}
