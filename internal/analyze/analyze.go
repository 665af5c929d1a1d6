package analyze

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/chunks"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/identity"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/quality"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/stats"
	"github.com/StanfordSNR/puffer-statistics-sub000/internal/validate"
)

// Result describes a finished analysis.
type Result struct {
	Totals    *stats.Totals
	Extras    stats.Extras
	Sessions  *identity.Sessions
	Validator *validate.Validator
	// ClientInfos is the number of distinct client-info keys.
	ClientInfos int
	// DroppedClientInfo counts client_sysinfo points with an invalid server
	// id.
	DroppedClientInfo int
}

// BadRecords returns excluded records per measurement.
func (r *Result) BadRecords() map[string]int {
	m := make(map[string]int, len(record.Kinds))
	for _, k := range record.Kinds {
		if n := r.Validator.Bad(k); n > 0 {
			m[k.String()] = n
		}
	}
	return m
}

// stream is one reconstructed playback stream.
type stream struct {
	key         identity.StreamKey
	samples     []quality.Sample
	firstInitID uint32
	hasFirst    bool

	res    identity.Resolution
	report stats.Stream
}

func (s *stream) baseTime() int64 { return s.samples[0].Timestamp }

// accumulated is the validated content of the stores.
type accumulated struct {
	streams     []*stream
	clientInfo  map[identity.ClientInfoKey]*record.Record
	chunks      map[identity.StreamKey][]chunks.Chunk
	ackedChunks int
}

// Analyze validates and groups everything ingested so far, then writes one
// line per stream followed by the '#' aggregate lines to w. Streams are
// written in order of first event, ties broken by stream key, for any
// number of workers. On error nothing is guaranteed about what was written;
// callers that need all-or-nothing output should buffer w.
func (e *Engine) Analyze(ctx context.Context, w io.Writer) (*Result, error) {
	v := validate.New()
	acc, err := e.accumulate(ctx, v)
	if err != nil {
		return nil, err
	}

	sessions := identity.NewSessions(e.cfg.Namer)
	known := make(identity.KeySet, len(acc.clientInfo))
	for k := range acc.clientInfo {
		known[k] = struct{}{}
	}
	resolver := identity.NewResolver(e.cfg.SearchDepth)
	for _, s := range acc.streams {
		s.res = resolver.Resolve(identity.Stream{
			Key:            s.key,
			FirstInitID:    s.firstInitID,
			HasFirstInitID: s.hasFirst,
		}, known)
		if s.res.BeforeAnchor {
			e.diag.Report(record.KindPlayback.String(), ReasonInitBeforeAnchor,
				fmt.Sprintf("%v first_init_id=%d", s.key, s.firstInitID))
		}
		user := e.tables.Users.MustName(s.key.UserID)
		if _, _, err := sessions.Add(s.key, s.res, user); err != nil {
			return nil, err
		}
	}
	for _, sess := range sessions.All() {
		e.logger.Debug("session_resolved",
			"session", sess.Name,
			"key", sess.Key.String(),
			"source", sess.Source.String(),
			"streams", len(sess.Streams),
		)
	}
	e.logger.Info("sessions_resolved",
		"streams", len(acc.streams),
		"sessions", sessions.Len(),
		"multi_stream_sessions", sessions.MultiStream(),
	)

	if err := e.classify(ctx, acc); err != nil {
		return nil, err
	}

	totals := stats.NewTotals()
	buf := make([]byte, 0, 512)
	for _, s := range acc.streams {
		buf = stats.AppendLine(buf[:0], s.report)
		if _, err := w.Write(buf); err != nil {
			return nil, fmt.Errorf("writing report: %w", err)
		}
		totals.Add(s.report)
		e.cfg.Observer.StreamReported(s.report)
	}

	res := &Result{
		Totals:    totals,
		Sessions:  sessions,
		Validator: v,
		Extras: stats.Extras{
			BadRecords:          v.TotalBad(),
			BadTimestamps:       e.badTimestamps,
			AckedChunks:         acc.ackedChunks,
			Sessions:            sessions.Len(),
			MultiStreamSessions: sessions.MultiStream(),
		},
		ClientInfos:       len(acc.clientInfo),
		DroppedClientInfo: e.droppedClientInfo,
	}
	if err := totals.WriteAggregates(w, res.Extras); err != nil {
		return nil, fmt.Errorf("writing aggregates: %w", err)
	}
	return res, nil
}

func (e *Engine) checkpoint(stage string, position int64) error {
	if e.cfg.Guard == nil {
		return nil
	}
	return e.cfg.Guard.Check(stage, position)
}

// admit runs the validator over one store and hands admitted records to fn.
func (e *Engine) admit(ctx context.Context, v *validate.Validator, kind record.Kind, fn func(entity record.EntityKey, ts int64, r *record.Record) error) error {
	if err := e.checkpoint("accumulate_"+kind.String(), int64(e.stores[kind].Len())); err != nil {
		return err
	}
	var n int
	return e.stores[kind].Each(func(entity record.EntityKey, ts int64, r *record.Record) error {
		n++
		if n&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ok, err := v.Admit(kind, entity, ts, r)
		if err != nil {
			return err
		}
		if !ok {
			e.cfg.Observer.RecordExcluded(kind)
			e.diag.Report(kind.String(), ReasonBadRecord, fmt.Sprintf("%s ts=%d %s", entity, ts, r.Format(e.tables)))
			return nil
		}
		return fn(entity, ts, r)
	})
}

func (e *Engine) accumulate(ctx context.Context, v *validate.Validator) (*accumulated, error) {
	acc := &accumulated{
		clientInfo: make(map[identity.ClientInfoKey]*record.Record),
		chunks:     make(map[identity.StreamKey][]chunks.Chunk),
	}

	byKey := make(map[identity.StreamKey]*stream)
	err := e.admit(ctx, v, record.KindPlayback, func(entity record.EntityKey, ts int64, r *record.Record) error {
		ev := r.Event()
		key := identity.StreamKeyOf(ev.Identity, entity)
		s, ok := byKey[key]
		if !ok {
			// The first event decides whether the stream carries an
			// explicit session anchor.
			s = &stream{key: key, firstInitID: ev.FirstInitID, hasFirst: ev.HasFirstInitID}
			byKey[key] = s
			acc.streams = append(acc.streams, s)
		}
		s.samples = append(s.samples, quality.SampleOf(ts, ev))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.admit(ctx, v, record.KindClientInfo, func(_ record.EntityKey, _ int64, r *record.Record) error {
		key := identity.ClientInfoKeyOf(r.ClientInfo().Identity)
		prev, ok := acc.clientInfo[key]
		if !ok {
			acc.clientInfo[key] = r
			return nil
		}
		if !prev.Equal(r) {
			return &ClientInfoConflictError{
				Key:      key,
				Existing: prev.Format(e.tables),
				Incoming: r.Format(e.tables),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.admit(ctx, v, record.KindChunkSent, func(entity record.EntityKey, _ int64, r *record.Record) error {
		cs := r.ChunkSent()
		key := identity.StreamKeyOf(cs.Identity, entity)
		acc.chunks[key] = append(acc.chunks[key], chunks.ChunkOf(cs))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.admit(ctx, v, record.KindChunkAcked, func(record.EntityKey, int64, *record.Record) error {
		acc.ackedChunks++
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(acc.streams, func(a, b *stream) int {
		return cmp.Or(cmp.Compare(a.baseTime(), b.baseTime()), a.key.Compare(b.key))
	})
	return acc, nil
}

// classify fills in every stream's report on up to Workers goroutines. Each
// goroutine writes only its own stream.
func (e *Engine) classify(ctx context.Context, acc *accumulated) error {
	classifier := quality.New(e.cfg.Thresholds)
	if err := e.checkpoint("classify", int64(len(acc.streams))); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, s := range acc.streams {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scheme := e.cfg.Experiments.Label(s.key.ExptID)
			summary := chunks.MissingSummary()
			if cs, ok := acc.chunks[s.key]; ok {
				summary = chunks.Summarize(cs, e.cfg.SSIMCeiling)
			}
			s.report = stats.Stream{
				Quality:           classifier.Classify(s.samples, scheme, s.key.InitID),
				Chunks:            summary,
				MissingClientInfo: !s.res.HasClientInfo,
			}
			return nil
		})
	}
	return g.Wait()
}
