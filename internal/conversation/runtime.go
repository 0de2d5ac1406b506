package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/api"
	"github.com/makerlink/chat/internal/transport"
	"github.com/makerlink/chat/pkg/logger"
)

// PreviewReleaser frees a local image preview handle. The UI layer that
// minted the handle supplies the implementation.
type PreviewReleaser interface {
	Release(ref string)
}

// NopPreviewReleaser discards release calls; useful for headless clients
// that never mint preview handles.
type NopPreviewReleaser struct{}

func (NopPreviewReleaser) Release(string) {}

// Runtime interprets conversation effects against the REST client and the
// realtime transport.
//
// Blocking calls run on their own goroutines and report back through emit as
// generation-tagged events; the reducer discards reports from a superseded
// session, so a slow call from a previous Open can never corrupt the current
// one.
type Runtime struct {
	api       *api.Client
	transport transport.Transport
	previews  PreviewReleaser
	clock     actor.Clock

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

var _ actor.Runtime = (*Runtime)(nil)

// NewRuntime builds a runtime over the given REST client and transport.
// A nil previews releaser defaults to NopPreviewReleaser.
func NewRuntime(apiClient *api.Client, tr transport.Transport, previews PreviewReleaser, clock actor.Clock) *Runtime {
	if previews == nil {
		previews = NopPreviewReleaser{}
	}
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		api:       apiClient,
		transport: tr,
		previews:  previews,
		clock:     clock,
		timers:    make(map[string]*time.Timer),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effFetchHistory:
			r.fetchHistory(ctx, e, emit)
		case effEmitMessage:
			r.emitMessage(e, emit)
		case effUploadImage:
			r.uploadImage(ctx, e, emit)
		case effReleasePreview:
			r.previews.Release(e.Ref)
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e.Name)
		case effJobComplete:
			r.completeJob(ctx, e, emit)
		case effEscrow:
			r.escrow(ctx, e, emit)
		default:
			logger.Warnf("conversation: unhandled effect %T", eff)
		}
	}
}

// Stop cancels pending timers and waits for in-flight calls to settle.
func (r *Runtime) Stop() {
	r.mu.Lock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runtime) fetchHistory(ctx context.Context, e effFetchHistory, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		hist, err := r.api.FetchHistory(ctx, e.ConversationID)
		if ctx.Err() != nil {
			return
		}
		emit(evHistoryFetched{
			Gen:          e.Gen,
			Messages:     hist.Messages,
			Participants: hist.Participants,
			Err:          err,
			Now:          r.clock.Now(),
		})
	}()
}

func (r *Runtime) emitMessage(e effEmitMessage, emit func(actor.Input)) {
	if err := r.transport.Emit(transport.EventMessage, e.Payload); err != nil {
		emit(evEmitFailed{Gen: e.Gen, ClientID: e.ClientID, Err: err})
	}
}

func (r *Runtime) uploadImage(ctx context.Context, e effUploadImage, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		url, err := r.api.UploadImage(ctx, e.FileName, e.Data)
		if ctx.Err() != nil {
			return
		}
		emit(evUploadFinished{
			Gen:      e.Gen,
			ClientID: e.ClientID,
			ImageURL: url,
			Err:      err,
			Now:      r.clock.Now(),
		})
	}()
}

func (r *Runtime) completeJob(ctx context.Context, e effJobComplete, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.api.CompleteJob(ctx, e.JobID)
		if ctx.Err() != nil {
			return
		}
		emit(evSideChannelFinished{Gen: e.Gen, ClientID: e.ClientID, Err: err})
	}()
}

func (r *Runtime) escrow(ctx context.Context, e effEscrow, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var err error
		switch e.Op {
		case EscrowCreate:
			err = r.api.CreateEscrow(ctx, e.JobID, e.Amount)
		case EscrowFund:
			err = r.api.FundEscrow(ctx, e.EscrowID)
		case EscrowRelease:
			err = r.api.ReleaseEscrow(ctx, e.EscrowID)
		}
		if ctx.Err() != nil {
			return
		}
		emit(evSideChannelFinished{Gen: e.Gen, ClientID: e.ClientID, Err: err})
	}()
}

func (r *Runtime) startTimer(ctx context.Context, e effStartTimer, emit func(actor.Input)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.timers[e.Name]; ok {
		old.Stop()
	}
	name, gen := e.Name, e.Gen
	r.timers[name] = time.AfterFunc(e.After, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		emit(evTimerFired{Gen: gen, Name: name})
	})
}

func (r *Runtime) cancelTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}
