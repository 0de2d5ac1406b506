package conversation

import (
	"strings"
	"time"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/chat"
	"github.com/makerlink/chat/pkg/logger"
)

const typingTimerPrefix = "typing-"

// Reduce is the conversation session reducer.
//
// It is the only code that mutates the store, cache, and typing map, and it
// runs exclusively on the session loop. Inputs carrying a stale generation
// (from a previous Open) are dropped, which is the session-boundary
// cancellation for late history fetches, uploads, and broadcasts.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdOpen:
		return reduceOpen(state, in)
	case cmdSendText:
		return reduceSendText(state, in)
	case cmdSendImage:
		return reduceSendImage(state, in)
	case cmdRetry:
		return reduceRetry(state, in)
	case cmdCompleteJob:
		return reduceCompleteJob(state, in)
	case cmdEscrow:
		return reduceEscrow(state, in)
	case cmdShutdown:
		return reduceShutdown(state, in)

	case evHistoryFetched:
		return reduceHistoryFetched(state, in)
	case evNewMessage:
		return reduceNewMessage(state, in)
	case evMessageAck:
		return reduceMessageAck(state, in)
	case evEmitFailed:
		return reduceEmitFailed(state, in)
	case evUploadFinished:
		return reduceUploadFinished(state, in)
	case evSideChannelFinished:
		return reduceSideChannelFinished(state, in)
	case evTyping:
		return reduceTyping(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evTransportError:
		if in.Gen == state.Gen {
			logger.Warnf("conversation: transport error: %v", in.Err)
		}
		return state, nil
	default:
		return state, nil
	}
}

func reduceOpen(state State, cmd cmdOpen) (State, []actor.Effect) {
	if state.Closed {
		replyErr(cmd.Reply, ErrClosed)
		return state, nil
	}

	// Tear down the previous session: outstanding previews are released here
	// or on completion, never both, and a still-waiting Open caller is
	// settled rather than left blocked.
	effects := releaseAllPreviews(&state)
	if state.PendingOpenReply != nil {
		replyErr(state.PendingOpenReply, ErrSuperseded)
	}

	state.Gen = cmd.Gen
	state.ConversationID = cmd.ConversationID
	state.MakerID = ""
	state.CreatorID = ""
	state.HistoryLoaded = false
	state.Store = chat.NewStore()
	state.Cache.Reset()
	state.Typing.Reset()
	state.Uploads = make(map[string]uploadAttempt)
	state.PendingOpenReply = cmd.Reply

	effects = append(effects, effFetchHistory{Gen: cmd.Gen, ConversationID: cmd.ConversationID})
	return state, effects
}

func reduceHistoryFetched(state State, ev evHistoryFetched) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}

	if ev.Err != nil {
		logger.Errorf("conversation: history fetch failed for %s: %v", state.ConversationID, ev.Err)
		if state.PendingOpenReply != nil {
			replyErr(state.PendingOpenReply, ev.Err)
			state.PendingOpenReply = nil
		}
		return state, nil
	}

	if ev.Participants.MakerID != "" {
		state.MakerID = ev.Participants.MakerID
	}
	if ev.Participants.CreatorID != "" {
		state.CreatorID = ev.Participants.CreatorID
	}

	ctx := state.normalizeContext(ev.Now)
	for _, raw := range ev.Messages {
		state.Store.InsertOrMerge(chat.Normalize(raw, ctx))
	}
	state.HistoryLoaded = true

	if state.PendingOpenReply != nil {
		replyErr(state.PendingOpenReply, nil)
		state.PendingOpenReply = nil
	}
	return state, nil
}

func reduceSendText(state State, cmd cmdSendText) (State, []actor.Effect) {
	if state.Closed || state.ConversationID == "" {
		logger.Warnf("conversation: dropping send for %s: %v", cmd.ClientID, ErrNoConversation)
		return state, nil
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return state, nil
	}

	data := chat.DefaultPayload(chat.KindUser).Overlay(chat.Payload{
		chat.FieldText:      cmd.Text,
		chat.FieldAvatarURL: cmd.AvatarURL,
	})
	state.Store.InsertOrMerge(chat.Message{
		ClientMessageID: cmd.ClientID,
		Kind:            chat.KindUser,
		Sender:          state.SelfRole,
		SenderID:        state.SelfID,
		Time:            cmd.Now,
		Status:          chat.StatusPending,
		Data:            data,
	})
	state.Cache.Put(cmd.ClientID, data)

	return state, []actor.Effect{effEmitMessage{
		Gen:      state.Gen,
		ClientID: cmd.ClientID,
		Payload:  state.wirePayload(cmd.ClientID, chat.KindUser, cmd.Now, map[string]any{"content": cmd.Text, "data": map[string]any{chat.FieldAvatarURL: cmd.AvatarURL}}),
	}}
}

func reduceSendImage(state State, cmd cmdSendImage) (State, []actor.Effect) {
	if state.Closed || state.ConversationID == "" {
		logger.Warnf("conversation: dropping image send for %s: %v", cmd.ClientID, ErrNoConversation)
		if cmd.PreviewRef != "" {
			return state, []actor.Effect{effReleasePreview{Ref: cmd.PreviewRef}}
		}
		return state, nil
	}

	data := chat.DefaultPayload(chat.KindImage)
	if cmd.PreviewRef != "" {
		data["previewRef"] = cmd.PreviewRef
	}
	state.Store.InsertOrMerge(chat.Message{
		ClientMessageID: cmd.ClientID,
		Kind:            chat.KindImage,
		Sender:          state.SelfRole,
		SenderID:        state.SelfID,
		Time:            cmd.Now,
		Status:          chat.StatusUploading,
		Data:            data,
	})
	state.Uploads[cmd.ClientID] = uploadAttempt{
		FileName:   cmd.FileName,
		Data:       cmd.Data,
		PreviewRef: cmd.PreviewRef,
	}

	return state, []actor.Effect{effUploadImage{
		Gen:      state.Gen,
		ClientID: cmd.ClientID,
		FileName: cmd.FileName,
		Data:     cmd.Data,
	}}
}

func reduceUploadFinished(state State, ev evUploadFinished) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}

	attempt, tracked := state.Uploads[ev.ClientID]
	var effects []actor.Effect
	if tracked && attempt.PreviewRef != "" {
		effects = append(effects, effReleasePreview{Ref: attempt.PreviewRef})
		attempt.PreviewRef = ""
	}

	if ev.Err != nil {
		logger.Warnf("conversation: upload failed for %s: %v", ev.ClientID, ev.Err)
		state.Store.MarkFailed(ev.ClientID)
		if tracked {
			// Keep the bytes so a user-triggered retry can re-run the upload.
			state.Uploads[ev.ClientID] = attempt
		}
		return state, effects
	}

	patch := chat.Payload{chat.FieldImageURL: ev.ImageURL}
	state.Store.MarkUploaded(ev.ClientID, patch)
	state.Cache.Put(ev.ClientID, patch)
	delete(state.Uploads, ev.ClientID)

	effects = append(effects, effEmitMessage{
		Gen:      state.Gen,
		ClientID: ev.ClientID,
		Payload:  state.wirePayload(ev.ClientID, chat.KindImage, ev.Now, map[string]any{"data": map[string]any{chat.FieldImageURL: ev.ImageURL}}),
	})
	return state, effects
}

func reduceMessageAck(state State, ev evMessageAck) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	if !state.Store.AckUpdate(ev.Ack.ClientMessageID, ev.Ack.ServerID, ev.Ack.Time, ev.Ack.HasTime) {
		logger.Debugf("conversation: ack for unknown client id %s", ev.Ack.ClientMessageID)
		return state, nil
	}
	// The server confirmed this message; the optimistic snapshot is no
	// longer the best source.
	state.Cache.Evict(ev.Ack.ClientMessageID)
	return state, nil
}

func reduceEmitFailed(state State, ev evEmitFailed) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	state.Store.MarkFailed(ev.ClientID)
	return state, nil
}

func reduceNewMessage(state State, ev evNewMessage) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	if cid := ev.Raw.ConversationID(); cid != "" && cid != state.ConversationID {
		return state, nil
	}

	msg := chat.Normalize(ev.Raw, state.normalizeContext(ev.Now))
	state.Store.InsertOrMerge(msg)
	if msg.ClientMessageID != "" && msg.ID != "" {
		state.Cache.Evict(msg.ClientMessageID)
	}

	// A broadcast from a participant supersedes their typing signal.
	var effects []actor.Effect
	if sender := msg.SenderID; sender != "" && state.Typing.IsTyping(sender) {
		state.Typing.Set(sender, false)
		effects = append(effects, effCancelTimer{Name: typingTimerPrefix + sender})
	}
	return state, effects
}

func reduceTyping(state State, ev evTyping) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	sender := ev.Event.Sender
	if sender == "" || sender == state.SelfID {
		return state, nil
	}

	name := typingTimerPrefix + sender
	if !ev.Event.IsTyping {
		state.Typing.Set(sender, false)
		return state, []actor.Effect{effCancelTimer{Name: name}}
	}

	state.Typing.Set(sender, true)
	// Restart the expiry window on every signal.
	return state, []actor.Effect{
		effCancelTimer{Name: name},
		effStartTimer{Gen: state.Gen, Name: name, After: chat.TypingWindow},
	}
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	if sender, ok := strings.CutPrefix(ev.Name, typingTimerPrefix); ok {
		state.Typing.Set(sender, false)
	}
	return state, nil
}

func reduceRetry(state State, cmd cmdRetry) (State, []actor.Effect) {
	if state.Closed {
		return state, nil
	}
	msg, ok := state.Store.ByClientID(cmd.ClientID)
	if !ok || msg.Status != chat.StatusFailed {
		logger.Warnf("conversation: retry rejected for %s: %v", cmd.ClientID, ErrNotRetryable)
		return state, nil
	}

	switch msg.Kind {
	case chat.KindImage:
		attempt, tracked := state.Uploads[cmd.ClientID]
		if !tracked {
			logger.Warnf("conversation: retry rejected for %s: upload payload no longer held", cmd.ClientID)
			return state, nil
		}
		// Image retries reuse their correlation key; the failed entry simply
		// re-enters the uploading lifecycle.
		state.Store.Restart(cmd.ClientID, chat.StatusUploading, cmd.Now)
		return state, []actor.Effect{effUploadImage{
			Gen:      state.Gen,
			ClientID: cmd.ClientID,
			FileName: attempt.FileName,
			Data:     attempt.Data,
		}}

	case chat.KindActionCompleted:
		state.Store.Restart(cmd.ClientID, chat.StatusPending, cmd.Now)
		return state, []actor.Effect{
			effEmitMessage{Gen: state.Gen, ClientID: cmd.ClientID, Payload: state.wirePayload(cmd.ClientID, msg.Kind, cmd.Now, map[string]any{"data": map[string]any(msg.Data)})},
			effJobComplete{Gen: state.Gen, ClientID: cmd.ClientID, JobID: msg.Data.String(chat.FieldJobID)},
		}

	case chat.KindEscrowPayment, chat.KindEscrowRelease:
		state.Store.Restart(cmd.ClientID, chat.StatusPending, cmd.Now)
		op := EscrowFund
		switch {
		case msg.Kind == chat.KindEscrowRelease:
			op = EscrowRelease
		case msg.Data.String(chat.FieldEscrowID) == "":
			op = EscrowCreate
		}
		return state, []actor.Effect{
			effEmitMessage{Gen: state.Gen, ClientID: cmd.ClientID, Payload: state.wirePayload(cmd.ClientID, msg.Kind, cmd.Now, map[string]any{"data": map[string]any(msg.Data)})},
			effEscrow{
				Gen:      state.Gen,
				ClientID: cmd.ClientID,
				Op:       op,
				JobID:    msg.Data.String(chat.FieldJobID),
				EscrowID: msg.Data.String(chat.FieldEscrowID),
				Amount:   msg.Data.String(chat.FieldAmount),
			},
		}

	default:
		// Text retries abandon the failed identity and re-enter as a fresh
		// pending message reusing the stored data.
		if cmd.NewClientID == "" {
			return state, nil
		}
		state.Store.Remove(cmd.ClientID)
		state.Cache.Evict(cmd.ClientID)

		data := msg.Data.Clone()
		state.Store.InsertOrMerge(chat.Message{
			ClientMessageID: cmd.NewClientID,
			Kind:            chat.KindUser,
			Sender:          msg.Sender,
			SenderID:        msg.SenderID,
			Time:            cmd.Now,
			Status:          chat.StatusPending,
			Data:            data,
		})
		state.Cache.Put(cmd.NewClientID, data)
		return state, []actor.Effect{effEmitMessage{
			Gen:      state.Gen,
			ClientID: cmd.NewClientID,
			Payload: state.wirePayload(cmd.NewClientID, chat.KindUser, cmd.Now, map[string]any{
				"content": data.String(chat.FieldText),
				"data":    map[string]any{chat.FieldAvatarURL: data.String(chat.FieldAvatarURL)},
			}),
		}}
	}
}

func reduceCompleteJob(state State, cmd cmdCompleteJob) (State, []actor.Effect) {
	if state.Closed || state.ConversationID == "" {
		return state, nil
	}

	data := chat.Payload{chat.FieldJobID: cmd.JobID}
	state.Store.InsertOrMerge(chat.Message{
		ClientMessageID: cmd.ClientID,
		Kind:            chat.KindActionCompleted,
		Sender:          state.SelfRole,
		SenderID:        state.SelfID,
		Time:            cmd.Now,
		Status:          chat.StatusPending,
		Data:            data,
	})
	state.Cache.Put(cmd.ClientID, data)

	return state, []actor.Effect{
		effEmitMessage{Gen: state.Gen, ClientID: cmd.ClientID, Payload: state.wirePayload(cmd.ClientID, chat.KindActionCompleted, cmd.Now, map[string]any{"data": map[string]any(data)})},
		effJobComplete{Gen: state.Gen, ClientID: cmd.ClientID, JobID: cmd.JobID},
	}
}

func reduceEscrow(state State, cmd cmdEscrow) (State, []actor.Effect) {
	if state.Closed || state.ConversationID == "" {
		return state, nil
	}

	kind := chat.KindEscrowPayment
	if cmd.Op == EscrowRelease {
		kind = chat.KindEscrowRelease
	}
	data := chat.DefaultPayload(kind).Overlay(chat.Payload{
		chat.FieldAmount:   cmd.Amount,
		chat.FieldPayer:    string(state.SelfRole),
		chat.FieldJobID:    cmd.JobID,
		chat.FieldEscrowID: cmd.EscrowID,
	})
	state.Store.InsertOrMerge(chat.Message{
		ClientMessageID: cmd.ClientID,
		Kind:            kind,
		Sender:          state.SelfRole,
		SenderID:        state.SelfID,
		Time:            cmd.Now,
		Status:          chat.StatusPending,
		Data:            data,
	})
	state.Cache.Put(cmd.ClientID, data)

	return state, []actor.Effect{
		effEmitMessage{Gen: state.Gen, ClientID: cmd.ClientID, Payload: state.wirePayload(cmd.ClientID, kind, cmd.Now, map[string]any{"data": map[string]any(data)})},
		effEscrow{
			Gen:      state.Gen,
			ClientID: cmd.ClientID,
			Op:       cmd.Op,
			JobID:    cmd.JobID,
			EscrowID: cmd.EscrowID,
			Amount:   cmd.Amount,
		},
	}
}

func reduceSideChannelFinished(state State, ev evSideChannelFinished) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	if ev.Err != nil {
		// Failure settles only the triggering message; nothing else moves.
		logger.Warnf("conversation: side-channel call failed for %s: %v", ev.ClientID, ev.Err)
		state.Store.MarkFailed(ev.ClientID)
		return state, nil
	}
	state.Store.AckUpdate(ev.ClientID, "", time.Time{}, false)
	state.Cache.Evict(ev.ClientID)
	return state, nil
}

func reduceShutdown(state State, cmd cmdShutdown) (State, []actor.Effect) {
	effects := releaseAllPreviews(&state)
	state.Closed = true
	state.ConversationID = ""
	state.Cache.Reset()
	state.Typing.Reset()
	if state.PendingOpenReply != nil {
		replyErr(state.PendingOpenReply, ErrClosed)
		state.PendingOpenReply = nil
	}
	replyErr(cmd.Reply, nil)
	return state, effects
}

func releaseAllPreviews(state *State) []actor.Effect {
	var effects []actor.Effect
	for id, attempt := range state.Uploads {
		if attempt.PreviewRef != "" {
			effects = append(effects, effReleasePreview{Ref: attempt.PreviewRef})
		}
		delete(state.Uploads, id)
	}
	return effects
}

func (state State) normalizeContext(now time.Time) chat.NormalizeContext {
	return chat.NormalizeContext{
		MakerID:      state.MakerID,
		CreatorID:    state.CreatorID,
		FallbackRole: chat.RoleSystem,
		Cache:        state.Cache,
		Now:          now,
	}
}

func (state State) wirePayload(clientID string, kind chat.Kind, now time.Time, extra map[string]any) map[string]any {
	payload := map[string]any{
		"conversationId":  state.ConversationID,
		"clientMessageId": clientID,
		"type":            chat.WireToken(kind),
		"senderId":        state.SelfID,
		"time":            now.UnixMilli(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func replyErr(reply chan error, err error) {
	if reply == nil {
		return
	}
	select {
	case reply <- err:
	default:
	}
}
