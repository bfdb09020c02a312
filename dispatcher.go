package lavago

import "go.uber.org/zap"

// dispatchTrackEnd implements the decision tree for a TrackEndEvent (spec
// §4.5). It is invoked by Player.onTrackEnd holding the player's command
// channel, so queue/state mutations here are already serialized.
func dispatchTrackEnd(p *Player, ep *eventPayload) {
	reason := ep.Reason
	ended := p.trackFromEvent(ep)

	switch {
	case reason == "loadFailed" || reason == "cleanup":
		dispatchAdvanceOrEnd(p, ended, reason)
	case reason == "replaced":
		p.log.Debug("track replaced", zap.String("guildId", p.GuildID))
		_ = p.queue.SetPrevious(append([]*Track{ended}, p.queue.GetPrevious()...))
		p.emitTrackEnd(ended, reason)
	case ended != nil && p.TrackRepeat:
		_ = p.queue.EnqueueFront(ended)
		dispatchRotateAndPlay(p, ended, reason, true)
	case ended != nil && p.QueueRepeat:
		_ = p.queue.Add([]*Track{ended}, 0)
		dispatchRotateAndPlay(p, ended, reason, true)
	case p.queue.Size() > 0:
		dispatchAdvanceOrEnd(p, ended, reason)
	default:
		dispatchQueueEnd(p, ended)
	}
}

// dispatchAdvanceOrEnd moves current->previous, pops upcoming->current; if
// none remains it calls queue-end, otherwise it emits trackEnd and plays.
func dispatchAdvanceOrEnd(p *Player, ended *Track, reason string) {
	next, err := p.queue.Dequeue()
	if err != nil || next == nil {
		dispatchQueueEnd(p, ended)
		return
	}
	if ended != nil {
		_ = p.queue.AddPrevious(ended)
	}
	p.queue.SetCurrent(next)
	p.emitTrackEnd(ended, reason)
	if p.autoPlayOnEnd() {
		_ = p.play(nil, nil)
	}
}

// dispatchRotateAndPlay handles the trackRepeat/queueRepeat rotation: after
// the repeat re-enqueue, previous=current, current=shift.
func dispatchRotateAndPlay(p *Player, ended *Track, reason string, autoPlay bool) {
	next, err := p.queue.Dequeue()
	if err != nil || next == nil {
		if reason == "stopped" {
			dispatchQueueEnd(p, ended)
			return
		}
		p.emitTrackEnd(ended, reason)
		return
	}
	if ended != nil {
		_ = p.queue.AddPrevious(ended)
	}
	p.queue.SetCurrent(next)
	p.emitTrackEnd(ended, reason)
	if autoPlay && p.autoPlayOnEnd() {
		_ = p.play(nil, nil)
	}
}

// dispatchQueueEnd clears current, and if autoplay is enabled attempts up to
// autoplayTries recommendations before giving up (spec §4.5 "Queue-end").
func dispatchQueueEnd(p *Player, ended *Track) {
	if ended != nil {
		_ = p.queue.AddPrevious(ended)
	}
	p.queue.SetCurrent(nil)

	if !p.IsAutoplay {
		p.Playing = false
		p.manager.bus.emit(EventQueueEnd, QueueEndPayload{Player: p})
		return
	}

	tries := p.AutoplayTries
	if tries <= 0 {
		tries = 3
	}
	for i := 0; i < tries; i++ {
		rec, err := recommendNext(p, ended)
		if err != nil || rec == nil {
			continue
		}
		_ = p.queue.Add([]*Track{rec}, 0)
		if err := p.play(nil, nil); err == nil {
			return
		}
	}
	p.Playing = false
	p.manager.bus.emit(EventQueueEnd, QueueEndPayload{Player: p})
}
