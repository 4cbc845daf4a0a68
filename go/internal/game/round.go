package game

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/events"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/store"
)

// transition moves the room along ev. Illegal moves are logged and refused.
func (r *Room) transition(ev roomEvent) bool {
	to, err := nextStatus(r.status, ev)
	if err != nil {
		log.Warn().Err(err).Str("room_id", r.id).Msg("refused room transition")
		return false
	}
	log.Info().
		Str("room_id", r.id).
		Str("event", ev.String()).
		Str("from", string(r.status)).
		Str("to", string(to)).
		Msg("room transition")
	r.status = to
	r.epoch++
	return true
}

// kick re-evaluates the guards after an in-flight store call lands.
func (r *Room) kick() {
	switch r.status {
	case models.RoomStatusInactive:
		r.maybeStart()
	case models.RoomStatusNominating:
		r.checkNominate(evNominate)
	}
}

// maybeStart begins the first round once the roster reaches quorum.
func (r *Room) maybeStart() {
	if r.status != models.RoomStatusInactive || r.busy || len(r.players) < r.reg.cfg.Quorum {
		return
	}
	r.drawPrompt(evNewPlayer)
}

func (r *Room) ensureDealer() {
	if r.dealer == nil || !r.seated(r.dealer) {
		r.dealer = nil
		if len(r.players) > 0 {
			r.dealer = r.players[0]
		}
	}
}

// drawPrompt pulls the next black card and opens nominations.
func (r *Room) drawPrompt(ev roomEvent) {
	r.busy = true
	r.ensureDealer()
	epoch := r.epoch
	pool := r.pool
	var dealerID string
	if r.dealer != nil {
		dealerID = r.dealer.id
	}

	Await(r.reg.loop, func() (string, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		if err := pool.Ensure(ctx); err != nil {
			return "", err
		}
		blacks, err := pool.Draw(ctx, models.DeckBlack, 1)
		if err != nil || len(blacks) == 0 {
			return "", err
		}
		tx := pool.Begin().
			SetState(models.RoomStatusNominating, blacks[0], dealerID).
			SaveSubmissions(nil)
		return blacks[0], pool.Commit(ctx, tx)
	}, func(black string, err error) {
		r.busy = false
		switch {
		case errors.Is(err, store.ErrEmptyDeck):
			r.halt("No cards are loaded.")
			return
		case err != nil:
			r.fail(storeErr("draw prompt", err))
			return
		case black == "":
			r.halt("Out of prompts!")
			return
		}

		if r.epoch != epoch || len(r.players) < r.reg.cfg.Quorum || !r.transition(ev) {
			r.commit("retire prompt", r.pool.Begin().DiscardPrompt(black))
			r.kick()
			return
		}
		r.beginNominations(black)
	})
}

// halt stops the round machinery without dropping anyone.
func (r *Room) halt(reason string) {
	log.Warn().Str("room_id", r.id).Str("reason", reason).Msg("room halted")
	if r.status != models.RoomStatusInactive {
		r.transition(evFailed)
	}
	r.clearRound()
	r.notice(reason)
	r.broadcastWaiting()
}

func (r *Room) beginNominations(black string) {
	prompt := cards.ParsePrompt(black)
	r.prompt = &prompt
	r.submissions = nil
	r.lastWinner = nil
	r.ensureDealer()
	for _, p := range r.players {
		p.selection = nil
	}

	r.broadcastSet("submissions", nil)
	r.rosterChanged()
	r.broadcast(msg("black", Fields{"black": black}))
	for _, p := range r.players {
		r.sendPersonalState(p)
	}
	for _, c := range r.spectators {
		r.reg.out.Send(c, msg("set", r.stateFor(nil)))
	}

	r.notify(events.TypeRoundStarted, events.RoundStartedPayload{
		Prompt:   black,
		Blanks:   prompt.BlankCount,
		DealerID: r.dealer.id,
		Players:  len(r.players),
	})
}

// Submit records p's selection for the current prompt. An empty selection
// clears it. The dealer's selections, and any made while submissions are
// being collected, are ignored.
func (r *Room) Submit(p *Player, selection []string) error {
	if !r.seated(p) {
		return ErrNotInRoom
	}
	if len(selection) == 0 {
		if p.selection != nil {
			p.selection = nil
			r.rosterChanged()
			r.updateNominationTimer()
		}
		p.send(msg("select", Fields{"cards": []string{}}))
		return nil
	}
	if err := CheckSelection(selection); err != nil {
		return err
	}
	if r.status != models.RoomStatusNominating {
		return ErrNotNominating
	}
	if r.busy || p == r.dealer {
		return nil
	}

	p.selection = slices.Clone(selection)
	p.send(msg("select", Fields{"cards": p.selection}))
	r.rosterChanged()
	r.updateNominationTimer()
	r.checkNominate(evNominate)
	return nil
}

// updateNominationTimer arms the countdown when the first player readies
// and disarms it when nobody is ready any more.
func (r *Room) updateNominationTimer() {
	if r.status != models.RoomStatusNominating {
		return
	}
	anyReady := false
	for _, p := range r.players {
		if p != r.dealer && p.selection != nil {
			anyReady = true
			break
		}
	}
	switch {
	case anyReady && !r.nominationTimer.Active():
		r.nominationTimer = r.reg.loop.After(r.reg.cfg.NominationTimeout, r.onNominationTimeout)
		r.broadcastCountdown(r.nominationTimer)
	case !anyReady && r.nominationTimer.Active():
		r.nominationTimer.Stop()
		r.nominationTimer = nil
		r.broadcastCountdown(nil)
	}
}

func (r *Room) onNominationTimeout() {
	r.nominationTimer = nil
	if r.status != models.RoomStatusNominating || r.busy {
		return
	}
	r.collect(evNominationTimedOut)
}

// checkNominate closes nominations once every non-dealer has a selection.
func (r *Room) checkNominate(ev roomEvent) {
	if r.status != models.RoomStatusNominating || r.busy {
		return
	}
	others := 0
	for _, p := range r.players {
		if p == r.dealer {
			continue
		}
		if p.selection == nil {
			return
		}
		others++
	}
	if others == 0 {
		return
	}
	r.collect(ev)
}

type candidate struct {
	player *Player
	cards  []string
}

type collected struct {
	accepted []models.Submission
	rejected int
}

// collect validates every pending selection against the stored hand, hands
// the accepted cards over to the discards and opens the election.
func (r *Room) collect(ev roomEvent) {
	r.busy = true
	if r.nominationTimer.Active() {
		r.nominationTimer.Stop()
		r.broadcastCountdown(nil)
	}
	r.nominationTimer = nil

	var cands []candidate
	var idle []*Player
	for _, p := range r.players {
		if p == r.dealer {
			continue
		}
		if p.selection == nil {
			idle = append(idle, p)
			continue
		}
		cands = append(cands, candidate{player: p, cards: p.selection})
	}
	// Shuffled before validation so the accepted subsequence is uniformly
	// ordered too.
	r.reg.rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	epoch := r.epoch
	pool := r.pool
	blanks := r.prompt.BlankCount
	prompt := r.prompt.Card
	dealerID := r.dealer.id

	Await(r.reg.loop, func() (collected, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()

		var res collected
		for _, c := range cands {
			hand, err := pool.Hand(ctx, c.player.id)
			if err != nil {
				return collected{}, err
			}
			if err := CheckSubmission(c.cards, blanks, hand); err != nil {
				log.Debug().Str("player_id", c.player.id).Err(err).Msg("submission rejected")
				res.rejected++
				continue
			}
			res.accepted = append(res.accepted, models.Submission{PlayerID: c.player.id, Cards: c.cards})
		}

		tx := pool.Begin()
		for _, s := range res.accepted {
			tx.HandOver(s.PlayerID, s.Cards)
		}
		tx.SaveSubmissions(res.accepted).SetState(models.RoomStatusElecting, prompt, dealerID)
		return res, pool.Commit(ctx, tx)
	}, func(res collected, err error) {
		r.busy = false
		if err != nil {
			r.fail(storeErr("collect submissions", err))
			return
		}

		byPlayer := make(map[string]models.Submission, len(res.accepted))
		for _, s := range res.accepted {
			byPlayer[s.PlayerID] = s
		}
		// A player who inherited the deal while the store was busy keeps
		// their cards.
		var accepted, returned []models.Submission
		for _, s := range res.accepted {
			if r.epoch == epoch && r.dealer != nil && s.PlayerID == r.dealer.id {
				returned = append(returned, s)
				continue
			}
			accepted = append(accepted, s)
		}
		for _, c := range cands {
			if r.epoch == epoch && c.player == r.dealer {
				continue
			}
			c.player.confirmSubmission(byPlayer)
		}
		for _, p := range idle {
			p.send(msg("set", Fields{"unlocked": false}))
		}
		r.rosterChanged()

		if r.epoch != epoch {
			// The round ended while the store was busy; the cards are
			// already in the discards.
			if r.status == models.RoomStatusInactive {
				r.commit("pause room", r.pool.Begin().
					SaveSubmissions(nil).
					SetState(models.RoomStatusInactive, "", ""))
			}
			r.kick()
			return
		}
		if len(returned) > 0 {
			tx := r.pool.Begin()
			for _, s := range returned {
				tx.ReturnToHand(s.PlayerID, s.Cards)
			}
			r.commit("return dealer cards", tx.SaveSubmissions(accepted))
		}
		if !r.transition(ev) {
			return
		}

		r.notify(events.TypeSubmissionsClosed, events.SubmissionsClosedPayload{
			Prompt:     prompt,
			Accepted:   len(accepted),
			Rejected:   res.rejected,
			TimedOut:   ev == evNominationTimedOut,
			LostPlayer: ev == evLostPlayer,
		})

		if len(accepted) == 0 {
			log.Warn().Str("room_id", r.id).Str("prompt", prompt).Msg("no valid submissions")
			r.notice("No valid submissions. No one wins this round.")
			r.resolve(nil, false)
			return
		}
		r.openElection(accepted)
	})
}

func (r *Room) openElection(accepted []models.Submission) {
	r.submissions = accepted
	r.broadcastSet("submissions", r.anonymized())
	for _, p := range r.players {
		r.sendPersonalState(p)
	}
	for _, c := range r.spectators {
		r.reg.out.Send(c, msg("set", r.stateFor(nil)))
	}
	r.electionTimer = r.reg.loop.After(r.reg.cfg.ElectionTimeout, r.onElectionTimeout)
	r.broadcastCountdown(r.electionTimer)
}

// Elect is the dealer's pick. The cards must match a pending submission
// exactly.
func (r *Room) Elect(p *Player, selection []string) error {
	if !r.seated(p) {
		return ErrNotInRoom
	}
	if r.status != models.RoomStatusElecting {
		return ErrNotElecting
	}
	if p != r.dealer {
		return ErrNotDealer
	}
	for _, s := range r.submissions {
		if slices.Equal(s.Cards, selection) {
			r.resolve(&s, false)
			return nil
		}
	}
	return invalid("Invalid choice!")
}

func (r *Room) onElectionTimeout() {
	r.electionTimer = nil
	if r.status != models.RoomStatusElecting {
		return
	}
	log.Info().Str("room_id", r.id).Msg("election timed out")
	r.forceElection()
}

// forceElection picks a uniformly random submission.
func (r *Room) forceElection() {
	if r.status != models.RoomStatusElecting || len(r.submissions) == 0 {
		return
	}
	s := r.submissions[r.reg.rng.Intn(len(r.submissions))]
	r.resolve(&s, true)
}

// resolve commits the round result. Only the first decision per round gets
// through the election guard.
func (r *Room) resolve(winner *models.Submission, forced bool) {
	token := r.guard.acquire(r.reg.loop, r.id, r.reg.cfg)
	if token == "" {
		log.Debug().Str("room_id", r.id).Msg("decision already in flight")
		return
	}
	if r.electionTimer.Active() {
		r.electionTimer.Stop()
		r.broadcastCountdown(nil)
	}
	r.electionTimer = nil

	epoch := r.epoch
	pool := r.pool
	prompt := r.prompt.Card
	var dealerID string
	if r.dealer != nil {
		dealerID = r.dealer.id
	}
	tx := pool.Begin()
	if winner != nil {
		tx.AwardPoint(winner.PlayerID)
	}
	tx.DiscardPrompt(prompt).
		SaveSubmissions(nil).
		SetState(models.RoomStatusAwarding, prompt, dealerID)

	Await(r.reg.loop, func() (struct{}, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		return struct{}{}, pool.Commit(ctx, tx)
	}, func(_ struct{}, err error) {
		r.guard.release(token)
		if err != nil {
			r.fail(storeErr("award round", err))
			return
		}
		if r.epoch != epoch {
			return
		}
		r.award(winner, forced)
	})
}

// award applies a committed result: score, announcement, dealer rotation,
// fresh cards, and the delay before the next round.
func (r *Room) award(winner *models.Submission, forced bool) {
	if !r.transition(evVictoryAwarded) {
		return
	}
	prompt := r.prompt.Card
	result := models.RoundResult{
		RoomID:      r.id,
		Prompt:      prompt,
		Submissions: len(r.submissions),
		Forced:      forced,
		ResolvedAt:  r.reg.loop.clock.Now().UTC(),
	}

	score := 0
	r.lastWinner = nil
	if winner != nil {
		result.WinnerID = winner.PlayerID
		result.WinnerCards = winner.Cards
		name := "Someone who left"
		if p := r.playerByID(winner.PlayerID); p != nil {
			p.score++
			score = p.score
			name = p.Name()
			r.lastWinner = p
		}
		r.broadcast(msg("elect", Fields{"cards": winner.Cards}))
		line := fmt.Sprintf("%s won: %s", name, cards.Plain(cards.Render(*r.prompt, winner.Cards)))
		if forced {
			line += " (picked at random)"
		}
		r.notice(line)
	}

	r.notify(events.TypeVictoryAwarded, events.VictoryAwardedPayload{
		Prompt:   prompt,
		WinnerID: result.WinnerID,
		Cards:    result.WinnerCards,
		Score:    score,
		Forced:   forced,
	})
	r.reg.archiveRound(result)

	if r.keepDealer {
		r.keepDealer = false
		r.ensureDealer()
	} else {
		r.rotateDealer()
	}
	r.rosterChanged()
	for _, p := range r.players {
		r.sendPersonalState(p)
		p.DealHand(false)
	}
	r.announceTimer = r.reg.loop.After(r.reg.cfg.AnnouncementDelay, r.onAnnounced)
}

func (r *Room) rotateDealer() {
	if len(r.players) == 0 {
		r.dealer = nil
		return
	}
	idx := r.indexOf(r.dealer)
	r.dealer = r.players[(idx+1)%len(r.players)]
}

func (r *Room) onAnnounced() {
	r.announceTimer = nil
	if r.status != models.RoomStatusAwarding || r.busy {
		return
	}
	if w := r.lastWinner; w != nil && r.seated(w) && w.score >= r.reg.cfg.RoundPoints {
		r.resetRound(w)
	}
	r.drawPrompt(evNextNominations)
}

// resetRound ends a game: every score goes back to zero and every hand is
// redealt.
func (r *Room) resetRound(champion *Player) {
	r.notice(fmt.Sprintf("%s wins the game with %d points!", champion.Name(), champion.score))
	r.notify(events.TypeRoundReset, events.RoundResetPayload{
		ChampionID: champion.id,
		Points:     champion.score,
	})
	for _, p := range r.players {
		p.score = 0
	}
	r.lastWinner = nil
	r.commit("clear scores", r.pool.Begin().ClearScores())
	for _, p := range r.players {
		p.DealHand(true)
	}
	r.rosterChanged()
}

// checkQuorum reverts the room to Inactive when too few players remain. It
// reports whether it did.
func (r *Room) checkQuorum() bool {
	if r.status == models.RoomStatusInactive || len(r.players) >= r.reg.cfg.Quorum {
		return false
	}
	var prompt string
	if r.prompt != nil {
		prompt = r.prompt.Card
	}
	if !r.transition(evNotEnoughPlayers) {
		return false
	}
	r.clearRound()
	r.commit("pause room", r.pool.Begin().
		DiscardPrompt(prompt).
		SaveSubmissions(nil).
		SetState(models.RoomStatusInactive, "", ""))
	r.notice("Not enough players. Waiting for more...")
	r.broadcastWaiting()
	return true
}

// clearRound disarms every round timer and forgets the prompt, submissions
// and selections.
func (r *Room) clearRound() {
	for _, t := range []*Timer{r.nominationTimer, r.electionTimer, r.announceTimer} {
		t.Stop()
	}
	r.nominationTimer, r.electionTimer, r.announceTimer = nil, nil, nil
	r.broadcastCountdown(nil)
	r.guard.reset()
	r.prompt = nil
	r.submissions = nil
	r.lastWinner = nil
	r.keepDealer = false
	for _, p := range r.players {
		p.selection = nil
	}
}
