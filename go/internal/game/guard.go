package game

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// electionGuard lets exactly one winner decision commit per round. The
// judge's pick and the timeout fallback both go through it; whoever arrives
// second is ignored. A decision that never completes is released after the
// lock TTL.
type electionGuard struct {
	token  string
	expiry *Timer
}

// acquire claims the guard and returns its token, or "" if a decision is
// already in flight.
func (g *electionGuard) acquire(loop *Loop, room string, cfg Config) string {
	if g.token != "" {
		return ""
	}
	token := uuid.NewString()
	g.token = token
	g.expiry = loop.After(cfg.ElectionLockTTL, func() {
		if g.token == token {
			log.Warn().Str("room_id", room).Str("token", token).Msg("election lock expired")
			g.token = ""
			g.expiry = nil
		}
	})
	return token
}

// release frees the guard if token still holds it.
func (g *electionGuard) release(token string) {
	if token == "" || g.token != token {
		return
	}
	g.token = ""
	g.expiry.Stop()
	g.expiry = nil
}

func (g *electionGuard) held() bool {
	return g.token != ""
}

func (g *electionGuard) reset() {
	g.expiry.Stop()
	g.token = ""
	g.expiry = nil
}
