package game

import (
	"fmt"
	"time"
)

// Config holds the game tunables.
type Config struct {
	HandSize          int           `yaml:"hand_size"`
	Quorum            int           `yaml:"quorum"`
	NominationTimeout time.Duration `yaml:"nomination_timeout"`
	ElectionTimeout   time.Duration `yaml:"election_timeout"`
	AnnouncementDelay time.Duration `yaml:"announcement_delay"`
	RoundPoints       int           `yaml:"round_points"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	AbandonTimeout    time.Duration `yaml:"abandon_timeout"`
	ElectionLockTTL   time.Duration `yaml:"election_lock_ttl"`
	RoomTTL           time.Duration `yaml:"room_ttl"`
	ChatHistory       int           `yaml:"chat_history"`
	ChatPerMinute     int           `yaml:"chat_per_minute"`
	NameLength        int           `yaml:"name_length"`
	MessageLength     int           `yaml:"message_length"`
	DefaultRoom       string        `yaml:"default_room"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		HandSize:          7,
		Quorum:            3,
		NominationTimeout: 60 * time.Second,
		ElectionTimeout:   45 * time.Second,
		AnnouncementDelay: 5 * time.Second,
		RoundPoints:       5,
		IdleTimeout:       5 * time.Minute,
		AbandonTimeout:    30 * time.Second,
		ElectionLockTTL:   10 * time.Second,
		RoomTTL:           time.Hour,
		ChatHistory:       40,
		ChatPerMinute:     10,
		NameLength:        30,
		MessageLength:     120,
		DefaultRoom:       "1",
		StoreTimeout:      5 * time.Second,
	}
}

// Validate rejects settings the room machinery cannot run with.
func (c Config) Validate() error {
	switch {
	case c.HandSize < 1:
		return fmt.Errorf("hand_size must be positive, got %d", c.HandSize)
	case c.Quorum < 2:
		return fmt.Errorf("quorum must be at least 2, got %d", c.Quorum)
	case c.RoundPoints < 1:
		return fmt.Errorf("round_points must be positive, got %d", c.RoundPoints)
	case c.NominationTimeout <= 0 || c.ElectionTimeout <= 0:
		return fmt.Errorf("round timeouts must be positive")
	case c.ElectionLockTTL <= 0:
		return fmt.Errorf("election_lock_ttl must be positive")
	case c.DefaultRoom == "":
		return fmt.Errorf("default_room must be set")
	}
	return nil
}
