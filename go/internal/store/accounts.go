package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/mcdev12/cardroom/go/internal/models"
)

var (
	// ErrBadToken is returned for client tokens that are not 1-20 digits.
	ErrBadToken = errors.New("bad id")
	// ErrAccountRace is returned when two logins for the same token race to
	// allocate an id and this one lost.
	ErrAccountRace = errors.New("couldn't save your account")
	// ErrNameTaken is returned when another account holds the name.
	ErrNameTaken = errors.New("name is already taken")
)

var tokenPattern = regexp.MustCompile(`^\d{1,20}$`)

const (
	fieldName = "name"
	fieldGame = "game"
)

// Accounts maps client tokens to durable user ids and holds names and room
// membership.
type Accounts struct {
	b Backend
}

// NewAccounts returns the account registry on b.
func NewAccounts(b Backend) *Accounts {
	return &Accounts{b: b}
}

// Resolve returns the user id for a client token, allocating one on first
// sight.
func (a *Accounts) Resolve(ctx context.Context, token string) (string, error) {
	if !tokenPattern.MatchString(token) {
		return "", ErrBadToken
	}

	id, ok, err := a.b.HGet(ctx, userIDsKey, token)
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if ok {
		return id, nil
	}

	n, err := a.b.Incr(ctx, userCounterKey)
	if err != nil {
		return "", fmt.Errorf("allocate user id: %w", err)
	}
	id = strconv.FormatInt(n, 10)
	set, err := a.b.HSetNX(ctx, userIDsKey, token, id)
	if err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	if !set {
		return "", ErrAccountRace
	}
	return id, nil
}

// Load reads an account's name and the room it is seated in.
func (a *Accounts) Load(ctx context.Context, id string) (models.User, error) {
	fields, err := a.b.HGetAll(ctx, UserKey(id))
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return models.User{
		ID:     id,
		Name:   fields[fieldName],
		RoomID: fields[fieldGame],
	}, nil
}

// ClaimName registers name for the account and releases oldName.
func (a *Accounts) ClaimName(ctx context.Context, id, oldName, name string) error {
	claimed, err := a.b.HSetNX(ctx, userNamesKey, name, id)
	if err != nil {
		return fmt.Errorf("claim name: %w", err)
	}
	if !claimed {
		return ErrNameTaken
	}

	batch := NewBatch()
	if oldName != "" {
		batch.HDel(userNamesKey, oldName)
	}
	batch.HSet(UserKey(id), map[string]string{fieldName: name})
	if err := a.b.Exec(ctx, batch); err != nil {
		return fmt.Errorf("save name: %w", err)
	}
	return nil
}

// SetRoom records that the account sits in room. It reports false when the
// account is already seated somewhere.
func (a *Accounts) SetRoom(ctx context.Context, id, room string) (bool, error) {
	set, err := a.b.HSetNX(ctx, UserKey(id), fieldGame, room)
	if err != nil {
		return false, fmt.Errorf("set room: %w", err)
	}
	return set, nil
}

// ClearRoom forgets the account's room membership.
func (a *Accounts) ClearRoom(ctx context.Context, id string) error {
	if err := a.b.Exec(ctx, NewBatch().HDel(UserKey(id), fieldGame)); err != nil {
		return fmt.Errorf("clear room: %w", err)
	}
	return nil
}
