// Package seat tracks who occupies which role in a play-through. Players
// join with a display name, receive an opaque token, and claim seats; the
// token is the only credential a client ever holds.
package seat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pixellator/wsz6/internal/formulation"
)

// Unassigned is the role number of a player who has joined but not claimed a
// seat.
const Unassigned = -1

var (
	// ErrUnknownPlayer reports a token that no joined player holds.
	ErrUnknownPlayer = errors.New("unknown player token")

	// ErrRoleOutOfRange reports a role number outside the declared roster.
	ErrRoleOutOfRange = errors.New("role out of range")

	// ErrSeatConflict reports an attempt to claim a seat a human already
	// occupies. Bot occupants are evicted silently instead.
	ErrSeatConflict = errors.New("seat already occupied")

	// ErrLobbyFull reports that the formulation's player cap is reached.
	ErrLobbyFull = errors.New("lobby is full")
)

// Player is one joined participant, human or bot.
type Player struct {
	Token    string
	Name     string
	RoleNum  int
	IsBot    bool
	Strategy string
}

// Record is the persisted form of an assigned seat, stored in checkpoints.
type Record struct {
	Token    string `json:"token"`
	Name     string `json:"name,omitempty"`
	RoleNum  int    `json:"role_num"`
	IsBot    bool   `json:"is_bot"`
	Strategy string `json:"strategy,omitempty"`
}

// Occupant is the public description of a seated or waiting player. It
// deliberately omits the token.
type Occupant struct {
	Name     string `json:"name"`
	IsBot    bool   `json:"is_bot"`
	Strategy string `json:"strategy,omitempty"`
}

// RoleStatus pairs a declared role with its current occupant, if any.
type RoleStatus struct {
	RoleNum     int       `json:"role_num"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Observer    bool      `json:"observer"`
	Occupant    *Occupant `json:"occupant,omitempty"`
}

// View is the lobby snapshot broadcast to clients.
type View struct {
	Roles      []RoleStatus `json:"roles"`
	Unassigned []Occupant   `json:"unassigned"`
	CanStart   bool         `json:"can_start"`
}

// Manager owns the seat table of one play-through. All methods are safe for
// concurrent use and never block on anything but the internal mutex.
type Manager struct {
	mu      sync.Mutex
	spec    formulation.RoleSpec
	players map[string]*Player
}

// NewManager creates an empty seat table for the given role roster.
func NewManager(spec formulation.RoleSpec) *Manager {
	return &Manager{spec: spec, players: make(map[string]*Player)}
}

// AddPlayer joins a human player and returns their token. The player starts
// unassigned.
func (m *Manager) AddPlayer(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spec.MaxPlayers > 0 && len(m.players) >= m.spec.MaxPlayers {
		return "", ErrLobbyFull
	}
	token := uuid.NewString()
	m.players[token] = &Player{
		Token:   token,
		Name:    strings.TrimSpace(name),
		RoleNum: Unassigned,
	}
	return token, nil
}

// Assign seats the player holding token at roleNum. Claiming a seat occupied
// by a human fails with ErrSeatConflict; a bot occupant is removed entirely.
// Re-claiming one's own seat is a no-op, and a player who already held a
// different seat vacates it.
func (m *Manager) Assign(token string, roleNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[token]
	if !ok {
		return ErrUnknownPlayer
	}
	if !m.spec.Valid(roleNum) {
		return fmt.Errorf("%w: %d", ErrRoleOutOfRange, roleNum)
	}
	if occ := m.playerAtLocked(roleNum); occ != nil && occ.Token != token {
		if !occ.IsBot {
			return fmt.Errorf("%w: role %d held by %s", ErrSeatConflict, roleNum, occ.Name)
		}
		delete(m.players, occ.Token)
	}
	p.RoleNum = roleNum
	return nil
}

// AssignBot creates a bot player seated at roleNum and returns its token.
// The same conflict rules as Assign apply: humans keep their seats, existing
// bots are replaced.
func (m *Manager) AssignBot(roleNum int, strategy string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.spec.Valid(roleNum) {
		return "", fmt.Errorf("%w: %d", ErrRoleOutOfRange, roleNum)
	}
	if occ := m.playerAtLocked(roleNum); occ != nil {
		if !occ.IsBot {
			return "", fmt.Errorf("%w: role %d held by %s", ErrSeatConflict, roleNum, occ.Name)
		}
		delete(m.players, occ.Token)
	}
	if m.spec.MaxPlayers > 0 && len(m.players) >= m.spec.MaxPlayers {
		return "", ErrLobbyFull
	}
	token := uuid.NewString()
	m.players[token] = &Player{
		Token:    token,
		Name:     fmt.Sprintf("Bot (%s)", strategy),
		RoleNum:  roleNum,
		IsBot:    true,
		Strategy: strategy,
	}
	return token, nil
}

// Unassign vacates the seat of the player holding token. Bots are removed
// entirely since an unseated bot has nothing to do.
func (m *Manager) Unassign(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[token]
	if !ok {
		return ErrUnknownPlayer
	}
	if p.IsBot {
		delete(m.players, token)
		return nil
	}
	p.RoleNum = Unassigned
	return nil
}

// Remove drops a player from the play-through, freeing their seat.
func (m *Manager) Remove(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[token]; !ok {
		return ErrUnknownPlayer
	}
	delete(m.players, token)
	return nil
}

// Player returns a copy of the player holding token.
func (m *Manager) Player(token string) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[token]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// RoleFor returns the role number seated by token, or Unassigned.
func (m *Manager) RoleFor(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.players[token]; ok {
		return p.RoleNum
	}
	return Unassigned
}

// PlayerAt returns a copy of the player seated at roleNum.
func (m *Manager) PlayerAt(roleNum int) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.playerAtLocked(roleNum); p != nil {
		return *p, true
	}
	return Player{}, false
}

// Bots returns the seated bots ordered by role number.
func (m *Manager) Bots() []Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bots []Player
	for _, p := range m.players {
		if p.IsBot && p.RoleNum != Unassigned {
			bots = append(bots, *p)
		}
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].RoleNum < bots[j].RoleNum })
	return bots
}

// StartError explains why the play-through cannot begin yet, or returns nil
// when enough non-observer seats are filled.
func (m *Manager) StartError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startErrLocked()
}

// CanStart reports whether enough seats are filled to begin.
func (m *Manager) CanStart() bool {
	return m.StartError() == nil
}

// Snapshot returns the assigned seats as persistable records, ordered by
// role number.
func (m *Manager) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []Record
	for _, p := range m.players {
		if p.RoleNum == Unassigned {
			continue
		}
		records = append(records, Record{
			Token:    p.Token,
			Name:     p.Name,
			RoleNum:  p.RoleNum,
			IsBot:    p.IsBot,
			Strategy: p.Strategy,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RoleNum < records[j].RoleNum })
	return records
}

// RestoreSnapshot replaces the seat table with the given records, typically
// read from a checkpoint. Waiting players who never claimed a seat are not
// part of snapshots and must rejoin.
func (m *Manager) RestoreSnapshot(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	players := make(map[string]*Player, len(records))
	seen := make(map[int]bool, len(records))
	for _, r := range records {
		if !m.spec.Valid(r.RoleNum) {
			return fmt.Errorf("%w: %d", ErrRoleOutOfRange, r.RoleNum)
		}
		if seen[r.RoleNum] {
			return fmt.Errorf("duplicate seat record for role %d", r.RoleNum)
		}
		if r.Token == "" {
			return errors.New("seat record has no token")
		}
		seen[r.RoleNum] = true
		players[r.Token] = &Player{
			Token:    r.Token,
			Name:     r.Name,
			RoleNum:  r.RoleNum,
			IsBot:    r.IsBot,
			Strategy: r.Strategy,
		}
	}
	m.players = players
	return nil
}

// View builds the lobby snapshot broadcast to clients.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{Roles: make([]RoleStatus, len(m.spec.Roles))}
	for i, role := range m.spec.Roles {
		status := RoleStatus{
			RoleNum:     i,
			Name:        role.Name,
			Description: role.Description,
			Observer:    m.spec.IsObserver(i),
		}
		if p := m.playerAtLocked(i); p != nil {
			status.Occupant = &Occupant{Name: p.Name, IsBot: p.IsBot, Strategy: p.Strategy}
		}
		v.Roles[i] = status
	}

	var waiting []*Player
	for _, p := range m.players {
		if p.RoleNum == Unassigned {
			waiting = append(waiting, p)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].Name < waiting[j].Name })
	for _, p := range waiting {
		v.Unassigned = append(v.Unassigned, Occupant{Name: p.Name})
	}

	v.CanStart = m.canStartLocked()
	return v
}

func (m *Manager) startErrLocked() error {
	required := m.spec.MinToStart()
	seated := 0
	for _, p := range m.players {
		if p.RoleNum != Unassigned && !m.spec.IsObserver(p.RoleNum) {
			seated++
		}
	}
	if seated < required {
		return fmt.Errorf("need at least %d seated players to start, have %d", required, seated)
	}
	return nil
}

func (m *Manager) canStartLocked() bool {
	return m.startErrLocked() == nil
}

func (m *Manager) playerAtLocked(roleNum int) *Player {
	for _, p := range m.players {
		if p.RoleNum == roleNum {
			return p
		}
	}
	return nil
}
