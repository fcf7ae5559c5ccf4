package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/randx"
)

type commandKey struct {
	channelID int64
	name      string
}

type dataKey struct {
	userID int64
	name   string
}

// Memory is a Store kept entirely in process memory. It backs `DATABASE_URL=memory://`
// deployments and the tests of every package layered on the store.
type Memory struct {
	mu sync.RWMutex

	nextID int64

	users       map[int64]*User
	identifiers map[platform.UserIdentifier]int64
	userData    map[dataKey]UserData

	channels      map[int64]*Channel
	channelsByKey map[platform.ChannelIdentifier]int64

	commands map[commandKey]*Command
	filters  map[int64][]Filter
	prefixes map[int64]string
	sessions map[string]WebSession
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[int64]*User),
		identifiers:   make(map[platform.UserIdentifier]int64),
		userData:      make(map[dataKey]UserData),
		channels:      make(map[int64]*Channel),
		channelsByKey: make(map[platform.ChannelIdentifier]int64),
		commands:      make(map[commandKey]*Command),
		filters:       make(map[int64][]Filter),
		prefixes:      make(map[int64]string),
		sessions:      make(map[string]WebSession),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func copyUser(u *User) *User {
	out := *u
	out.Identifiers = slices.Clone(u.Identifiers)
	return &out
}

func (m *Memory) GetUser(_ context.Context, id platform.UserIdentifier) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.identifiers[id]
	if !ok {
		return nil, nil
	}
	return copyUser(m.users[userID]), nil
}

func (m *Memory) GetUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (m *Memory) GetOrCreateUser(_ context.Context, id platform.UserIdentifier) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if userID, ok := m.identifiers[id]; ok {
		return copyUser(m.users[userID]), nil
	}

	u := &User{ID: m.id(), Identifiers: []platform.UserIdentifier{id}}
	m.users[u.ID] = u
	m.identifiers[id] = u.ID
	return copyUser(u), nil
}

func (m *Memory) MergeUsers(_ context.Context, keepID, dropID int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep, ok := m.users[keepID]
	if !ok {
		return nil, ErrUserNotFound
	}
	drop, ok := m.users[dropID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if keepID == dropID {
		return copyUser(keep), nil
	}

	for _, ident := range drop.Identifiers {
		m.identifiers[ident] = keepID
	}
	keep.Identifiers = append(keep.Identifiers, drop.Identifiers...)

	for key, data := range m.userData {
		if key.userID != dropID {
			continue
		}
		delete(m.userData, key)
		data.UserID = keepID
		m.userData[dataKey{userID: keepID, name: key.name}] = data
	}

	for id, session := range m.sessions {
		if session.UserID == dropID {
			session.UserID = keepID
			m.sessions[id] = session
		}
	}

	delete(m.users, dropID)
	return copyUser(keep), nil
}

func (m *Memory) GetChannel(_ context.Context, id platform.ChannelIdentifier) (*Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channelID, ok := m.channelsByKey[id]
	if !ok {
		return nil, nil
	}
	ch := *m.channels[channelID]
	return &ch, nil
}

func (m *Memory) GetChannelByID(_ context.Context, id int64) (*Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return nil, nil
	}
	out := *ch
	return &out, nil
}

func (m *Memory) GetOrCreateChannel(_ context.Context, id platform.ChannelIdentifier) (*Channel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if channelID, ok := m.channelsByKey[id]; ok {
		ch := *m.channels[channelID]
		return &ch, false, nil
	}

	ch := &Channel{ID: m.id(), Identifier: id}
	m.channels[ch.ID] = ch
	m.channelsByKey[id] = ch.ID

	out := *ch
	return &out, true, nil
}

func (m *Memory) ListChannels(_ context.Context) ([]Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	slices.SortFunc(out, func(a, b Channel) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) GetCommand(_ context.Context, channelID int64, name string) (*Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commands[commandKey{channelID: channelID, name: name}]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListCommands(_ context.Context, channelID int64) ([]Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Command
	for key, c := range m.commands {
		if key.channelID == channelID {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Command) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *Memory) AddCommand(_ context.Context, cmd Command) (*Command, error) {
	if err := validateNewCommand(cmd); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := commandKey{channelID: cmd.ChannelID, name: cmd.Name}
	if _, ok := m.commands[key]; ok {
		return nil, ErrAlreadyExists
	}

	cmd.ID = m.id()
	stored := cmd
	m.commands[key] = &stored
	return &cmd, nil
}

func (m *Memory) UpdateCommand(_ context.Context, channelID int64, name, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commands[commandKey{channelID: channelID, name: name}]
	if !ok {
		return ErrInvalidValue
	}
	c.Action = action
	return nil
}

func (m *Memory) DeleteCommand(_ context.Context, channelID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := commandKey{channelID: channelID, name: name}
	if _, ok := m.commands[key]; !ok {
		return ErrInvalidValue
	}
	delete(m.commands, key)
	return nil
}

func (m *Memory) GetFilters(_ context.Context, channelID int64) ([]Filter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.filters[channelID]), nil
}

func (m *Memory) AddFilter(_ context.Context, f Filter) (*Filter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.ID = m.id()
	m.filters[f.ChannelID] = append(m.filters[f.ChannelID], f)
	return &f, nil
}

func (m *Memory) GetPrefix(_ context.Context, channelID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix, ok := m.prefixes[channelID]
	return prefix, ok, nil
}

func (m *Memory) SetPrefix(_ context.Context, channelID int64, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefixes[channelID] = prefix
	return nil
}

func (m *Memory) GetUserData(_ context.Context, userID int64, name string) (*UserData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.userData[dataKey{userID: userID, name: name}]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (m *Memory) SetUserData(_ context.Context, data UserData, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[data.UserID]; !ok {
		return ErrUserNotFound
	}

	key := dataKey{userID: data.UserID, name: data.Name}
	if _, exists := m.userData[key]; exists && !overwrite {
		return ErrAlreadyExists
	}
	m.userData[key] = data
	return nil
}

func (m *Memory) RemoveUserData(_ context.Context, userID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.userData, dataKey{userID: userID, name: name})
	return nil
}

func (m *Memory) GetWebSession(_ context.Context, sessionID string) (*WebSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (m *Memory) CreateWebSession(_ context.Context, userID int64, username string) (*WebSession, error) {
	sessionID, err := randx.SessionID()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	session := WebSession{SessionID: sessionID, UserID: userID, Username: username}
	m.sessions[sessionID] = session
	return &session, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}
