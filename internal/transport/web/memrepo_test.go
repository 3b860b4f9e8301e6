package web

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// memRepo: все репозитории в памяти, для тестов роутера.
type memRepo struct {
	mu     sync.Mutex
	seq    int64
	users  map[domain.UserID]domain.User
	notes  map[domain.NoteID]domain.Note
	grants map[domain.CollaborationID]domain.Collaboration
	ops    map[domain.OperationID]domain.Operation
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:  map[domain.UserID]domain.User{},
		notes:  map[domain.NoteID]domain.Note{},
		grants: map[domain.CollaborationID]domain.Collaboration{},
		ops:    map[domain.OperationID]domain.Operation{},
	}
}

func (m *memRepo) next() int64 {
	m.seq++
	return m.seq
}

func (m *memRepo) Close() {}

func (m *memRepo) Ping(context.Context) error { return nil }

func (m *memRepo) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == u.Email {
			return domain.User{}, domain.ErrConflict
		}
	}
	u.ID = m.next()
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memRepo) UserByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memRepo) UserByID(_ context.Context, id domain.UserID) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) UpdateUser(_ context.Context, id domain.UserID, upd domain.UserUpdate) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.PassHash != nil {
		u.PassHash = upd.PassHash
	}
	m.users[id] = u
	return u, nil
}

func (m *memRepo) SearchUsers(_ context.Context, q string, exclude domain.UserID, limit int) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q = strings.ToLower(q)
	out := []domain.User{}
	for _, u := range m.users {
		if u.ID == exclude {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) memberLocked(n domain.Note, user domain.UserID) (domain.Role, bool) {
	if n.OwnerID == user {
		return domain.RoleOwner, true
	}
	for _, g := range m.grants {
		if g.NoteID == n.ID && g.UserID == user {
			return g.Role.Role(), true
		}
	}
	return domain.RoleNone, false
}

func (m *memRepo) UsersShareNote(_ context.Context, a, b domain.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		_, okA := m.memberLocked(n, a)
		_, okB := m.memberLocked(n, b)
		if okA && okB {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateNote(_ context.Context, n domain.Note) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.next()
	n.CreatedAt, n.UpdatedAt = time.Now(), time.Now()
	m.notes[n.ID] = n
	return n, nil
}

func (m *memRepo) NoteByID(_ context.Context, id domain.NoteID) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return domain.Note{}, domain.ErrNotFound
	}
	return n, nil
}

func (m *memRepo) UpdateNote(_ context.Context, id domain.NoteID, upd domain.NoteUpdate) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return domain.Note{}, domain.ErrNotFound
	}
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.Content != nil {
		n.Content = upd.Content
	}
	if upd.DocumentState != nil {
		n.DocumentState = *upd.DocumentState
	}
	m.notes[id] = n
	return n, nil
}

func (m *memRepo) DeleteNote(_ context.Context, id domain.NoteID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *memRepo) NotesAccessibleBy(_ context.Context, user domain.UserID) ([]domain.NoteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.NoteSummary{}
	for _, n := range m.notes {
		role, ok := m.memberLocked(n, user)
		if !ok {
			continue
		}
		count := 0
		for _, g := range m.grants {
			if g.NoteID == n.ID {
				count++
			}
		}
		out = append(out, domain.NoteSummary{Note: n, Owner: m.users[n.OwnerID].Public(), CollaboratorsCount: count, UserRole: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GrantFor(_ context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if g.NoteID == note && g.UserID == user {
			return g, nil
		}
	}
	return domain.Collaboration{}, domain.ErrNotFound
}

func (m *memRepo) ListCollaborations(_ context.Context, note domain.NoteID) ([]domain.Collaboration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Collaboration{}
	for _, g := range m.grants {
		if g.NoteID == note {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) CreateCollaboration(_ context.Context, note domain.NoteID, user domain.UserID, role domain.GrantRole) (domain.Collaboration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if g.NoteID == note && g.UserID == user {
			return domain.Collaboration{}, domain.ErrConflict
		}
	}
	c := domain.Collaboration{ID: m.next(), NoteID: note, UserID: user, Role: role, User: m.users[user].Public()}
	m.grants[c.ID] = c
	return c, nil
}

func (m *memRepo) UpdateCollaborationRole(_ context.Context, note domain.NoteID, id domain.CollaborationID, role domain.GrantRole) (domain.Collaboration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.grants[id]
	if !ok || c.NoteID != note {
		return domain.Collaboration{}, domain.ErrNotFound
	}
	c.Role = role
	m.grants[id] = c
	return c, nil
}

func (m *memRepo) DeleteCollaboration(_ context.Context, note domain.NoteID, id domain.CollaborationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.grants[id]
	if !ok || c.NoteID != note {
		return domain.ErrNotFound
	}
	delete(m.grants, id)
	return nil
}

func (m *memRepo) insertLocked(in domain.OperationInput) domain.Operation {
	op := domain.Operation{
		ID: m.next(), NoteID: in.NoteID, UserID: in.UserID, UserName: m.users[in.UserID].Name,
		Type: in.Type, Position: in.Position, Content: in.Content, Timestamp: in.Timestamp,
	}
	m.ops[op.ID] = op
	return op
}

func (m *memRepo) AppendOperation(_ context.Context, in domain.OperationInput) (domain.Operation, domain.DocumentState, error) {
	if err := in.Validate(); err != nil {
		return domain.Operation{}, domain.DocumentState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[in.NoteID]
	if !ok {
		return domain.Operation{}, domain.DocumentState{}, domain.ErrNotFound
	}
	op := m.insertLocked(in)
	n.DocumentState = n.DocumentState.Apply(in.Type, in.Position, in.Content, in.Timestamp)
	m.notes[n.ID] = n
	return op, n.DocumentState, nil
}

func (m *memRepo) CreateOperation(_ context.Context, in domain.OperationInput) (domain.Operation, error) {
	if err := in.Validate(); err != nil {
		return domain.Operation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(in), nil
}

func (m *memRepo) ListOperations(_ context.Context, note domain.NoteID, since *time.Time) ([]domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Operation{}
	for _, op := range m.ops {
		if op.NoteID != note || (since != nil && !op.Timestamp.After(*since)) {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) MarkApplied(_ context.Context, note domain.NoteID, id domain.OperationID) (domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok || op.NoteID != note {
		return domain.Operation{}, domain.ErrNotFound
	}
	op.Applied = true
	m.ops[id] = op
	return op, nil
}

// memBlobs — BlobStorage в памяти.
type memBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, r io.Reader, hintName, _ string) (domain.BlobPutResult, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return domain.BlobPutResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objs == nil {
		b.objs = map[string][]byte{}
	}
	key := "avatars/" + hintName
	b.objs[key] = buf.Bytes()
	return domain.BlobPutResult{StorageKey: key, Size: n}, nil
}

func (b *memBlobs) PublicURL(key string) string { return "http://blobs.local/" + key }

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objs, key)
	return nil
}

func (b *memBlobs) Ping(context.Context) error { return nil }
