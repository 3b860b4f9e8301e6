package web

import (
	"github.com/EgorLis/collab-notes/internal/bus"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/presence"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/health"
)

type Repos struct {
	Users  domain.UsersRepo
	Notes  domain.NotesRepo
	Grants domain.CollaborationsRepo
	Ops    domain.OperationsRepo
}

type AuthDeps struct {
	Hasher    domain.PasswordHasher
	Tokens    domain.TokenManager
	Blacklist domain.TokenBlacklist
}

// Realtime: бэкенды канала заметки, выбираются конфигом.
type Realtime struct {
	Presence presence.Registry
	Bus      bus.Bus
}

// Probes для /readyz; Cache nil, если Redis не используется.
type Probes struct {
	DB      health.Pinger
	Cache   health.Pinger
	Storage health.Pinger
}
