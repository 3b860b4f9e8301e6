package domain

import (
	"encoding/json"
	"fmt"
)

// Role — итоговая роль пользователя в заметке (owner вычисляется, не хранится)
type Role string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) CanView() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// GrantRole хранится в collaborations.role как smallint
type GrantRole int16

const (
	GrantEditor GrantRole = 0
	GrantViewer GrantRole = 1
)

func (g GrantRole) Role() Role {
	switch g {
	case GrantEditor:
		return RoleEditor
	case GrantViewer:
		return RoleViewer
	}
	return RoleNone
}

func (g GrantRole) String() string { return string(g.Role()) }

func (g GrantRole) Valid() bool { return g == GrantEditor || g == GrantViewer }

func ParseGrantRole(s string) (GrantRole, error) {
	switch s {
	case "editor":
		return GrantEditor, nil
	case "viewer":
		return GrantViewer, nil
	}
	return 0, fmt.Errorf("role %q: %w", s, ErrBadParams)
}

func (g GrantRole) MarshalJSON() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("grant role %d: %w", g, ErrUnexpected)
	}
	return json.Marshal(g.String())
}

func (g *GrantRole) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("grant role: %w", ErrBadParams)
	}
	v, err := ParseGrantRole(s)
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// OperationType хранится в operations.operation_type как smallint.
// Клиентский словарь: insert/delete/retain.
type OperationType int16

const (
	OpInsert OperationType = 0
	OpDelete OperationType = 1
	OpRetain OperationType = 2
)

var opClientNames = map[OperationType]string{
	OpInsert: "insert",
	OpDelete: "delete",
	OpRetain: "retain",
}

func (t OperationType) Valid() bool {
	_, ok := opClientNames[t]
	return ok
}

// String возвращает клиентское имя типа.
func (t OperationType) String() string {
	if s, ok := opClientNames[t]; ok {
		return s
	}
	return fmt.Sprintf("op_%d", int16(t))
}

func ParseOperationType(s string) (OperationType, error) {
	for t, name := range opClientNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("operation type %q: %w", s, ErrBadParams)
}

func (t OperationType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("operation type %d: %w", t, ErrUnexpected)
	}
	return json.Marshal(t.String())
}

func (t *OperationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("operation type: %w", ErrBadParams)
	}
	v, err := ParseOperationType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
