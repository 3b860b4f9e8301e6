package domain

import (
	"encoding/json"
	"time"
)

// DocumentState: счётчик версий и накопленный лог операций заметки.
// Это не OT/CRDT: конкурентные правки не сливаются, просто дописываются в конец.
type DocumentState struct {
	Version    int64              `json:"version"`
	Operations []OperationSummary `json:"operations"`
}

// OperationSummary — запись в document_state.operations
type OperationSummary struct {
	Type      string  `json:"type"`
	Position  int     `json:"position"`
	Content   *string `json:"content"`
	Timestamp string  `json:"timestamp"`
}

func NewDocumentState() DocumentState {
	return DocumentState{Version: 0, Operations: []OperationSummary{}}
}

// Apply увеличивает версию ровно на 1 и дописывает сводку операции.
func (s DocumentState) Apply(op OperationType, position int, content *string, at time.Time) DocumentState {
	ops := make([]OperationSummary, len(s.Operations), len(s.Operations)+1)
	copy(ops, s.Operations)
	ops = append(ops, OperationSummary{
		Type:      op.String(),
		Position:  position,
		Content:   content,
		Timestamp: FormatTimestamp(at),
	})
	return DocumentState{Version: s.Version + 1, Operations: ops}
}

// DecodeDocumentState читает jsonb; пустое значение даёт нулевое состояние.
func DecodeDocumentState(raw []byte) (DocumentState, error) {
	if isBlankJSON(raw) {
		return NewDocumentState(), nil
	}
	var st DocumentState
	if err := json.Unmarshal(raw, &st); err != nil {
		return DocumentState{}, err
	}
	if st.Operations == nil {
		st.Operations = []OperationSummary{}
	}
	if st.Version < 0 {
		st.Version = 0
	}
	return st, nil
}

func (s DocumentState) Encode() ([]byte, error) {
	if s.Operations == nil {
		s.Operations = []OperationSummary{}
	}
	return json.Marshal(s)
}
