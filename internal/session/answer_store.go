package session

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/stemsi/examquest-backend/internal/model"
)

// Entry is one captured answer.
type Entry struct {
	Index int             `json:"questionIndex"`
	Value json.RawMessage `json:"answer"`
}

// placements holds the target→item assignments of one drag-drop question. order keeps target
// insertion order: overwriting a target keeps its slot, clearing and refilling it moves it last.
type placements struct {
	order []string
	items map[string]string
}

func newPlacements() *placements {
	return &placements{items: make(map[string]string)}
}

func (p *placements) set(target, item string) {
	if _, ok := p.items[target]; !ok {
		p.order = append(p.order, target)
	}
	p.items[target] = item
}

func (p *placements) clear(target string) bool {
	if _, ok := p.items[target]; !ok {
		return false
	}
	delete(p.items, target)
	p.order = slices.DeleteFunc(p.order, func(t string) bool { return t == target })
	return true
}

func (p *placements) pairs() []model.Pair {
	out := make([]model.Pair, 0, len(p.order))
	for _, t := range p.order {
		out = append(out, model.Pair{Item: p.items[t], Target: t})
	}
	return out
}

// AnswerStore maps question positions to the student's current answers. It never validates
// answers against question types and is not safe for concurrent use.
type AnswerStore struct {
	answers    map[int]json.RawMessage
	placements map[int]*placements
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers:    make(map[int]json.RawMessage),
		placements: make(map[int]*placements),
	}
}

// SetAnswer overwrites the answer at index. A pair list also replaces the drag-drop
// placements of that question so later drops build on it. An empty or null value clears the
// question, which then counts as unanswered again.
func (s *AnswerStore) SetAnswer(index int, value json.RawMessage) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		delete(s.answers, index)
		delete(s.placements, index)
		return
	}
	s.answers[index] = slices.Clone(value)

	var pairs []model.Pair
	if err := json.Unmarshal(value, &pairs); err != nil {
		delete(s.placements, index)
		return
	}
	p := newPlacements()
	for _, pair := range pairs {
		if pair.Item == "" || pair.Target == "" {
			continue
		}
		p.place(pair.Item, pair.Target)
	}
	s.placements[index] = p
}

// PlaceItem drops item onto target. The item leaves any other target it occupied and
// replaces whatever item the target held.
func (s *AnswerStore) PlaceItem(index int, item, target string) {
	if item == "" || target == "" {
		return
	}
	p, ok := s.placements[index]
	if !ok {
		p = newPlacements()
		s.placements[index] = p
	}
	p.place(item, target)
	s.sync(index, p)
}

// RemovePlacement clears one target.
func (s *AnswerStore) RemovePlacement(index int, target string) {
	p, ok := s.placements[index]
	if !ok || !p.clear(target) {
		return
	}
	s.sync(index, p)
}

func (p *placements) place(item, target string) {
	for _, t := range slices.Clone(p.order) {
		if t != target && p.items[t] == item {
			p.clear(t)
		}
	}
	p.set(target, item)
}

// sync recomputes the canonical pair-list answer of a drag-drop question.
func (s *AnswerStore) sync(index int, p *placements) {
	raw, err := json.Marshal(p.pairs())
	if err != nil {
		return
	}
	s.answers[index] = raw
}

func (s *AnswerStore) Answer(index int) (json.RawMessage, bool) {
	v, ok := s.answers[index]
	return v, ok
}

// Placements returns the current drag-drop pairs of a question in canonical order.
func (s *AnswerStore) Placements(index int) []model.Pair {
	p, ok := s.placements[index]
	if !ok {
		return []model.Pair{}
	}
	return p.pairs()
}

// Answered counts questions that hold an answer.
func (s *AnswerStore) Answered() int {
	return len(s.answers)
}

// Entries returns all answers ordered by question index.
func (s *AnswerStore) Entries() []Entry {
	out := make([]Entry, 0, len(s.answers))
	for idx, v := range s.answers {
		out = append(out, Entry{Index: idx, Value: slices.Clone(v)})
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.Index - b.Index })
	return out
}
