package session

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/examquest-backend/internal/model"
)

func pairsEqual(got, want []model.Pair) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func canonical(t *testing.T, s *AnswerStore, index int) []model.Pair {
	t.Helper()
	raw, ok := s.Answer(index)
	if !ok {
		t.Fatalf("no answer at %d", index)
	}
	var pairs []model.Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		t.Fatalf("canonical answer is not a pair list: %v", err)
	}
	return pairs
}

func TestAnswerStore_SetAnswerLastWriteWins(t *testing.T) {
	s := NewAnswerStore()
	s.SetAnswer(0, json.RawMessage(`"A"`))
	s.SetAnswer(0, json.RawMessage(`"B"`))

	raw, ok := s.Answer(0)
	if !ok || string(raw) != `"B"` {
		t.Fatalf("answer = %s, want \"B\"", raw)
	}
	if s.Answered() != 1 {
		t.Fatalf("answered = %d, want 1", s.Answered())
	}
}

func TestAnswerStore_NullClearsAnswer(t *testing.T) {
	tests := []struct {
		name  string
		value json.RawMessage
	}{
		{"null", json.RawMessage(`null`)},
		{"padded null", json.RawMessage(" null ")},
		{"empty", json.RawMessage(``)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAnswerStore()
			s.SetAnswer(0, json.RawMessage(`"A"`))
			s.PlaceItem(1, "a", "1")
			s.SetAnswer(1, tt.value)
			s.SetAnswer(0, tt.value)

			if s.Answered() != 0 {
				t.Fatalf("answered = %d, want 0", s.Answered())
			}
			if _, ok := s.Answer(0); ok {
				t.Fatal("cleared answer still present")
			}
			if got := s.Placements(1); len(got) != 0 {
				t.Fatalf("placements = %v, want none", got)
			}
		})
	}
}

func TestAnswerStore_Placements(t *testing.T) {
	tests := []struct {
		name string
		ops  func(s *AnswerStore)
		want []model.Pair
	}{
		{
			name: "place in order",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.PlaceItem(0, "b", "2")
			},
			want: []model.Pair{{Item: "a", Target: "1"}, {Item: "b", Target: "2"}},
		},
		{
			name: "item moves to new target",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.PlaceItem(0, "a", "2")
			},
			want: []model.Pair{{Item: "a", Target: "2"}},
		},
		{
			name: "drop on occupied target overwrites in place",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.PlaceItem(0, "b", "2")
				s.PlaceItem(0, "c", "1")
			},
			want: []model.Pair{{Item: "c", Target: "1"}, {Item: "b", Target: "2"}},
		},
		{
			name: "removed then refilled target moves last",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.PlaceItem(0, "b", "2")
				s.RemovePlacement(0, "1")
				s.PlaceItem(0, "a", "1")
			},
			want: []model.Pair{{Item: "b", Target: "2"}, {Item: "a", Target: "1"}},
		},
		{
			name: "remove last placement leaves empty list",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.RemovePlacement(0, "1")
			},
			want: []model.Pair{},
		},
		{
			name: "empty labels ignored",
			ops: func(s *AnswerStore) {
				s.PlaceItem(0, "a", "1")
				s.PlaceItem(0, "", "2")
				s.PlaceItem(0, "b", "")
			},
			want: []model.Pair{{Item: "a", Target: "1"}},
		},
		{
			name: "seeded from pair list",
			ops: func(s *AnswerStore) {
				s.SetAnswer(0, json.RawMessage(`[{"item":"a","target":"1"},{"item":"b","match":"2"}]`))
				s.PlaceItem(0, "a", "2")
			},
			want: []model.Pair{{Item: "a", Target: "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAnswerStore()
			tt.ops(s)
			if got := canonical(t, s, 0); !pairsEqual(got, tt.want) {
				t.Fatalf("canonical = %+v, want %+v", got, tt.want)
			}
			if got := s.Placements(0); !pairsEqual(got, tt.want) {
				t.Fatalf("placements = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAnswerStore_RemoveUnknownTargetIsNoop(t *testing.T) {
	s := NewAnswerStore()
	s.RemovePlacement(3, "1")
	if _, ok := s.Answer(3); ok {
		t.Fatalf("removing from an empty question created an answer")
	}
}

func TestAnswerStore_EntriesSortedByIndex(t *testing.T) {
	s := NewAnswerStore()
	s.SetAnswer(2, json.RawMessage(`"C"`))
	s.SetAnswer(0, json.RawMessage(`"A"`))
	s.PlaceItem(1, "x", "y")

	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Fatalf("entry %d has index %d", i, e.Index)
		}
	}
}
