package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/model"
	"golang.org/x/sync/errgroup"
)

// QuestionLookup resolves a question ID. Unknown IDs return model.ErrNotFound.
type QuestionLookup func(ctx context.Context, questionID string) (*model.Question, error)

const defaultFetchConcurrency = 8

// reference is one deduplicated entry of an exam's question collection.
type reference struct {
	key    string
	inline *model.Question
}

// Resolve turns an exam's raw question references into an ordered question sequence.
//
// The output follows reference order, keeps the first occurrence of every ID, and drops
// references the lookup cannot find. Any lookup error other than model.ErrNotFound aborts
// resolution. An empty or unreadable collection yields an empty sequence.
func Resolve(ctx context.Context, raw json.RawMessage, lookup QuestionLookup, concurrency int, log zerolog.Logger) ([]model.Question, error) {
	refs := dedupe(parseReferences(raw, log))
	if len(refs) == 0 {
		return []model.Question{}, nil
	}

	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}

	resolved := make([]*model.Question, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ref := range refs {
		if ref.inline != nil {
			resolved[i] = ref.inline
			continue
		}
		g.Go(func() error {
			q, err := lookup(gctx, ref.key)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					log.Warn().Str("question_id", ref.key).Msg("Question not found, skipping")
					return nil
				}
				return fmt.Errorf("fetch question %s: %w", ref.key, err)
			}
			if q == nil {
				log.Warn().Str("question_id", ref.key).Msg("Question not found, skipping")
				return nil
			}
			cp := *q
			if cp.ID == "" {
				cp.ID = ref.key
			}
			resolved[i] = &cp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(refs))
	for _, q := range resolved {
		if q != nil {
			questions = append(questions, *q)
		}
	}
	return questions, nil
}

func dedupe(refs []reference) []reference {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if r.key == "" {
			continue
		}
		if _, dup := seen[r.key]; dup {
			continue
		}
		seen[r.key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func parseReferences(raw json.RawMessage, log zerolog.Logger) []reference {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case 'n':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			log.Warn().Err(err).Msg("Unreadable question references")
			return nil
		}
		return splitIDs(s)
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			log.Warn().Err(err).Msg("Unreadable question references")
			return nil
		}
		refs := make([]reference, 0, len(entries))
		for pos, entry := range entries {
			if ref, ok := parseEntry(entry, pos, log); ok {
				refs = append(refs, ref)
			}
		}
		return refs
	case '{':
		refs, err := parseInclusionMap(raw, log)
		if err != nil {
			log.Warn().Err(err).Msg("Unreadable question references")
			return nil
		}
		return refs
	default:
		if id, ok := scalarID(raw); ok {
			return []reference{{key: id}}
		}
		log.Warn().Str("refs", string(raw)).Msg("Unsupported question reference shape")
		return nil
	}
}

func splitIDs(s string) []reference {
	var refs []reference
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			refs = append(refs, reference{key: id})
		}
	}
	return refs
}

// parseEntry reads one element of a reference array: an ID, a {id} reference object or an
// inline question.
func parseEntry(entry json.RawMessage, pos int, log zerolog.Logger) (reference, bool) {
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 {
		return reference{}, false
	}

	if entry[0] != '{' {
		id, ok := scalarID(entry)
		if !ok {
			log.Warn().Int("position", pos).Msg("Skipping unsupported question reference")
		}
		return reference{key: id}, ok
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(entry, &obj); err != nil {
		log.Warn().Err(err).Int("position", pos).Msg("Skipping unreadable question reference")
		return reference{}, false
	}

	id := objectID(obj)
	if !model.LooksLikeQuestion(obj) {
		if id == "" {
			log.Warn().Int("position", pos).Msg("Skipping question reference without an ID")
			return reference{}, false
		}
		return reference{key: id}, true
	}

	if id == "" {
		id = "inline-" + strconv.Itoa(pos)
	}
	return inlineReference(entry, id, log)
}

// parseInclusionMap walks an object in document order. Boolean values mark inclusion,
// null excludes, object values are inline questions keyed by the member name and any other
// value includes the key.
func parseInclusionMap(raw json.RawMessage, log zerolog.Logger) ([]reference, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var refs []reference
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		key = strings.TrimSpace(key)

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		val = bytes.TrimSpace(val)
		if key == "" || len(val) == 0 {
			continue
		}

		switch {
		case bytes.Equal(val, []byte("true")):
			refs = append(refs, reference{key: key})
		case bytes.Equal(val, []byte("false")), bytes.Equal(val, []byte("null")):
		case val[0] == '{':
			if ref, ok := inlineReference(val, key, log); ok {
				refs = append(refs, ref)
			}
		default:
			refs = append(refs, reference{key: key})
		}
	}
	return refs, nil
}

func inlineReference(raw json.RawMessage, key string, log zerolog.Logger) (reference, bool) {
	var q model.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		log.Warn().Err(err).Str("question_id", key).Msg("Skipping unreadable inline question")
		return reference{}, false
	}
	if q.ID == "" {
		q.ID = key
	}
	return reference{key: q.ID, inline: &q}, true
}

func objectID(obj map[string]json.RawMessage) string {
	for _, k := range []string{"id", "questionId", "questionID"} {
		if v, ok := obj[k]; ok {
			if id, ok := scalarID(v); ok {
				return id
			}
		}
	}
	return ""
}

// scalarID reads a JSON string or number as an ID.
func scalarID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
