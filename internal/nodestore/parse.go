package nodestore

import (
	"encoding/json"
	"time"

	"github.com/ehrlich-b/kgraph/internal/jsonl"
)

// parseContent reads a node.jsonl file, applying bullets then tombstones in
// write order. Unparseable lines, including a torn trailing line left by a
// concurrent writer, are discarded rather than failing the read, per the
// reader-never-locks contract.
func parseContent(path string) (*header, []Bullet, error) {
	var hdr *header
	var order []string
	byID := map[string]*contentBullet{}
	deleted := map[string]bool{}

	err := jsonl.ReadAll(path, func(line []byte) error {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil // discard unparseable (possibly torn) line
		}

		if _, ok := probe["slug"]; ok {
			var h header
			if err := json.Unmarshal(line, &h); err == nil {
				hdr = &h
			}
			return nil
		}

		if _, ok := probe["deleted"]; ok {
			var ts tombstone
			if err := json.Unmarshal(line, &ts); err == nil && ts.Deleted {
				if _, seen := byID[ts.ID]; seen {
					deleted[ts.ID] = true
				}
				// tombstone with no preceding record is ignored.
			}
			return nil
		}

		var b contentBullet
		if err := json.Unmarshal(line, &b); err != nil || b.ID == "" {
			return nil
		}
		if _, seen := byID[b.ID]; !seen {
			order = append(order, b.ID)
		}
		cp := b
		byID[b.ID] = &cp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	live := make([]Bullet, 0, len(order))
	for _, id := range order {
		if deleted[id] {
			continue
		}
		b := byID[id]
		live = append(live, Bullet{
			ID:        b.ID,
			Type:      b.Type,
			Text:      b.Text,
			CreatedAt: b.CreatedAt,
			Status:    b.Status,
		})
	}
	return hdr, live, nil
}

// metaState is the fully-folded result of replaying meta.jsonl: per-bullet
// vote counters (last record per id wins) and node-level scalars (last
// record with no id wins).
type metaState struct {
	votes        map[string]metaRecord
	tokenBudget  int
	lastReviewed *time.Time
}

func parseMeta(path string) (*metaState, error) {
	st := &metaState{votes: map[string]metaRecord{}}
	var lastScalar *metaRecord

	err := jsonl.ReadAll(path, func(line []byte) error {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil
		}
		var rec metaRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		if _, hasID := probe["id"]; hasID && rec.ID != "" {
			st.votes[rec.ID] = rec
			return nil
		}
		cp := rec
		lastScalar = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lastScalar != nil {
		st.tokenBudget = lastScalar.TokenBudget
		st.lastReviewed = lastScalar.LastReviewed
	}
	return st, nil
}

func (m *metaState) applyTo(bullets []Bullet) {
	for i := range bullets {
		if rec, ok := m.votes[bullets[i].ID]; ok {
			bullets[i].Useful = rec.Useful
			bullets[i].Harmful = rec.Harmful
			bullets[i].Used = rec.Used
		}
	}
}
