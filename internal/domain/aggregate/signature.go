package aggregate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/model"
)

const signatureVersion = "v2"

// Rules are the classification inputs an Aggregate was computed under: the
// effective classifier thresholds after tenant preferences and service-wide
// options are applied, plus the turnover-on-downs preference.
type Rules struct {
	Thresholds             classify.Thresholds
	IncludeTurnoverOnDowns bool
}

// Signature fingerprints everything a cached Aggregate depends on: the team,
// the classification rules, the requested game IDs and the contributing
// events. Event order does not affect the result.
func Signature(teamID string, rules Rules, events []model.PlayEvent, gameIDs []string) string {
	records := make([]eventRecord, len(events))
	for i := range events {
		records[i] = eventRecord{id: events[i].ID, body: encodeEvent(&events[i])}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].id != records[j].id {
			return records[i].id < records[j].id
		}
		return bytes.Compare(records[i].body, records[j].body) < 0
	})

	ids := append([]string(nil), gameIDs...)
	sort.Strings(ids)

	d := xxhash.New()
	w := fieldWriter{d: d}
	w.str(signatureVersion)
	w.str(teamID)
	t := rules.Thresholds
	w.str(formatFloat(t.FirstDownFraction))
	w.str(formatFloat(t.FirstDownMinYards))
	w.str(formatFloat(t.SecondDownFraction))
	w.str(formatFloat(t.ExplosiveRunYards))
	w.str(formatFloat(t.ExplosivePassYards))
	w.str(formatFloat(t.ReturnExplosiveYards))
	w.str(strconv.FormatBool(rules.IncludeTurnoverOnDowns))

	w.count(len(ids))
	for _, id := range ids {
		w.str(id)
	}
	w.count(len(records))
	for _, r := range records {
		w.raw(r.body)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

type eventRecord struct {
	id   string
	body []byte
}

func encodeEvent(e *model.PlayEvent) []byte {
	var buf bytes.Buffer
	w := fieldWriter{d: &buf}
	w.str(e.ID)
	w.str(e.GameID)
	w.str(e.CreatedAt)
	w.str(string(e.PlayFamily))
	w.str(optFloat(e.GainedYards))
	w.str(optFloat(e.Distance))
	if e.Down != nil {
		w.str(strconv.Itoa(*e.Down))
	} else {
		w.str("null")
	}
	w.str(strconv.FormatBool(e.Turnover))
	if e.TurnoverDetail != nil {
		w.str(e.TurnoverDetail.Type)
	} else {
		w.str("null")
	}
	if s := e.Scoring; s != nil {
		w.str(s.Type)
		w.str(strconv.Itoa(s.Points))
		w.str(s.ScoredBy)
	} else {
		w.str("null")
	}
	return buf.Bytes()
}

// fieldWriter length-prefixes every field so adjacent values cannot collide.
type fieldWriter struct {
	d interface{ Write([]byte) (int, error) }
}

func (w fieldWriter) count(n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	_, _ = w.d.Write(b[:])
}

func (w fieldWriter) str(s string) {
	w.raw([]byte(s))
}

func (w fieldWriter) raw(p []byte) {
	w.count(len(p))
	_, _ = w.d.Write(p)
}

func optFloat(v *float64) string {
	if v == nil {
		return "null"
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
