package connector

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// pacific is the fixed-offset approximation of America/Los_Angeles used for
// the daily reset boundary. A full IANA lookup (time.LoadLocation) would be
// more correct across DST transitions, but the quota file's reset semantics
// only need same-day/different-day granularity, which a fixed UTC-8 offset
// gets right except during the one-hour DST ambiguity window twice a year.
var pacific = time.FixedZone("PT", -8*60*60)

// quotaThresholds are the percentages of the daily limit at which a
// warning is logged exactly once per day.
var quotaThresholds = []int{70, 80, 90}

// quotaState is the on-disk shape of the Gemini-CLI connector's daily
// request counter.
type quotaState struct {
	Count           int      `json:"count"`
	LastResetDate   string   `json:"last_reset_date"`
	LoggedThresholds []int   `json:"logged_thresholds"`
}

// quotaCounter is a process-wide, file-persisted daily request counter.
type quotaCounter struct {
	path  string
	limit int

	mu    sync.Mutex
	state quotaState
}

func newQuotaCounter(path string, limit int) *quotaCounter {
	qc := &quotaCounter{path: path, limit: limit}
	qc.load()
	return qc
}

func (qc *quotaCounter) load() {
	raw, err := os.ReadFile(qc.path)
	if err != nil {
		qc.state = quotaState{LastResetDate: todayPacific()}
		return
	}
	var s quotaState
	if err := json.Unmarshal(raw, &s); err != nil {
		qc.state = quotaState{LastResetDate: todayPacific()}
		return
	}
	qc.state = s
}

func (qc *quotaCounter) save() {
	raw, err := json.Marshal(qc.state)
	if err != nil {
		return
	}
	if err := os.WriteFile(qc.path, raw, 0o600); err != nil {
		log.Warnf("gemini-cli: failed to persist quota state: %v", err)
	}
}

func todayPacific() string {
	return time.Now().In(pacific).Format("2006-01-02")
}

// Increment records one request against today's count, resetting first if
// the Pacific-time day has rolled over, and logs each quota threshold
// crossing exactly once per day.
func (qc *quotaCounter) Increment() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	today := todayPacific()
	if qc.state.LastResetDate != today {
		qc.state = quotaState{LastResetDate: today}
	}
	qc.state.Count++

	if qc.limit > 0 {
		pct := qc.state.Count * 100 / qc.limit
		for _, t := range quotaThresholds {
			if pct >= t && !containsInt(qc.state.LoggedThresholds, t) {
				qc.state.LoggedThresholds = append(qc.state.LoggedThresholds, t)
				log.Warnf("gemini-cli: daily quota at %d%% (%d/%d requests)", t, qc.state.Count, qc.limit)
			}
		}
	}
	qc.save()
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
