package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"meowpedia/internal/storage"
)

// DailyStats summarizes the turns of one calendar day.
type DailyStats struct {
	Date           string                  `json:"date"`
	Turns          int                     `json:"turns"`
	FailedTurns    int                     `json:"failed_turns"`
	UniqueSessions int                     `json:"unique_sessions"`
	CitedTurns     int                     `json:"cited_turns"`
	ByFrontend     map[string]int          `json:"by_frontend"`
	SessionStats   map[string]SessionStats `json:"session_stats"`
}

type SessionStats struct {
	SessionID string `json:"session_id"`
	Frontend  string `json:"frontend"`
	Turns     int    `json:"turns"`
	Failed    int    `json:"failed"`
}

// AnalyzeDailyTurns counts the events that fall on day in day's location.
// Events without a user message are ignored.
func AnalyzeDailyTurns(events []storage.Event, day time.Time) *DailyStats {
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		ByFrontend:   make(map[string]int),
		SessionStats: make(map[string]SessionStats),
	}

	for _, ev := range events {
		if ev.Timestamp.Before(startOfDay) || !ev.Timestamp.Before(endOfDay) {
			continue
		}
		if ev.UserMessage == "" {
			continue
		}

		stats.Turns++
		frontend := ev.Frontend
		if frontend == "" {
			frontend = "unknown"
		}
		stats.ByFrontend[frontend]++
		if ev.IsError {
			stats.FailedTurns++
		}
		if len(ev.Citations) > 0 {
			stats.CitedTurns++
		}

		ss, ok := stats.SessionStats[ev.SessionID]
		if !ok {
			ss = SessionStats{SessionID: ev.SessionID, Frontend: frontend}
		}
		ss.Turns++
		if ev.IsError {
			ss.Failed++
		}
		stats.SessionStats[ev.SessionID] = ss
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// Summary renders the stats as a short plain-text report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐱 喵博士日报 %s\n\n", ds.Date)
	fmt.Fprintf(&b, "- 对话轮数: %d\n", ds.Turns)
	fmt.Fprintf(&b, "- 失败轮数: %d\n", ds.FailedTurns)
	fmt.Fprintf(&b, "- 独立会话: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&b, "- 带参考资料的回答: %d\n", ds.CitedTurns)

	if len(ds.ByFrontend) > 0 {
		b.WriteString("\n按入口:\n")
		names := make([]string, 0, len(ds.ByFrontend))
		for name := range ds.ByFrontend {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %d\n", name, ds.ByFrontend[name])
		}
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
