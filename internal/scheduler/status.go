package scheduler

import (
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/fetcher"
)

// 拉取线路
const (
	LineSensors  = fetcher.SourceSensors
	LineLocation = fetcher.SourceLocation
	LineWeather  = fetcher.SourceWeather
)

// LineState 线路状态
type LineState string

const (
	LineIdle     LineState = "idle"
	LineFetching LineState = "fetching"
)

// LineStatus 单条线路的可观测状态
type LineStatus struct {
	Line              string       `json:"line"`
	State             LineState    `json:"state"`
	InFlight          int          `json:"in_flight"`
	LaunchedGen       uint64       `json:"launched_generation"`
	AppliedGen        uint64       `json:"applied_generation"`
	LastSuccessAt     *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt     *time.Time   `json:"last_failure_at,omitempty"`
	LastFailureKind   fetcher.Kind `json:"last_failure_kind,omitempty"`
	LastFailureReason string       `json:"last_failure_reason,omitempty"`
	Successes         uint64       `json:"successes"`
	Failures          uint64       `json:"failures"`
	StaleDropped      uint64       `json:"stale_dropped"`
	SkippedTicks      uint64       `json:"skipped_ticks"`
}

// Status 调度器整体状态
type Status struct {
	Running    bool         `json:"running"`
	Refreshing bool         `json:"refreshing"`
	Lines      []LineStatus `json:"lines"`
}

// lineState 事件循环内部维护的线路状态
type lineState struct {
	status LineStatus
}

func newLineState(line string) *lineState {
	return &lineState{status: LineStatus{Line: line, State: LineIdle}}
}

func (l *lineState) begin() uint64 {
	l.status.LaunchedGen++
	l.status.InFlight++
	l.status.State = LineFetching
	return l.status.LaunchedGen
}

func (l *lineState) end() {
	if l.status.InFlight > 0 {
		l.status.InFlight--
	}
	if l.status.InFlight == 0 {
		l.status.State = LineIdle
	}
}

func (l *lineState) fetching() bool {
	return l.status.InFlight > 0
}

// accept 判断成功结果是否比已应用的更新
func (l *lineState) accept(gen uint64, at time.Time) bool {
	if gen <= l.status.AppliedGen {
		l.status.StaleDropped++
		return false
	}
	l.status.AppliedGen = gen
	l.status.Successes++
	t := at
	l.status.LastSuccessAt = &t
	return true
}

func (l *lineState) fail(err *fetcher.FetchError, at time.Time) {
	l.status.Failures++
	t := at
	l.status.LastFailureAt = &t
	l.status.LastFailureKind = err.Kind
	if err.Err != nil {
		l.status.LastFailureReason = err.Err.Error()
	} else {
		l.status.LastFailureReason = ""
	}
}

func (l *lineState) snapshot() LineStatus {
	s := l.status
	if s.LastSuccessAt != nil {
		t := *s.LastSuccessAt
		s.LastSuccessAt = &t
	}
	if s.LastFailureAt != nil {
		t := *s.LastFailureAt
		s.LastFailureAt = &t
	}
	return s
}
