package scheduler

import "time"

// Outcome 拉取结果标签（指标用）
const OutcomeSuccess = "success"

// Observer 调度器事件观察者（指标）
type Observer interface {
	// ObserveFetch outcome 为 OutcomeSuccess 或失败类型（含 stale_result）
	ObserveFetch(line, outcome string, elapsed time.Duration)
	ObserveSkippedTick(line string)
	ObserveRefresh(elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, string, time.Duration) {}
func (nopObserver) ObserveSkippedTick(string)                  {}
func (nopObserver) ObserveRefresh(time.Duration)               {}
