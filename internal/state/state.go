package state

import (
	"errors"
	"sync"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
)

var (
	// ErrSensorNotFound 选择的传感器不在当前模型中
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrNoSelection 当前没有选中的传感器
	ErrNoSelection = errors.New("no sensor selected")
	// ErrWeatherUnavailable 尚无天气数据，无法对比
	ErrWeatherUnavailable = errors.New("weather not available")
)

// ChangeHook 状态变更回调，参数为变更后的快照。
// 在写入方 goroutine 上同步调用，实现方不应阻塞。
type ChangeHook func(models.DashboardSnapshot)

// Detail 选中传感器的详情
type Detail struct {
	Reading    models.SensorReading `json:"reading"`
	Stale      bool                 `json:"stale"`
	Comparison *models.Comparison   `json:"comparison,omitempty"`
}

// PresentationState 看板展示状态。
// 写操作只有 ReplaceModel / SetRefreshing / SelectSensor / ClearSelection 三类，
// 由调度器事件循环独占调用；读操作可在任意 goroutine 上进行。
type PresentationState struct {
	mu         sync.RWMutex
	model      models.DashboardViewModel
	refreshing bool
	selectedID *string
	lastDetail *models.SensorReading // 选中传感器最后一次有效读数
	version    uint64
	updatedAt  time.Time
	hooks      []ChangeHook
	now        func() time.Time
}

// New 创建空状态
func New() *PresentationState {
	return &PresentationState{
		model: models.DashboardViewModel{Sensors: []models.SensorReading{}},
		now:   time.Now,
	}
}

// OnChange 注册变更回调（需在启动前注册）
func (s *PresentationState) OnChange(h ChangeHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// ReplaceModel 替换整个模型。
// 选中的传感器仍在新模型中时刷新详情快照，否则保留上一份读数。
func (s *PresentationState) ReplaceModel(m models.DashboardViewModel) {
	s.mu.Lock()
	s.model = m.Clone()
	if s.selectedID != nil {
		if r, ok := s.model.FindSensor(*s.selectedID); ok {
			s.lastDetail = &r
		}
	}
	snap, hooks := s.bumpLocked()
	s.mu.Unlock()

	notify(hooks, snap)
}

// SetRefreshing 设置下拉刷新标志；值未变化时不触发回调
func (s *PresentationState) SetRefreshing(v bool) {
	s.mu.Lock()
	if s.refreshing == v {
		s.mu.Unlock()
		return
	}
	s.refreshing = v
	snap, hooks := s.bumpLocked()
	s.mu.Unlock()

	notify(hooks, snap)
}

// SelectSensor 选中传感器；id 必须在当前模型中
func (s *PresentationState) SelectSensor(id string) error {
	s.mu.Lock()
	r, ok := s.model.FindSensor(id)
	if !ok {
		s.mu.Unlock()
		return ErrSensorNotFound
	}
	sel := id
	s.selectedID = &sel
	s.lastDetail = &r
	snap, hooks := s.bumpLocked()
	s.mu.Unlock()

	notify(hooks, snap)
	return nil
}

// ClearSelection 关闭详情
func (s *PresentationState) ClearSelection() {
	s.mu.Lock()
	if s.selectedID == nil {
		s.mu.Unlock()
		return
	}
	s.selectedID = nil
	s.lastDetail = nil
	snap, hooks := s.bumpLocked()
	s.mu.Unlock()

	notify(hooks, snap)
}

// Snapshot 当前状态快照（深拷贝）
func (s *PresentationState) Snapshot() models.DashboardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Model 当前模型（深拷贝）
func (s *PresentationState) Model() models.DashboardViewModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Clone()
}

// Location 当前已知的用户位置
func (s *PresentationState) Location() (models.UserLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model.Location == nil {
		return models.UserLocation{}, false
	}
	return *s.model.Location, true
}

// SelectedDetail 选中传感器的详情。
// 传感器已不在模型中时返回最后一次有效读数并标记 Stale。
func (s *PresentationState) SelectedDetail() (*Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selectedID == nil || s.lastDetail == nil {
		return nil, ErrNoSelection
	}

	d := &Detail{Reading: *s.lastDetail}
	if r, ok := s.model.FindSensor(*s.selectedID); ok {
		d.Reading = r
	} else {
		d.Stale = true
	}
	if s.model.Weather != nil {
		c := models.Compare(d.Reading, *s.model.Weather)
		d.Comparison = &c
	}
	return d, nil
}

// Comparison 模型中某个传感器与当前天气的差值
func (s *PresentationState) Comparison(id string) (models.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.model.FindSensor(id)
	if !ok {
		return models.Comparison{}, ErrSensorNotFound
	}
	if s.model.Weather == nil {
		return models.Comparison{}, ErrWeatherUnavailable
	}
	return models.Compare(r, *s.model.Weather), nil
}

func (s *PresentationState) bumpLocked() (models.DashboardSnapshot, []ChangeHook) {
	s.version++
	s.updatedAt = s.now().UTC()
	hooks := make([]ChangeHook, len(s.hooks))
	copy(hooks, s.hooks)
	return s.snapshotLocked(), hooks
}

func (s *PresentationState) snapshotLocked() models.DashboardSnapshot {
	snap := models.DashboardSnapshot{
		Model:      s.model.Clone(),
		Refreshing: s.refreshing,
		Version:    s.version,
		UpdatedAt:  s.updatedAt,
	}
	if s.selectedID != nil {
		id := *s.selectedID
		snap.SelectedSensorID = &id
	}
	return snap
}

func notify(hooks []ChangeHook, snap models.DashboardSnapshot) {
	for _, h := range hooks {
		h(snap)
	}
}
