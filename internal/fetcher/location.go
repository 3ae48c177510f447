package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"

	"go.uber.org/zap"
)

// Permission 定位权限状态
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// ParsePermission 解析权限字符串，未知值按 undetermined 处理
func ParsePermission(s string) Permission {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionUndetermined
	}
}

// Accuracy 定位精度
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyBalanced
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyLow:
		return "low"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyHigh:
		return "high"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

// ParseAccuracy 解析精度字符串，未知值按 balanced 处理
func ParseAccuracy(s string) Accuracy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return AccuracyLow
	case "high":
		return AccuracyHigh
	default:
		return AccuracyBalanced
	}
}

// ErrMalformedLocation 设备上报的位置无法解码
var ErrMalformedLocation = errors.New("malformed device location")

// LocationProvider 设备定位能力。
// CurrentPosition 返回 nil 且无错误表示设备暂时没有位置。
type LocationProvider interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy) (*models.UserLocation, error)
}

// LocationFetcher 用户位置拉取
type LocationFetcher interface {
	FetchLocation(ctx context.Context) Result[models.UserLocation]
}

// PermissionLocationFetcher 先请求权限，再取一次位置（默认 balanced 精度）
type PermissionLocationFetcher struct {
	provider LocationProvider
	accuracy Accuracy
	logger   *zap.Logger
}

func NewPermissionLocationFetcher(provider LocationProvider, logger *zap.Logger) *PermissionLocationFetcher {
	return &PermissionLocationFetcher{provider: provider, accuracy: AccuracyBalanced, logger: logger}
}

// SetAccuracy 设置定位精度（需在开始拉取之前调用）
func (f *PermissionLocationFetcher) SetAccuracy(a Accuracy) {
	f.accuracy = a
}

func (f *PermissionLocationFetcher) FetchLocation(ctx context.Context) Result[models.UserLocation] {
	perm, err := f.provider.RequestPermission(ctx)
	if err != nil {
		return Fail[models.UserLocation](providerError(err))
	}
	if perm != PermissionGranted {
		return Fail[models.UserLocation](NewError(KindAuthorizationDenied, SourceLocation,
			fmt.Errorf("location permission %s", perm)))
	}

	pos, err := f.provider.CurrentPosition(ctx, f.accuracy)
	if err != nil {
		return Fail[models.UserLocation](providerError(err))
	}
	if pos == nil {
		return Fail[models.UserLocation](NewError(KindNoDataAvailable, SourceLocation,
			errors.New("device reported no position")))
	}
	return Ok(*pos)
}

func providerError(err error) *FetchError {
	if errors.Is(err, ErrMalformedLocation) {
		return NewError(KindMalformedResponse, SourceLocation, err)
	}
	// provider 自己分类过的错误保留原类型
	return NewError(KindOf(err), SourceLocation, err)
}

// StaticLocationProvider 固定配置的位置和权限
type StaticLocationProvider struct {
	Permission Permission
	Location   *models.UserLocation
}

func (p *StaticLocationProvider) RequestPermission(ctx context.Context) (Permission, error) {
	return p.Permission, nil
}

func (p *StaticLocationProvider) CurrentPosition(ctx context.Context, accuracy Accuracy) (*models.UserLocation, error) {
	if p.Location == nil {
		return nil, nil
	}
	loc := *p.Location
	return &loc, nil
}

// LocationKeyPrefix 设备位置 key 前缀
const LocationKeyPrefix = "cafe:location:"

// LocationKey 构造设备位置 key：cafe:location:{device}
func LocationKey(deviceID string) string {
	return LocationKeyPrefix + deviceID
}

// deviceLocation 设备上报的 JSON
type deviceLocation struct {
	Permission string   `json:"permission"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// KVLocationProvider 读取设备上报到 KV 的权限和坐标
type KVLocationProvider struct {
	kv       store.KV
	deviceID string
}

func NewKVLocationProvider(kv store.KV, deviceID string) *KVLocationProvider {
	return &KVLocationProvider{kv: kv, deviceID: deviceID}
}

func (p *KVLocationProvider) load(ctx context.Context) (*deviceLocation, error) {
	raw, err := p.kv.Get(ctx, LocationKey(p.deviceID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("read device location %s: %w", p.deviceID, err)
	}
	var dl deviceLocation
	if err := json.Unmarshal([]byte(raw), &dl); err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", ErrMalformedLocation, p.deviceID, err)
	}
	return &dl, nil
}

// RequestPermission 设备从未上报过时视为 undetermined
func (p *KVLocationProvider) RequestPermission(ctx context.Context) (Permission, error) {
	dl, err := p.load(ctx)
	if err != nil {
		return "", err
	}
	if dl == nil {
		return PermissionUndetermined, nil
	}
	return ParsePermission(dl.Permission), nil
}

// CurrentPosition 设备上报的精度固定，accuracy 参数不影响结果
func (p *KVLocationProvider) CurrentPosition(ctx context.Context, accuracy Accuracy) (*models.UserLocation, error) {
	dl, err := p.load(ctx)
	if err != nil || dl == nil {
		return nil, err
	}
	if dl.Latitude == nil || dl.Longitude == nil {
		return nil, nil
	}
	return &models.UserLocation{Latitude: *dl.Latitude, Longitude: *dl.Longitude}, nil
}
