package fetcher

import (
	"errors"
	"fmt"
)

// Kind 拉取失败类型
type Kind string

const (
	KindNetworkError        Kind = "network_error"
	KindAuthorizationDenied Kind = "authorization_denied"
	KindNoDataAvailable     Kind = "no_data_available"
	KindMalformedResponse   Kind = "malformed_response"
	KindStaleResult         Kind = "stale_result"
)

// 数据源名称（日志、指标、状态中使用）
const (
	SourceSensors  = "sensors"
	SourceLocation = "location"
	SourceWeather  = "weather"
)

// FetchError 分类后的拉取错误
type FetchError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewError 创建分类错误
func NewError(kind Kind, source string, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Err: err}
}

// KindOf 取出错误类型；未分类的错误一律视为 network_error
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetworkError
}

// Result 拉取结果：成功值或分类错误，二者只有其一
type Result[T any] struct {
	Value T
	Err   *FetchError
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Fail[T any](err *FetchError) Result[T] {
	return Result[T]{Err: err}
}

// IsOk 是否成功
func (r Result[T]) IsOk() bool { return r.Err == nil }
