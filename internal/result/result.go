// Package result は非同期操作の結果を表す三状態型（Pending / Success / Failure）と、
// その最新値を複数の購読者へ配信するCellを提供する。
package result

import (
	"encoding/json"
	"fmt"
)

// Status はResultの状態を表す。
type Status int

const (
	// StatusPending は操作が進行中であることを示す。Resultのゼロ値。
	StatusPending Status = iota
	// StatusSuccess は操作が値を伴って成功したことを示す。
	StatusSuccess
	// StatusFailure は操作がメッセージを伴って失敗したことを示す。
	StatusFailure
)

// String はStatusのJSON表現に使う文字列を返す。
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result はPending、Success(value)、Failure(message)のいずれか1つを保持する。
// フィールドは非公開で、生成はPending/Success/Failureのみから行う。
type Result[T any] struct {
	status  Status
	value   T
	message string
}

// Pending は進行中を表すResultを返す。
func Pending[T any]() Result[T] {
	return Result[T]{status: StatusPending}
}

// Success は値を伴う成功Resultを返す。
func Success[T any](value T) Result[T] {
	return Result[T]{status: StatusSuccess, value: value}
}

// Failure はメッセージを伴う失敗Resultを返す。
func Failure[T any](message string) Result[T] {
	return Result[T]{status: StatusFailure, message: message}
}

// Status は状態を返す。
func (r Result[T]) Status() Status {
	return r.status
}

// IsPending は進行中かどうかを返す。
func (r Result[T]) IsPending() bool { return r.status == StatusPending }

// IsSuccess は成功かどうかを返す。
func (r Result[T]) IsSuccess() bool { return r.status == StatusSuccess }

// IsFailure は失敗かどうかを返す。
func (r Result[T]) IsFailure() bool { return r.status == StatusFailure }

// Value は成功時の値を返す。成功以外の場合はゼロ値とfalseを返す。
func (r Result[T]) Value() (T, bool) {
	if r.status != StatusSuccess {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Message は失敗時のメッセージを返す。失敗以外の場合は空文字列。
func (r Result[T]) Message() string {
	return r.message
}

// Match は状態ごとの関数を1つだけ呼び出し、その戻り値を返す。
// 3つの分岐すべての指定を強制することで網羅的な扱いを保証する。
func Match[T, R any](r Result[T], onPending func() R, onSuccess func(T) R, onFailure func(string) R) R {
	switch r.status {
	case StatusPending:
		return onPending()
	case StatusSuccess:
		return onSuccess(r.value)
	case StatusFailure:
		return onFailure(r.message)
	default:
		panic(fmt.Sprintf("result: unknown status %d", int(r.status)))
	}
}

// Switch は戻り値を持たない網羅的な分岐を行う。
func (r Result[T]) Switch(onPending func(), onSuccess func(T), onFailure func(string)) {
	Match(r,
		func() struct{} { onPending(); return struct{}{} },
		func(v T) struct{} { onSuccess(v); return struct{}{} },
		func(msg string) struct{} { onFailure(msg); return struct{}{} },
	)
}

// jsonResult はPendingとFailureのJSON表現。
type jsonResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON は {"status":"success","data":...} 形式でエンコードする。
// Success(nil) の場合は "data": null を明示的に出力する。
func (r Result[T]) MarshalJSON() ([]byte, error) {
	switch r.status {
	case StatusPending:
		return json.Marshal(jsonResult{Status: StatusPending.String()})
	case StatusSuccess:
		return json.Marshal(struct {
			Status string `json:"status"`
			Data   T      `json:"data"`
		}{Status: StatusSuccess.String(), Data: r.value})
	case StatusFailure:
		return json.Marshal(jsonResult{Status: StatusFailure.String(), Message: r.message})
	default:
		return nil, fmt.Errorf("result: unknown status %d", int(r.status))
	}
}
