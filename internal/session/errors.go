package session

import (
	"errors"
	"fmt"
)

var (
	ErrCaptureFailed          = errors.New("キャプチャに失敗しました")
	ErrAlreadyRecording       = errors.New("既に録画中です")
	ErrNotRecording           = errors.New("録画していません")
	ErrInvalidStateTransition = errors.New("無効な状態遷移です")
	ErrInvalidConfig          = errors.New("設定が不正です")
)

// InvalidTransitionError は現在の状態から要求された状態へ遷移できないことを表す
type InvalidTransitionError struct {
	Op        string
	Current   State
	Requested State
	InFlight  string // 実行中の操作があればその名前
}

func (e *InvalidTransitionError) Error() string {
	if e.InFlight != "" {
		return fmt.Sprintf("無効な状態遷移です: %s → %s (%s の実行中は %s を受け付けません)", e.Current, e.Requested, e.InFlight, e.Op)
	}
	return fmt.Sprintf("無効な状態遷移です: %s → %s (%s)", e.Current, e.Requested, e.Op)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// OpError は操作の失敗に、試みた操作と当時の状態を添える
type OpError struct {
	Op    string
	State State
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s に失敗 (state=%s): %v", e.Op, e.State, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
