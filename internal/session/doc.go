// Package session はカメラセッションの状態機械を提供する
//
// # 概要
//
// Controller がストリームの取得、プレビュー、写真撮影、録画を調整する。
// 状態は idle, streaming, capturing, recording の4つで、
// 撮影と録画は同時に1つしか実行できない。
//
// # 状態遷移
//
//	idle --Start--> streaming
//	streaming --TakePhoto--> capturing --> streaming
//	streaming --StartRecording--> recording
//	recording --StopRecording--> streaming
//	streaming|capturing|recording --Stop--> idle
//
// 不正な遷移は ErrInvalidStateTransition を包んだ *InvalidTransitionError を返す。
// 実行中の操作がある間の要求はキューに積まず拒否する。
//
// # 停止時の録画
//
// 録画中に Stop した場合の扱いは CaptureConfig.TeardownPolicy で選ぶ。
// TeardownFinalize なら録画を確定して Stop の戻り値で返し、
// TeardownDiscard ならエンコーダを中断して破棄する。
package session
