// Package compose は撮影フレームの合成処理を提供する
//
// # 概要
//
// 1枚のフレームに対して、アスペクト比での切り抜き、色フィルタ、
// グリッド線、ウォーターマークの順に処理を適用し、新しいフレームを返す。
// 入力フレームは変更しない。
//
// # パイプライン
//
//   - 切り抜き: 中央を基準に指定のアスペクト比へ切り抜く。引き伸ばしはしない
//   - フィルタ: 明るさ、コントラスト、彩度、グレースケール、セピア、ぼかし
//   - グリッド: 三分割、黄金比、中央十字のいずれか。指定時のみ描画する
//   - ウォーターマーク: テキストかdata URIの画像を5つの位置のいずれかに重ねる
//
// # 使用例
//
//	compositor := compose.NewCompositor(logger)
//	out, err := compositor.Compose(frame, compose.Options{
//		AspectRatio: compose.Aspect1x1,
//		Filters:     compose.DefaultFilterOptions(),
//	})
package compose
