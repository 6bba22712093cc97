// Package metrics は、サブフローの輸送メトリクスを参照するためのインターフェースと実装を提供します。
//
// # Provider
//
// Provider は、平滑化RTT、RTT変動、輻輳ウィンドウ、送信中のバイト数を返します。
// スケジューラは、これらの値を用いてデータを運ぶサブフローを選択します。
//
// # 実装
//
// TCPInfoProvider (Linuxのみ):
//   - TCP_INFO を介してカーネルからメトリクスを取得します
//   - バックグラウンドで定期的に更新します
//
// Estimator:
//   - トランスポート自身が計測したRTTサンプルから RFC 6298 に従って推定します
//   - カーネルの情報を利用できないインメモリのトランスポートで使用します
package metrics
