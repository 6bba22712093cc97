// Package segment は、オフセットをキーとする並べ替えバッファを提供します。
//
// 順不同に到着したバイト列を保持し、基準オフセットから連続した部分のみを読み出します。
package segment
