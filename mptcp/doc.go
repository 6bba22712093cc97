// Package mptcp は、複数のサブフローで1つのバイトストリームを運ぶマルチパスコネクションを提供します。
//
// 能動側は Dial でマスターサブフローを開設し、受動側は Listener でMP_CAPABLEとMP_JOINのSYNを受け付けます。
// サブフロー自体の再送や輻輳制御は subflow.Transport の実装が担当し、このパッケージは
// データシーケンス番号の割り当てと再構成、サブフローの選択、コネクションレベルのクローズを扱います。
package mptcp
