package mapping

import (
	"slices"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/segment"
	"github.com/aptpod/mptcp-go/option"
)

// 矛盾検出のために保持する適用済みマッピングの数です。
const retiredHistory = 64

type subflowRx struct {
	data    *segment.Buffer // 相対シーケンス番号をキーとするサブフローの受信データ
	pending []Mapping       // SubflowSeqでソート済み
	retired []Mapping
}

// Receiverは、受信側の再構成を行います。
//
// サブフローごとの未適用マッピングと受信データを保持し、サブフローの次に期待する
// バイトからマッピングが揃った時点で、コネクションレベルの並べ替えバッファへコピーします。
type Receiver struct {
	reorder  *segment.Buffer
	subflows map[uint32]*subflowRx

	finSeq *uint64

	infinite   bool
	infiniteID uint32
	infEdge    uint64
}

// NewReceiverは、ピアの初期データシーケンス番号からReceiverを生成します。
func NewReceiver(peerIDSN uint64) *Receiver {
	return &Receiver{
		reorder:  segment.NewBuffer(peerIDSN + 1),
		subflows: make(map[uint32]*subflowRx),
	}
}

func (r *Receiver) subflow(id uint32) *subflowRx {
	sf, ok := r.subflows[id]
	if !ok {
		sf = &subflowRx{data: segment.NewBuffer(uint64(FirstSubflowSeq))}
		r.subflows[id] = sf
	}
	return sf
}

// FromOptionは、DSSのマッピングフィールドを、受信済みの位置を基準に64ビットへ復元して変換します。
func (r *Receiver) FromOption(o *option.Mapping) Mapping {
	seq := o.DataSeq
	if !o.DataSeq64 {
		seq = ExpandSeq(uint32(seq), r.edge())
	}
	return Mapping{DataSeq: seq, SubflowSeq: o.SubflowSeq, Length: o.Length, DataFin: o.DataFin}
}

// AddMappingは、サブフローidで受信したマッピングを登録します。
//
// 同じデータ範囲の重複したマッピングは受け入れますが、同じサブフローの適用済みマッピングと
// 矛盾するマッピングは errors.ErrMappingConflict を返します。
func (r *Receiver) AddMapping(id uint32, m Mapping) error {
	if r.infinite {
		if fin, ok := m.FinSeq(); ok && m.PayloadLen() == 0 {
			return r.setFin(fin)
		}
		return nil
	}
	if m.Infinite() {
		r.enterInfinite(id, m)
		return nil
	}
	if fin, ok := m.FinSeq(); ok {
		if err := r.setFin(fin); err != nil {
			return err
		}
	}
	if m.PayloadLen() == 0 {
		return nil
	}

	sf := r.subflow(id)
	for _, old := range sf.retired {
		if conflicts(old, m) {
			return errors.Errorf("mapping %+v contradicts %+v: %w", m, old, errors.ErrMappingConflict)
		}
	}
	if m.subflowEnd() <= sf.data.Base() {
		return nil
	}
	for _, p := range sf.pending {
		if p == m {
			return nil
		}
		if conflicts(p, m) {
			return errors.Errorf("mapping %+v contradicts pending %+v: %w", m, p, errors.ErrMappingConflict)
		}
	}
	i, _ := slices.BinarySearchFunc(sf.pending, m.SubflowSeq, func(p Mapping, ssn uint32) int {
		return int(int64(p.SubflowSeq) - int64(ssn))
	})
	sf.pending = slices.Insert(sf.pending, i, m)
	r.apply(sf)
	return nil
}

// conflictsは、サブフローのシーケンス番号の範囲が重なる2つのマッピングが異なるデータ範囲を指すかを返します。
func conflicts(a, b Mapping) bool {
	if uint64(a.SubflowSeq) >= b.subflowEnd() || uint64(b.SubflowSeq) >= a.subflowEnd() {
		return false
	}
	return int64(a.DataSeq)-int64(a.SubflowSeq) != int64(b.DataSeq)-int64(b.SubflowSeq)
}

func (r *Receiver) setFin(fin uint64) error {
	if r.finSeq != nil && *r.finSeq != fin {
		return errors.Errorf("data fin %d contradicts %d: %w", fin, *r.finSeq, errors.ErrMappingConflict)
	}
	r.finSeq = &fin
	return nil
}

// AddDataは、サブフローidの相対シーケンス番号ssnから始まるペイロードを登録します。
func (r *Receiver) AddData(id uint32, ssn uint32, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if r.infinite && id != r.infiniteID {
		return
	}
	sf := r.subflow(id)
	sf.data.Insert(uint64(ssn), payload)
	r.apply(sf)
}

func (r *Receiver) apply(sf *subflowRx) {
	for len(sf.pending) > 0 {
		p := sf.pending[0]
		start := sf.data.Base()
		if p.subflowEnd() <= start {
			sf.pending = sf.pending[1:]
			continue
		}
		if uint64(p.SubflowSeq) > start {
			break
		}
		skip := start - uint64(p.SubflowSeq)
		need := uint64(p.PayloadLen()) - skip
		if uint64(sf.data.Contiguous()) < need {
			break
		}
		r.reorder.Insert(p.DataSeq+skip, sf.data.Read(int(need)))
		sf.pending = sf.pending[1:]
		sf.retired = append(sf.retired, p)
		if len(sf.retired) > retiredHistory {
			sf.retired = sf.retired[len(sf.retired)-retiredHistory:]
		}
	}
	if r.infinite && sf == r.subflows[r.infiniteID] && len(sf.pending) == 0 {
		for n := sf.data.Contiguous(); n > 0; n = sf.data.Contiguous() {
			b := sf.data.Read(n)
			r.reorder.Insert(r.infEdge, b)
			r.infEdge += uint64(len(b))
		}
	}
}

func (r *Receiver) enterInfinite(id uint32, m Mapping) {
	r.infinite = true
	r.infiniteID = id
	// 送信側は未確認のバイトから送り直すため、読み出し済みの範囲はInsertで切り捨てられる
	r.infEdge = m.DataSeq
	r.reorder.Truncate(max(m.DataSeq, r.reorder.Base()))
	for other := range r.subflows {
		if other != id {
			delete(r.subflows, other)
		}
	}
	sf := r.subflow(id)
	// 未適用のマッピングの範囲も送り直される
	sf.pending = nil
	if uint64(m.SubflowSeq) > sf.data.Base() {
		sf.data.Skip(uint64(m.SubflowSeq) - sf.data.Base())
	}
	r.apply(sf)
}

// Infiniteは、無限マッピングへ移行済みであれば、そのサブフローを返します。
func (r *Receiver) Infinite() (uint32, bool) {
	return r.infiniteID, r.infinite
}

// RemoveSubflowは、サブフローの未適用のマッピングと受信データを破棄します。
func (r *Receiver) RemoveSubflow(id uint32) {
	delete(r.subflows, id)
}

func (r *Receiver) edge() uint64 {
	return r.reorder.Base() + uint64(r.reorder.Contiguous())
}

// Readableは、アプリケーションへ渡せる連続したバイト数を返します。
func (r *Receiver) Readable() int {
	n := r.reorder.Contiguous()
	if r.finSeq != nil {
		if *r.finSeq <= r.reorder.Base() {
			return 0
		}
		n = min(n, int(*r.finSeq-r.reorder.Base()))
	}
	return n
}

// Readは、連続した最大maxバイトを読み出します。
func (r *Receiver) Read(max int) []byte {
	return r.reorder.Read(min(max, r.Readable()))
}

// Bufferedは、並べ替えバッファが保持しているバイト数を返します。
func (r *Receiver) Buffered() int {
	return r.reorder.Len()
}

// Nxtは、次に受信を期待するデータシーケンス番号を返します。DATA_ACKとして使用します。
//
// DATA_FINまで連続して受信済みの場合は、DATA_FINの次の番号を返します。
func (r *Receiver) Nxt() uint64 {
	e := r.edge()
	if r.finSeq != nil && e >= *r.finSeq {
		return *r.finSeq + 1
	}
	return e
}

// FinReachedは、DATA_FINの直前まで全てのバイトを受信したかどうかを返します。
func (r *Receiver) FinReached() bool {
	return r.finSeq != nil && r.edge() >= *r.finSeq
}

// Drainedは、DATA_FINまでの全てのバイトをアプリケーションが読み出したかどうかを返します。
func (r *Receiver) Drained() bool {
	return r.finSeq != nil && r.reorder.Base() >= *r.finSeq
}
