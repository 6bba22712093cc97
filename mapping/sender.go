package mapping

import (
	"slices"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/segment"
)

type sent struct {
	subflowID uint32
	m         Mapping
	payload   []byte
}

// Senderは、送信側のマッピングを管理します。
//
// アプリケーションから受け付けたバイト列に、単調増加するデータシーケンス番号を割り当てます。
// 送信済みのマッピングは、DATA_ACKで完全に確認応答されるまで保持されます。
type Sender struct {
	una    uint64 // 確認応答されていない最古のデータシーケンス番号
	nxt    uint64 // 次に割り当てるデータシーケンス番号
	unsent []byte

	inflight []sent
	reinject []sent

	finSeq  uint64
	finSent bool

	infinite   bool
	infiniteID uint32
}

// NewSenderは、ローカルの初期データシーケンス番号からSenderを生成します。
func NewSender(idsn uint64) *Sender {
	return &Sender{una: idsn + 1, nxt: idsn + 1}
}

// Writeは、pを未送信バッファへ追加します。
func (s *Sender) Write(p []byte) int {
	s.unsent = append(s.unsent, p...)
	return len(p)
}

// Unsentは、まだマッピングを割り当てていないバイト数を返します。再送待ちのバイトを含みます。
func (s *Sender) Unsent() int {
	n := len(s.unsent)
	for _, r := range s.reinject {
		n += len(r.payload)
	}
	return n
}

// Bufferedは、受け付けたもののまだ確認応答されていないバイト数を返します。
func (s *Sender) Buffered() int {
	n := len(s.unsent)
	if s.nxt > s.una {
		n += int(s.nxt - s.una)
	}
	return n
}

// Unaは、確認応答されていない最古のデータシーケンス番号を返します。
func (s *Sender) Una() uint64 { return s.una }

// Nxtは、次に割り当てるデータシーケンス番号を返します。
func (s *Sender) Nxt() uint64 { return s.nxt }

// Allocateは、サブフローidの相対シーケンス番号ssnから最大nバイトを割り当てます。
//
// 再送待ちのバイトがある場合はそれを優先します。割り当てるバイトがない場合はfalseを返します。
// 無限マッピングへ移行した後は、そのサブフロー以外には割り当てません。
func (s *Sender) Allocate(id uint32, ssn uint32, n int) (Mapping, []byte, bool) {
	if n <= 0 || (s.infinite && id != s.infiniteID) {
		return Mapping{}, nil, false
	}
	n = min(n, MaxLength)

	if len(s.reinject) > 0 {
		r := &s.reinject[0]
		size := min(n, len(r.payload))
		m := Mapping{DataSeq: r.m.DataSeq, SubflowSeq: ssn, Length: uint16(size)}
		payload := r.payload[:size]
		if size == len(r.payload) {
			s.reinject = s.reinject[1:]
		} else {
			r.payload = r.payload[size:]
			r.m.DataSeq += uint64(size)
		}
		s.inflight = append(s.inflight, sent{subflowID: id, m: m, payload: payload})
		return m, payload, true
	}

	if len(s.unsent) == 0 {
		return Mapping{}, nil, false
	}
	size := min(n, len(s.unsent))
	payload := s.unsent[:size:size]
	s.unsent = s.unsent[size:]
	m := Mapping{DataSeq: s.nxt, SubflowSeq: ssn, Length: uint16(size)}
	s.nxt += uint64(size)
	if s.infinite {
		// 無限マッピングではDSSのマッピングを付与しない
		m.Length = 0
	}
	s.inflight = append(s.inflight, sent{subflowID: id, m: m, payload: payload})
	return m, payload, true
}

// Ackは、DATA_ACKを反映し、完全に確認応答されたマッピングを返します。
//
// 送信済みの範囲を超えるDATA_ACKはプロトコル違反です。
func (s *Sender) Ack(dataAck uint64) ([]Mapping, error) {
	limit := s.nxt
	if s.finSent {
		limit = s.finSeq + 1
	}
	if dataAck > limit {
		return nil, errors.Errorf("data ack %d beyond sent edge %d: %w", dataAck, limit, errors.ErrProtocolViolation)
	}
	if dataAck <= s.una {
		return nil, nil
	}
	s.una = dataAck

	var retired []Mapping
	s.inflight = slices.DeleteFunc(s.inflight, func(v sent) bool {
		if v.m.DataSeq+uint64(len(v.payload)) <= dataAck {
			retired = append(retired, v.m)
			return true
		}
		return false
	})
	s.reinject = trimAcked(s.reinject, dataAck)
	return retired, nil
}

func trimAcked(list []sent, dataAck uint64) []sent {
	res := list[:0]
	for _, v := range list {
		end := v.m.DataSeq + uint64(len(v.payload))
		if end <= dataAck {
			continue
		}
		if v.m.DataSeq < dataAck {
			cut := dataAck - v.m.DataSeq
			v.payload = v.payload[cut:]
			v.m.DataSeq = dataAck
		}
		res = append(res, v)
	}
	return res
}

// Requeueは、サブフローidで送信済みかつ未確認のバイトを再送待ちへ移し、そのバイト数を返します。
//
// サブフローが失われた場合に、残りのサブフローで送り直すために使用します。
func (s *Sender) Requeue(id uint32) int {
	var n int
	s.inflight = slices.DeleteFunc(s.inflight, func(v sent) bool {
		if v.subflowID != id {
			return false
		}
		end := v.m.DataSeq + uint64(len(v.payload))
		if end > s.una {
			s.reinject = append(s.reinject, v)
			n += int(end - max(v.m.DataSeq, s.una))
		}
		return true
	})
	s.reinject = trimAcked(s.reinject, s.una)
	slices.SortStableFunc(s.reinject, func(a, b sent) int {
		switch {
		case a.m.DataSeq < b.m.DataSeq:
			return -1
		case a.m.DataSeq > b.m.DataSeq:
			return 1
		default:
			return 0
		}
	})
	return n
}

// Finは、データを伴わないDATA_FINのマッピングを生成します。DATA_FINはデータシーケンス番号を1つ消費します。
//
// 未送信のバイトが残っている場合や、既に生成済みの場合はfalseを返します。
func (s *Sender) Fin() (Mapping, bool) {
	if s.finSent || s.Unsent() > 0 {
		return Mapping{}, false
	}
	s.finSeq = s.nxt
	s.finSent = true
	return s.FinMapping(), true
}

// FinMappingは、生成済みのDATA_FINのマッピングを返します。
//
// DATA_FINを運んだサブフローが確認応答前に失われた場合の再送に使用します。
func (s *Sender) FinMapping() Mapping {
	return Mapping{DataSeq: s.finSeq, SubflowSeq: 0, Length: 1, DataFin: true}
}

// FinSentは、DATA_FINを生成済みかどうかを返します。
func (s *Sender) FinSent() bool { return s.finSent }

// FinAckedは、DATA_FINが確認応答されたかどうかを返します。
func (s *Sender) FinAcked() bool {
	return s.finSent && s.una > s.finSeq
}

// Infiniteは、サブフローidを無限マッピングへ移行させるマッピングを生成します。
//
// 確認応答されていないバイトは全て未送信に戻され、以降はそのサブフローでのみ個別のマッピングを付けずに送信されます。
// マッピングのデータシーケンス番号は、送り直す先頭バイトを指します。
func (s *Sender) Infinite(id uint32, ssn uint32) Mapping {
	s.infinite = true
	s.infiniteID = id

	buf := segment.NewBuffer(s.una)
	for _, list := range [][]sent{s.inflight, s.reinject} {
		for _, v := range list {
			buf.Insert(v.m.DataSeq, v.payload)
		}
	}
	rewind := buf.Read(buf.Contiguous())
	s.unsent = append(rewind, s.unsent...)
	s.nxt = s.una
	s.inflight, s.reinject = nil, nil
	return Mapping{DataSeq: s.una, SubflowSeq: ssn}
}

// InfiniteModeは、無限マッピングへ移行済みであれば、そのサブフローを返します。
func (s *Sender) InfiniteMode() (uint32, bool) {
	return s.infiniteID, s.infinite
}
