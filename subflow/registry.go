package subflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aptpod/mptcp-go/errors"
)

// Registryは、サブフローを Established / Restarting / Closing の3つのバケットで管理します。
//
// サブフローは常にいずれか1つのバケットに属します。IDはサブフローの一覧における位置で、
// 削除後も再利用されません。コネクションのイベントループからのみ操作されます。
type Registry struct {
	subflows []*Subflow
	buckets  map[Bucket][]ID
}

func NewRegistry() *Registry {
	return &Registry{
		buckets: map[Bucket][]ID{
			BucketEstablished: nil,
			BucketRestarting:  nil,
			BucketClosing:     nil,
		},
	}
}

// Addは、サブフローにIDを割り当て、Restartingバケットへ登録します。
func (r *Registry) Add(s *Subflow) ID {
	s.id = ID(len(r.subflows))
	s.bucket = BucketRestarting
	r.subflows = append(r.subflows, s)
	r.attach(s)
	return s.id
}

// Getは、IDに対応するサブフローを返します。
func (r *Registry) Get(id ID) (*Subflow, error) {
	if int(id) >= len(r.subflows) || r.subflows[id] == nil {
		return nil, errors.Errorf("subflow#%d: %w", id, errors.ErrSubflowNotFound)
	}
	return r.subflows[id], nil
}

// Bucketは、サブフローが属するバケットを返します。
func (r *Registry) Bucket(id ID) (Bucket, error) {
	s, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return s.bucket, nil
}

// Moveは、サブフローをtoバケットへ移動します。
//
// 移動元と移動先が同じ場合は呼び出し側の論理エラーとしてpanicします。
func (r *Registry) Move(id ID, to Bucket) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if _, ok := r.buckets[to]; !ok {
		panic(fmt.Sprintf("subflow#%d: move to unknown bucket %v", id, to))
	}
	if s.bucket == to {
		panic(fmt.Sprintf("subflow#%d: move within the same bucket %v", id, to))
	}
	r.detach(s)
	s.bucket = to
	r.attach(s)
	return nil
}

// Removeは、サブフローを属しているバケットから削除します。
func (r *Registry) Remove(id ID) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	r.detach(s)
	s.bucket = 0
	r.subflows[id] = nil
	return nil
}

// attachは、バケット内のIDを登録順 (ID順) に保ちます。
func (r *Registry) attach(s *Subflow) {
	ids := r.buckets[s.bucket]
	i, _ := slices.BinarySearch(ids, s.id)
	r.buckets[s.bucket] = slices.Insert(ids, i, s.id)
}

func (r *Registry) detach(s *Subflow) {
	ids := r.buckets[s.bucket]
	if i := slices.Index(ids, s.id); i >= 0 {
		r.buckets[s.bucket] = slices.Delete(ids, i, i+1)
	}
}

// Syncは、サブフローの状態に合わせてバケットを更新します。
//
// StateClosedの場合はレジストリから削除し、removedにtrueを返します。
// 既に正しいバケットに属している場合は何もしません。
func (r *Registry) Sync(id ID) (moved, removed bool, err error) {
	s, err := r.Get(id)
	if err != nil {
		return false, false, err
	}
	to, ok := BucketOf(s.state)
	if !ok {
		return false, true, r.Remove(id)
	}
	if to == s.bucket {
		return false, false, nil
	}
	return true, false, r.Move(id, to)
}

// ActiveCountは、Establishedバケットのサブフロー数を返します。
func (r *Registry) ActiveCount() int {
	return len(r.buckets[BucketEstablished])
}

// Lenは、登録されているサブフローの総数を返します。
func (r *Registry) Len() int {
	var n int
	for _, ids := range r.buckets {
		n += len(ids)
	}
	return n
}

// Atは、Establishedバケットのpos番目 (登録順) のサブフローを返します。
func (r *Registry) At(pos int) (*Subflow, error) {
	ids := r.buckets[BucketEstablished]
	if pos < 0 || pos >= len(ids) {
		return nil, errors.Errorf("established position %d: %w", pos, errors.ErrSubflowNotFound)
	}
	return r.subflows[ids[pos]], nil
}

// ByAddrIDは、アドレスIDが一致する最初のサブフロー (登録順) を返します。
func (r *Registry) ByAddrID(addrID uint8) (*Subflow, error) {
	for _, s := range r.subflows {
		if s != nil && s.AddrID == addrID {
			return s, nil
		}
	}
	return nil, errors.Errorf("address id %d: %w", addrID, errors.ErrSubflowNotFound)
}

// Establishedは、Establishedバケットのサブフローを登録順に返します。
func (r *Registry) Established() []*Subflow { return r.snapshot(BucketEstablished) }

// Restartingは、Restartingバケットのサブフローを登録順に返します。
func (r *Registry) Restarting() []*Subflow { return r.snapshot(BucketRestarting) }

// Closingは、Closingバケットのサブフローを登録順に返します。
func (r *Registry) Closing() []*Subflow { return r.snapshot(BucketClosing) }

// Allは、全てのサブフローを登録順に返します。
func (r *Registry) All() []*Subflow {
	res := make([]*Subflow, 0, r.Len())
	for _, s := range r.subflows {
		if s != nil {
			res = append(res, s)
		}
	}
	return res
}

func (r *Registry) snapshot(b Bucket) []*Subflow {
	ids := r.buckets[b]
	res := make([]*Subflow, 0, len(ids))
	for _, id := range ids {
		res = append(res, r.subflows[id])
	}
	return res
}

// Stringは、バケットごとのサブフローの一覧を返します。デバッグ用です。
func (r *Registry) String() string {
	var sb strings.Builder
	for _, b := range []Bucket{BucketEstablished, BucketRestarting, BucketClosing} {
		fmt.Fprintf(&sb, "%v:", b)
		for _, s := range r.snapshot(b) {
			fmt.Fprintf(&sb, " %v", s)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
