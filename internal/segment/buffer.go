package segment

import (
	"fmt"
	"strings"
)

type block struct {
	off  uint64
	data []byte
}

func (b block) end() uint64 { return b.off + uint64(len(b.data)) }

// Bufferは、オフセットをキーとする区間の集合です。
//
// 同じ区間を複数回挿入しても、最初に挿入されたバイトが保持されます。
type Buffer struct {
	base   uint64
	blocks []block // offでソート済み、互いに重ならない
	size   int
}

// NewBufferは、baseを基準オフセットとするBufferを生成します。
func NewBuffer(base uint64) *Buffer {
	return &Buffer{base: base}
}

// Baseは、次に読み出されるバイトのオフセットを返します。
func (b *Buffer) Base() uint64 { return b.base }

// Lenは、保持しているバイト数を返します。
func (b *Buffer) Len() int { return b.size }

// Insertは、offから始まるpを挿入し、新たに保持したバイト数を返します。
//
// 基準オフセットより前の部分と、既に保持している区間と重なる部分は破棄されます。
func (b *Buffer) Insert(off uint64, p []byte) int {
	if off+uint64(len(p)) <= b.base {
		return 0
	}
	if off < b.base {
		p = p[b.base-off:]
		off = b.base
	}

	var (
		added int
		res   = make([]block, 0, len(b.blocks)+1)
		i     int
	)
	for len(p) > 0 {
		for i < len(b.blocks) && b.blocks[i].end() <= off {
			res = append(res, b.blocks[i])
			i++
		}
		if i < len(b.blocks) && b.blocks[i].off <= off {
			skip := b.blocks[i].end() - off
			if skip >= uint64(len(p)) {
				break
			}
			p = p[skip:]
			off += skip
			continue
		}
		n := uint64(len(p))
		if i < len(b.blocks) && b.blocks[i].off < off+n {
			n = b.blocks[i].off - off
		}
		res = append(res, block{off: off, data: append([]byte(nil), p[:n]...)})
		added += int(n)
		p = p[n:]
		off += n
	}
	b.blocks = append(res, b.blocks[i:]...)
	b.size += added
	return added
}

// Contiguousは、基準オフセットから連続して読み出せるバイト数を返します。
func (b *Buffer) Contiguous() int {
	var n int
	next := b.base
	for _, blk := range b.blocks {
		if blk.off != next {
			break
		}
		n += len(blk.data)
		next = blk.end()
	}
	return n
}

// Readは、基準オフセットから連続した最大maxバイトを読み出し、基準オフセットを進めます。
func (b *Buffer) Read(max int) []byte {
	var res []byte
	for len(b.blocks) > 0 && len(res) < max && b.blocks[0].off == b.base {
		blk := &b.blocks[0]
		n := min(max-len(res), len(blk.data))
		res = append(res, blk.data[:n]...)
		blk.data = blk.data[n:]
		blk.off += uint64(n)
		b.base += uint64(n)
		if len(blk.data) == 0 {
			b.blocks = b.blocks[1:]
		}
	}
	b.size -= len(res)
	return res
}

// Skipは、保持しているかどうかに関わらず基準オフセットをnバイト進めます。
func (b *Buffer) Skip(n uint64) {
	b.base += n
	for len(b.blocks) > 0 {
		blk := &b.blocks[0]
		if blk.off >= b.base {
			break
		}
		if blk.end() <= b.base {
			b.size -= len(blk.data)
			b.blocks = b.blocks[1:]
			continue
		}
		cut := b.base - blk.off
		b.size -= int(cut)
		blk.data = blk.data[cut:]
		blk.off = b.base
	}
}

// Truncateは、end以降のオフセットに保持しているバイトを破棄します。
func (b *Buffer) Truncate(end uint64) {
	for i := range b.blocks {
		blk := &b.blocks[i]
		if blk.end() <= end {
			continue
		}
		if blk.off < end {
			b.size -= int(blk.end() - end)
			blk.data = blk.data[:end-blk.off]
			i++
		}
		for _, rest := range b.blocks[i:] {
			b.size -= len(rest.data)
		}
		b.blocks = b.blocks[:i]
		return
	}
}

// Resetは、保持している全てのバイトを破棄し、基準オフセットをbaseにします。
func (b *Buffer) Reset(base uint64) {
	b.base = base
	b.blocks = nil
	b.size = 0
}

func (b *Buffer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "base=%d size=%d", b.base, b.size)
	for _, blk := range b.blocks {
		fmt.Fprintf(&sb, " [%d,%d)", blk.off, blk.end())
	}
	return sb.String()
}
