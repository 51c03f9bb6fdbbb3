package enrollment

import "strings"

// Block is a maximal run of consecutive rows that name the same student.
// It is the fold state of the grouping: the zero value is "no block open".
//
// Grouping is purely positional. A name that reappears after a different
// student opens a second, independent block.
type Block struct {
	Student string
	Start   int // index of the first row
	Rows    int // number of rows in the block
}

// Open reports whether the block holds at least one row.
func (b Block) Open() bool {
	return b.Rows > 0
}

// Advance folds the row at index i naming student into the block. It returns
// the block the row belongs to and, when the row starts a new block, the
// block that was closed by it (nil for the very first row).
func (b Block) Advance(i int, student string) (next Block, closed *Block) {
	name := strings.TrimSpace(student)
	if b.Open() && b.Student == name {
		b.Rows++
		return b, nil
	}
	if b.Open() {
		prev := b
		closed = &prev
	}
	return Block{Student: name, Start: i, Rows: 1}, closed
}

// Close returns the final block at end of stream, or nil when none is open.
func (b Block) Close() *Block {
	if !b.Open() {
		return nil
	}
	final := b
	return &final
}

// Group partitions rows into blocks in input order.
func Group(rows []Row) []Block {
	var (
		cur    Block
		blocks []Block
	)
	for i, r := range rows {
		next, closed := cur.Advance(i, r.Student)
		if closed != nil {
			blocks = append(blocks, *closed)
		}
		cur = next
	}
	if last := cur.Close(); last != nil {
		blocks = append(blocks, *last)
	}
	return blocks
}
