package klv

// Item is one local-set entry: a 1-byte tag, a BER length, and the value
// bytes it declared. Offset is the byte position of the tag within the
// content region that produced the item, so checksum coverage and error
// reports can point back into the wire data.
type Item struct {
	Tag    uint8
	Value  []byte
	Offset int

	// headerLen is the tag byte plus the length field as it was actually
	// encoded. BER permits non-minimal long forms, so this cannot be
	// recomputed from len(Value).
	headerLen int
}

// ValueEnd returns the offset one past the item's value bytes within the
// content region.
func (it Item) ValueEnd() int {
	return it.ValueStart() + len(it.Value)
}

// ValueStart returns the offset of the item's first value byte within the
// content region.
func (it Item) ValueStart() int {
	return it.Offset + it.headerLen
}

// DecodeLocalSet iterates the content region of a KLV unit, reading a
// 1-byte tag, a BER length, and that many value bytes per item until the
// cursor lands exactly on the end. Tags are not required to be unique or
// sorted; every occurrence is preserved in encounter order. Unknown tags
// are not this layer's concern.
func DecodeLocalSet(content []byte) ([]Item, error) {
	var items []Item
	offset := 0
	for offset < len(content) {
		tag := content[offset]
		length, n, err := DecodeLength(content[offset+1:])
		if err != nil {
			if err == ErrShortBuffer {
				return items, ErrTruncatedItem
			}
			return items, err
		}
		valueStart := offset + 1 + n
		if length > len(content)-valueStart {
			return items, ErrOverrunItem
		}
		items = append(items, Item{
			Tag:       tag,
			Value:     content[valueStart : valueStart+length],
			Offset:    offset,
			headerLen: 1 + n,
		})
		offset = valueStart + length
	}
	return items, nil
}

// MaxNestingDepth bounds DecodeNested so maliciously deep nesting cannot
// exhaust the stack.
const MaxNestingDepth = 8

// NestedItem pairs an Item with its decoded children when the item's value
// is itself a local set (richer profiles nest sets inside tags).
type NestedItem struct {
	Item
	Children []NestedItem
}

// DecodeNested decodes content as a local set, then recursively decodes the
// values of the tags listed in setTags as nested local sets, to at most
// MaxNestingDepth levels. A nested value that fails to decode is kept as a
// plain item; nesting is advisory structure, not a validity constraint.
func DecodeNested(content []byte, setTags map[uint8]bool) ([]NestedItem, error) {
	return decodeNested(content, setTags, 0)
}

func decodeNested(content []byte, setTags map[uint8]bool, depth int) ([]NestedItem, error) {
	items, err := DecodeLocalSet(content)
	if err != nil {
		return nil, err
	}
	nested := make([]NestedItem, 0, len(items))
	for _, it := range items {
		ni := NestedItem{Item: it}
		if setTags[it.Tag] && depth+1 < MaxNestingDepth {
			if children, err := decodeNested(it.Value, setTags, depth+1); err == nil {
				ni.Children = children
			}
		}
		nested = append(nested, ni)
	}
	return nested, nil
}

// EncodeItem appends a local-set item (tag, BER length, value) to dst.
func EncodeItem(dst []byte, tag uint8, value []byte) []byte {
	dst = append(dst, tag)
	dst = AppendLength(dst, len(value))
	return append(dst, value...)
}
