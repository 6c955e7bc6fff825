package catalog

import "strings"

// BlockKind classifies one line of course content.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockListItem  BlockKind = "list_item"
	BlockBreak     BlockKind = "break"
	BlockParagraph BlockKind = "paragraph"
)

// Block is a typed token produced from a single content line.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Level int       `json:"level,omitempty"` // heading level 1-3
	Text  string    `json:"text,omitempty"`
}

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"# ", 1},
	{"## ", 2},
	{"### ", 3},
}

// ParseContent classifies course content line by line, preserving line order.
func ParseContent(content string) []Block {
	lines := strings.Split(content, "\n")
	blocks := make([]Block, 0, len(lines))

	for _, line := range lines {
		blocks = append(blocks, classifyLine(strings.TrimSpace(line)))
	}
	return blocks
}

func classifyLine(line string) Block {
	if line == "" {
		return Block{Kind: BlockBreak}
	}
	for _, h := range headingPrefixes {
		if strings.HasPrefix(line, h.prefix) {
			return Block{Kind: BlockHeading, Level: h.level, Text: strings.TrimSpace(line[len(h.prefix):])}
		}
	}
	if strings.HasPrefix(line, "- ") {
		return Block{Kind: BlockListItem, Text: strings.TrimSpace(line[2:])}
	}
	return Block{Kind: BlockParagraph, Text: line}
}
