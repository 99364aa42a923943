package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Conventional priorities. Higher sorts first.
const (
	PriorityInstructions = 100
	PriorityContext      = 50
	PriorityData         = 30
	PriorityHistory      = 10
)

type Block struct {
	ID       string
	Priority int
	Content  string
}

type Builder struct {
	blocks   []Block
	maxChars int
}

func NewBuilder() *Builder {
	return &Builder{}
}

// WithMaxChars drops the lowest-priority blocks until the prompt fits.
// Zero disables the budget.
func (b *Builder) WithMaxChars(n int) *Builder {
	b.maxChars = n
	return b
}

func (b *Builder) Add(block Block) {
	if strings.TrimSpace(block.Content) == "" {
		return
	}
	b.blocks = append(b.blocks, block)
}

// Section adds a titled block. Empty item lists are skipped.
func (b *Builder) Section(id string, priority int, title string, items []string) {
	if len(items) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(":")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sb.WriteString("\n- ")
		sb.WriteString(item)
	}
	b.Add(Block{ID: id, Priority: priority, Content: sb.String()})
}

func (b *Builder) Addf(id string, priority int, format string, args ...any) {
	b.Add(Block{ID: id, Priority: priority, Content: fmt.Sprintf(format, args...)})
}

func (b *Builder) Build() string {
	if len(b.blocks) == 0 {
		return ""
	}
	blocks := make([]Block, len(b.blocks))
	copy(blocks, b.blocks)
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Priority == blocks[j].Priority {
			return blocks[i].ID < blocks[j].ID
		}
		return blocks[i].Priority > blocks[j].Priority
	})

	if b.maxChars > 0 {
		for len(blocks) > 1 && joinedLen(blocks) > b.maxChars {
			blocks = blocks[:len(blocks)-1]
		}
	}

	var sb strings.Builder
	for i, block := range blocks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block.Content)
	}
	return sb.String()
}

func joinedLen(blocks []Block) int {
	n := 0
	for i, block := range blocks {
		if i > 0 {
			n += 2
		}
		n += len(block.Content)
	}
	return n
}
