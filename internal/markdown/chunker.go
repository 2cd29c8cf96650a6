package markdown

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2s"
)

const (
	// chunkMaxChars を超えそうになったらチャンクを区切ります。
	chunkMaxChars = 2000
	// ただし chunkMinChars に満たないチャンクは区切らず連結を続けます
	// （細切れのチャンクを量産しないため、最小サイズの判定が優先）。
	chunkMinChars = 500
)

// 1行以上の空行を段落境界とみなします。
var paragraphBoundary = regexp.MustCompile(`\n[ \t]*\n+`)

// Chunk は段落境界を保ったMarkdownの断片です。
type Chunk struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SplitChunks は変換済みテキストを段落境界で貪欲にチャンクへ分割します。
// 空または空白のみの入力は空のシーケンスになります。
func SplitChunks(filename, text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var paragraphs []string
	for _, candidate := range paragraphBoundary.Split(trimmed, -1) {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			paragraphs = append(paragraphs, candidate)
		}
	}

	var (
		chunks  []Chunk
		current string
	)
	emit := func() {
		if current != "" {
			chunks = append(chunks, Chunk{
				ID:   chunkID(filename, len(chunks)),
				Text: current,
			})
			current = ""
		}
	}

	for _, paragraph := range paragraphs {
		if current == "" {
			current = paragraph
			continue
		}
		if len(current)+2+len(paragraph) > chunkMaxChars && len(current) >= chunkMinChars {
			emit()
			current = paragraph
			continue
		}
		current += "\n\n" + paragraph
	}
	emit()

	return chunks
}

func chunkID(filename string, index int) string {
	return fmt.Sprintf("%s-%s", filename, hash(fmt.Sprintf("%s|%d", filename, index)))
}

func hash(s string) string {
	h, _ := blake2s.New256(nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))[:10]
}
