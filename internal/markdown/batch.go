package markdown

const (
	// 1バッチあたりの最大チャンク数。
	batchMaxChunks = 32
	// 1バッチあたりの概算トークン上限（文字数÷4で見積もり）。
	batchTokenBudget = 8000
)

// Batch はストリーム配信の単位となるチャンクの列です。
type Batch struct {
	Chunks []Chunk `json:"chunks"`
}

// PlanBatches はチャンク列を順序を保ったままバッチへ貪欲に詰め込みます。
// 個数上限とトークン上限の両方を満たすように区切りますが、単体で上限を超える
// チャンクは分割せず、そのチャンクだけのバッチになります。
func PlanBatches(chunks []Chunk, maxChunks, tokenBudget int) []Batch {
	if maxChunks <= 0 {
		maxChunks = batchMaxChunks
	}
	if tokenBudget <= 0 {
		tokenBudget = batchTokenBudget
	}

	var (
		batches   []Batch
		current   []Chunk
		curTokens int
	)
	flush := func() {
		if len(current) > 0 {
			batches = append(batches, Batch{Chunks: current})
			current = nil
			curTokens = 0
		}
	}

	for _, chunk := range chunks {
		tokens := estimateTokens(chunk)
		if len(current) > 0 && (len(current) >= maxChunks || curTokens+tokens > tokenBudget) {
			flush()
		}
		current = append(current, chunk)
		curTokens += tokens
	}
	flush()

	return batches
}

func estimateTokens(chunk Chunk) int {
	return len(chunk.Text) / 4
}
