package markdown

// NDJSONストリームの1行を識別する type フィールドの値。
const (
	MessageTypeMetadata = "metadata"
	MessageTypeBatch    = "batch"
	MessageTypeComplete = "complete"
	MessageTypeError    = "error"
)

// MetadataMessage はストリームの先頭で一度だけ送られます。
type MetadataMessage struct {
	Type         string `json:"type"`
	Filename     string `json:"filename"`
	TotalChunks  int    `json:"totalChunks"`
	TotalBatches int    `json:"totalBatches"`
}

// BatchMessage はバッチ1つ分のチャンクを運びます。
type BatchMessage struct {
	Type         string  `json:"type"`
	BatchIndex   int     `json:"batchIndex"`
	Chunks       []Chunk `json:"chunks"`
	ChunkCount   int     `json:"chunkCount"`
	TotalBatches int     `json:"totalBatches"`
}

// CompleteMessage は正常終了を表す終端メッセージです。
type CompleteMessage struct {
	Type        string `json:"type"`
	TotalChunks int    `json:"totalChunks"`
}

// ErrorMessage は変換または配信の失敗を表す終端メッセージです。
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stream はメッセージを1件ずつ払い出すイテレーターです。
// metadata → batch（昇順）→ complete の順を保証します。
// 全メッセージを先にバッファすることはなく、呼び出し側が
// 1件ずつ書き出してはクライアント切断を確認できます。
type Stream struct {
	filename    string
	totalChunks int
	batches     []Batch
	errMessage  string
	failed      bool
	pos         int
}

// NewStream は変換結果のストリームを作成します。
func NewStream(filename string, chunks []Chunk, batches []Batch) *Stream {
	return &Stream{
		filename:    filename,
		totalChunks: len(chunks),
		batches:     batches,
	}
}

// ErrorStream は error メッセージ1件のみを払い出すストリームを作成します。
// 変換が最初のメッセージ送出前に失敗した場合に使用します。
func ErrorStream(message string) *Stream {
	return &Stream{
		failed:     true,
		errMessage: message,
	}
}

// Next は次のメッセージを返します。2番目の戻り値が false のとき、シーケンスは終了です。
func (s *Stream) Next() (any, bool) {
	defer func() { s.pos++ }()

	if s.failed {
		if s.pos == 0 {
			return ErrorMessage{Type: MessageTypeError, Message: s.errMessage}, true
		}
		return nil, false
	}

	switch {
	case s.pos == 0:
		return MetadataMessage{
			Type:         MessageTypeMetadata,
			Filename:     s.filename,
			TotalChunks:  s.totalChunks,
			TotalBatches: len(s.batches),
		}, true
	case s.pos <= len(s.batches):
		batch := s.batches[s.pos-1]
		return BatchMessage{
			Type:         MessageTypeBatch,
			BatchIndex:   s.pos - 1,
			Chunks:       batch.Chunks,
			ChunkCount:   len(batch.Chunks),
			TotalBatches: len(s.batches),
		}, true
	case s.pos == len(s.batches)+1:
		return CompleteMessage{
			Type:        MessageTypeComplete,
			TotalChunks: s.totalChunks,
		}, true
	default:
		return nil, false
	}
}
