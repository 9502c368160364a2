package database

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"batchchat/models"
)

// OpenBadger 開啟內嵌的 Badger 資料庫；path 為空字串時使用記憶體模式
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return db, nil
}

// BadgerMessageStore 以 Badger 實作 MessageStore，適合單機部署與測試
//
// key 格式為 "msg:{hex(batchId)}:{sentAt 奈秒，補零至 19 位}:{id}"：
//  1. batchId 以 hex 編碼，避免 batchId 本身含有 ":" 時前綴互相重疊
//  2. 補零的時間戳讓字典序等於時間順序，反向迭代即為由新到舊
//  3. id 放在最後，同一奈秒的兩則訊息也不會互相覆蓋
type BadgerMessageStore struct {
	db  *badger.DB
	now func() time.Time
}

func NewBadgerMessageStore(db *badger.DB) *BadgerMessageStore {
	return &BadgerMessageStore{db: db, now: time.Now}
}

func batchPrefix(batchID string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(batchID)) + ":")
}

func messageKey(msg models.ChatMessage) []byte {
	return append(batchPrefix(msg.BatchID), models.EncodeCursor(msg)...)
}

// Append 寫入單一 key，交易提交前對其他讀取者不可見
func (s *BadgerMessageStore) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}

	msg.ID = uuid.NewString()
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	msg.SentAt = msg.SentAt.UTC()

	value, err := json.Marshal(msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: store message: %w", models.ErrStoreUnavailable, err)
	}
	return msg, nil
}

// ListByBatch 以前綴反向掃描取得一頁歷史訊息
func (s *BadgerMessageStore) ListByBatch(ctx context.Context, batchID string, q models.HistoryQuery) (models.HistoryPage, error) {
	q = q.Normalize()
	if err := ctx.Err(); err != nil {
		return models.HistoryPage{}, err
	}

	prefix := batchPrefix(batchID)
	var seekKey []byte
	if q.Before == "" {
		// 0xFF 大於任何數字字元，從該批次最新的一則開始
		seekKey = append(append([]byte{}, prefix...), 0xFF)
	} else {
		if _, _, err := models.DecodeCursor(q.Before); err != nil {
			return models.HistoryPage{}, err
		}
		seekKey = append(append([]byte{}, prefix...), q.Before...)
	}

	var msgs []models.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekKey)
		// cursor 指向上一頁最後一則，本頁不重複回傳
		if q.Before != "" && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(msgs) <= q.Limit; it.Next() {
			var msg models.ChatMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("decode message %q: %w", it.Item().Key(), err)
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return models.HistoryPage{}, err
	}
	return buildPage(msgs, q.Limit), nil
}
