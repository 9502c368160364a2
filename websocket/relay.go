package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"batchchat/database"
	"batchchat/logger"
	"batchchat/models"
)

// SendOutcome 是一次送出訊息的結果：Accepted 帶著已持久化的訊息，否則帶著拒絕原因
type SendOutcome struct {
	Accepted bool
	Message  models.ChatMessage
	Reason   string
	Field    string
}

func accepted(msg models.ChatMessage) SendOutcome {
	return SendOutcome{Accepted: true, Message: msg}
}

func rejected(reason, field string) SendOutcome {
	return SendOutcome{Reason: reason, Field: field}
}

// Relay 處理每個連線的加入、離開、送出事件
// 訊息一定先寫入 store 成功後才廣播給聊天室成員
type Relay struct {
	rooms          *Registry
	store          database.MessageStore
	membership     database.MembershipChecker
	persistTimeout time.Duration
	now            func() time.Time
}

// NewRelay membership 為 nil 時不做成員檢查
func NewRelay(rooms *Registry, store database.MessageStore, membership database.MembershipChecker, persistTimeout time.Duration) *Relay {
	if membership == nil {
		membership = database.OpenMembership{}
	}
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Relay{
		rooms:          rooms,
		store:          store,
		membership:     membership,
		persistTimeout: persistTimeout,
		now:            time.Now,
	}
}

func (r *Relay) Rooms() *Registry {
	return r.rooms
}

// HandleEvent 解析一個 envelope 並交給對應的處理函式
func (r *Relay) HandleEvent(ctx context.Context, conn Conn, raw []byte) {
	l := logger.Ctx(ctx)

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		l.Debug().Err(err).Msg("Malformed envelope")
		r.reply(ctx, conn, models.EventError, models.ErrorEvent{Reason: models.ReasonMalformed})
		return
	}

	switch env.Event {
	case models.EventJoinBatch:
		var req models.JoinBatch
		if err := decodeData(env.Data, &req); err != nil {
			r.reply(ctx, conn, models.EventJoinRejected, models.Rejection{Reason: models.ReasonMalformed})
			return
		}
		r.Join(ctx, conn, req)
	case models.EventLeaveBatch:
		var req models.LeaveBatch
		if err := decodeData(env.Data, &req); err != nil {
			r.reply(ctx, conn, models.EventError, models.ErrorEvent{Reason: models.ReasonMalformed})
			return
		}
		r.Leave(ctx, conn, req)
	case models.EventSendBatchMessage:
		var req models.SendBatchMessage
		if err := decodeData(env.Data, &req); err != nil {
			r.reply(ctx, conn, models.EventBatchMessageRejected, models.Rejection{Reason: models.ReasonMalformed})
			return
		}
		r.Send(ctx, conn, req)
	case models.EventActiveRooms:
		r.reply(ctx, conn, models.EventActiveRooms, models.ActiveRooms{BatchIDs: r.rooms.ActiveRooms(conn.ID())})
	case models.EventPing:
		r.reply(ctx, conn, models.EventPong, nil)
	default:
		l.Debug().Str(logger.FieldEvent, env.Event).Msg("Unknown event")
		r.reply(ctx, conn, models.EventError, models.ErrorEvent{Reason: models.ReasonUnknownEvent})
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil // 缺少 data 交給欄位驗證處理
	}
	return json.Unmarshal(data, v)
}

// Join 將連線加入聊天室；失敗時只回覆送出者 joinRejected
func (r *Relay) Join(ctx context.Context, conn Conn, req models.JoinBatch) *models.Rejection {
	l := logger.ForBatch(ctx, req.BatchID)

	rej := r.checkJoin(ctx, conn, req)
	if rej != nil {
		l.Info().Str("reason", rej.Reason).Msg("Join rejected")
		r.reply(ctx, conn, models.EventJoinRejected, rej)
		return rej
	}

	r.rooms.Join(conn, req.BatchID)
	l.Info().Str(logger.FieldUserID, req.UserID).Msg("Joined batch room")
	return nil
}

func (r *Relay) checkJoin(ctx context.Context, conn Conn, req models.JoinBatch) *models.Rejection {
	if field, err := models.ValidatePayload(req); err != nil {
		return &models.Rejection{BatchID: req.BatchID, Field: field, Reason: models.ReasonRequired}
	}
	if !identityMatches(conn, req.UserID) {
		return &models.Rejection{BatchID: req.BatchID, Field: "userId", Reason: models.ReasonIdentityMismatch}
	}

	ok, err := r.membership.CanJoin(ctx, req.BatchID, req.UserID)
	if err != nil {
		l := logger.ForBatch(ctx, req.BatchID)
		l.Error().Err(err).Msg("Membership check failed")
		return &models.Rejection{BatchID: req.BatchID, Reason: models.ReasonMembershipUnavailable}
	}
	if !ok {
		return &models.Rejection{BatchID: req.BatchID, Field: "userId", Reason: models.ReasonNotMember}
	}
	return nil
}

// Leave 將連線移出聊天室，不通知任何人
func (r *Relay) Leave(ctx context.Context, conn Conn, req models.LeaveBatch) {
	if strings.TrimSpace(req.BatchID) == "" {
		return
	}
	r.rooms.Leave(conn.ID(), req.BatchID)

	l := logger.ForBatch(ctx, req.BatchID)
	l.Info().Msg("Left batch room")
}

// Send 驗證、持久化，成功後廣播給聊天室所有成員（包含送出者）
func (r *Relay) Send(ctx context.Context, conn Conn, req models.SendBatchMessage) SendOutcome {
	outcome := r.send(ctx, conn, req)
	if !outcome.Accepted {
		r.reply(ctx, conn, models.EventBatchMessageRejected, models.Rejection{
			BatchID: req.BatchID,
			Field:   outcome.Field,
			Reason:  outcome.Reason,
		})
		return outcome
	}

	r.broadcast(ctx, outcome.Message)
	r.reply(ctx, conn, models.EventBatchMessageAccepted, models.MessageAccepted{
		ID:      outcome.Message.ID,
		BatchID: outcome.Message.BatchID,
	})
	return outcome
}

func (r *Relay) send(ctx context.Context, conn Conn, req models.SendBatchMessage) SendOutcome {
	l := logger.ForBatch(ctx, req.BatchID)

	if field, err := models.ValidatePayload(req); err != nil {
		l.Debug().Str("field", field).Msg("Message rejected")
		return rejected(models.ReasonRequired, field)
	}
	if !identityMatches(conn, req.UserID) {
		return rejected(models.ReasonIdentityMismatch, "userId")
	}
	if !r.rooms.IsMember(conn.ID(), req.BatchID) {
		return rejected(models.ReasonNotJoined, "batchId")
	}

	msg := models.ChatMessage{
		BatchID:           req.BatchID,
		AuthorID:          req.UserID,
		AuthorDisplayName: displayName(conn, req),
		Body:              strings.TrimSpace(req.Message),
		SentAt:            r.now().UTC().Truncate(time.Millisecond),
	}

	persistCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	saved, err := r.store.Append(persistCtx, msg)
	if err != nil {
		l.Error().Err(err).Str(logger.FieldUserID, req.UserID).Msg("Error saving message to database")
		return rejected(models.ReasonPersistFailed, "")
	}

	l.Debug().Str(logger.FieldMessageID, saved.ID).Msg("Message persisted")
	return accepted(saved)
}

// broadcast 對成員快照逐一送出；緩衝已滿的成員會被移出所有聊天室並關閉連線
func (r *Relay) broadcast(ctx context.Context, msg models.ChatMessage) {
	payload, err := models.NewEnvelope(models.EventBatchMessage, models.NewBatchMessage(msg))
	if err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Str(logger.FieldMessageID, msg.ID).Msg("Error marshalling message")
		return
	}

	for _, member := range r.rooms.MembersOf(msg.BatchID) {
		if member.Send(payload) {
			continue
		}
		r.dropSlowConsumer(ctx, member)
	}
}

func (r *Relay) dropSlowConsumer(ctx context.Context, conn Conn) {
	left := r.rooms.RemoveConnection(conn.ID())
	conn.Close()

	// ctx 屬於觸發廣播的連線，被移除的連線另外記錄
	l := logger.Ctx(ctx)
	l.Warn().
		Str("dropped_connection_id", conn.ID()).
		Strs("rooms", left).
		Msg("Client channel is full, connection dropped")
}

// Connect 在連線建立時登記；ctx 應帶有 logger.WithConnection 建立的 logger
// 健康檢查才算得到尚未加入聊天室的連線
func (r *Relay) Connect(ctx context.Context, conn Conn) {
	r.rooms.Register(conn)

	l := logger.Ctx(ctx)
	l.Info().Msg("Client connected")
}

// Disconnect 在連線結束時清除它所有的聊天室成員資格
func (r *Relay) Disconnect(ctx context.Context, conn Conn) {
	left := r.rooms.RemoveConnection(conn.ID())

	l := logger.Ctx(ctx)
	l.Info().Strs("rooms", left).Msg("Client disconnected")
}

func (r *Relay) reply(ctx context.Context, conn Conn, event string, payload any) {
	data, err := models.NewEnvelope(event, payload)
	if err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Str(logger.FieldEvent, event).Msg("Error marshalling reply")
		return
	}
	if !conn.Send(data) {
		r.dropSlowConsumer(ctx, conn)
	}
}

// identityMatches 未經驗證的連線接受任何 userId
func identityMatches(conn Conn, userID string) bool {
	id := conn.Identity()
	return id.IsZero() || id.UserID == userID
}

// displayName token 內的 username 優先，其次是客戶端提供的 name，最後退回 userId
func displayName(conn Conn, req models.SendBatchMessage) string {
	if name := conn.Identity().Username; name != "" {
		return name
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	return req.UserID
}
