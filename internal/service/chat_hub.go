package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	shardCount     = 32
	onlineTTL      = 2 * time.Minute
	chatChannel    = "toeic:chat_channel"
)

// WebSocket 事件类型
const (
	EventNewMessage   = "NEW_MESSAGE"
	EventTyping       = "TYPING"
	EventMemberStatus = "MEMBER_STATUS"
	EventReadReceipt  = "READ_RECEIPT"
	EventMemberJoined = "MEMBER_JOINED"
	EventMemberLeft   = "MEMBER_LEFT"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Client struct {
	Hub      *ChatHub
	Conn     *websocket.Conn
	Send     chan []byte
	MemberID uint
	Limiter  *rate.Limiter
}

func (c *Client) readPump() {
	defer func() {
		// Stop 之后 Run 已退出，不能再阻塞在 unregister 上
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("memberId", c.MemberID))
			}
			break
		}

		if !c.Limiter.Allow() {
			continue
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			continue
		}
		monitoring.IMMessageCounter.WithLabelValues(wsMsg.Type, "in").Inc()

		if wsMsg.Type == EventTyping {
			data, ok := wsMsg.Data.(map[string]interface{})
			if !ok {
				continue
			}
			convID, _ := data["conversationId"].(string)
			if convID != "" {
				c.Hub.forwardTyping(c.MemberID, convID)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[uint]*Client
	mu      sync.RWMutex
}

// ChatHub 会员聊天的 WebSocket 连接中心；配置 Redis 时通过 pub/sub 跨实例投递，
// 否则只投递到本实例的连接
type ChatHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	Redis      *redis.Client
	ChatRepo   *repository.ChatRepository
	ctx        context.Context
}

func NewChatHub(rdb *redis.Client, chatRepo *repository.ChatRepository) *ChatHub {
	h := &ChatHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		Redis:      rdb,
		ChatRepo:   chatRepo,
		ctx:        context.Background(),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{clients: make(map[uint]*Client)}
	}
	return h
}

func (h *ChatHub) getShard(memberID uint) *shard {
	return h.shards[memberID%shardCount]
}

func onlineKey(memberID uint) string {
	return fmt.Sprintf("toeic:member:online:%d", memberID)
}

type PubSubMessage struct {
	TargetMembers []uint          `json:"targetMembers"`
	Payload       json.RawMessage `json:"payload"`
}

func (h *ChatHub) subscribe() {
	pubsub := h.Redis.Subscribe(h.ctx, chatChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var psMsg PubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.pushToLocal(psMsg.TargetMembers, psMsg.Payload)
			case <-h.done:
				return
			}
		}
	}()
}

func (h *ChatHub) Run() {
	if h.Redis != nil {
		h.subscribe()
	}

	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			s := h.getShard(client.MemberID)
			s.mu.Lock()
			if old, ok := s.clients[client.MemberID]; ok {
				close(old.Send)
			} else {
				monitoring.IMOnlineUsers.Inc()
			}
			s.clients[client.MemberID] = client
			s.mu.Unlock()
			h.setOnline(client.MemberID, true)

		case client := <-h.unregister:
			s := h.getShard(client.MemberID)
			s.mu.Lock()
			removed := false
			if cur, ok := s.clients[client.MemberID]; ok && cur == client {
				delete(s.clients, client.MemberID)
				close(client.Send)
				monitoring.IMOnlineUsers.Dec()
				removed = true
			}
			s.mu.Unlock()
			if removed {
				h.setOnline(client.MemberID, false)
			}

		case <-heartbeat.C:
			h.refreshOnlineStatus()

		case <-h.done:
			return
		}
	}
}

func (h *ChatHub) setOnline(memberID uint, online bool) {
	if h.Redis != nil {
		var err error
		if online {
			err = h.Redis.Set(h.ctx, onlineKey(memberID), "true", onlineTTL).Err()
		} else {
			err = h.Redis.Del(h.ctx, onlineKey(memberID)).Err()
		}
		if err != nil {
			logger.Log.Warn("Failed to update online status", zap.Uint("memberId", memberID), zap.Error(err))
		}
	}

	status := "offline"
	if online {
		status = "online"
	}
	h.notifyStatus(memberID, status)
}

func (h *ChatHub) refreshOnlineStatus() {
	if h.Redis == nil {
		return
	}
	pipe := h.Redis.Pipeline()
	count := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for memberID := range s.clients {
			pipe.Expire(h.ctx, onlineKey(memberID), onlineTTL)
			count++
		}
		s.mu.RUnlock()
	}
	if count > 0 {
		pipe.Exec(h.ctx)
		logger.Log.Debug("Refreshed online status", zap.Int("count", count))
	}
}

// notifyStatus 通知与该会员同在任一会话中的其他会员
func (h *ChatHub) notifyStatus(memberID uint, status string) {
	if h.ChatRepo == nil {
		return
	}
	convIDs, err := h.ChatRepo.GetMemberGroupIDs(memberID)
	if err != nil {
		return
	}
	related := make(map[uint]bool)
	for _, convID := range convIDs {
		ids, err := h.ChatRepo.GetGroupMemberIDsCached(convID)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id != memberID {
				related[id] = true
			}
		}
	}
	if len(related) == 0 {
		return
	}
	targets := make([]uint, 0, len(related))
	for id := range related {
		targets = append(targets, id)
	}
	h.PushToMembers(targets, WSMessage{
		Type: EventMemberStatus,
		Data: map[string]interface{}{"memberId": memberID, "status": status},
	})
}

// forwardTyping 仅私聊转发输入状态
func (h *ChatHub) forwardTyping(senderID uint, convID string) {
	if h.ChatRepo == nil {
		return
	}
	conv, err := h.ChatRepo.GetConversation(convID)
	if err != nil || conv.Type != model.ConversationPrivate {
		return
	}
	var targets []uint
	isMember := false
	for _, m := range conv.Members {
		if m.MemberID == senderID {
			isMember = true
		} else {
			targets = append(targets, m.MemberID)
		}
	}
	if !isMember {
		return
	}
	h.PushToMembers(targets, WSMessage{
		Type: EventTyping,
		Data: map[string]interface{}{"conversationId": convID, "memberId": senderID},
	})
}

// Stop 关闭所有连接并清理在线状态
func (h *ChatHub) Stop() {
	h.stopOnce.Do(func() {
		logger.Log.Info("ChatHub stopping: clearing online status and closing connections...")
		close(h.done)

		var all []uint
		for i := 0; i < shardCount; i++ {
			s := h.shards[i]
			s.mu.Lock()
			for memberID, client := range s.clients {
				all = append(all, memberID)
				close(client.Send)
				delete(s.clients, memberID)
			}
			s.mu.Unlock()
		}

		if len(all) > 0 && h.Redis != nil {
			pipe := h.Redis.Pipeline()
			for _, memberID := range all {
				pipe.Del(h.ctx, onlineKey(memberID))
			}
			pipe.Exec(h.ctx)
		}

		monitoring.IMOnlineUsers.Set(0)
		logger.Log.Info("ChatHub stopped", zap.Int("closedConnections", len(all)))
	})
}

// PushToMembers 投递给指定会员；有 Redis 时经由 pub/sub 让所有实例投递
func (h *ChatHub) PushToMembers(memberIDs []uint, msg WSMessage) {
	if len(memberIDs) == 0 {
		return
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	monitoring.IMMessageCounter.WithLabelValues(msg.Type, "out").Inc()

	if h.Redis != nil {
		payload, _ := json.Marshal(PubSubMessage{TargetMembers: memberIDs, Payload: msgBytes})
		if err := h.Redis.Publish(h.ctx, chatChannel, payload).Err(); err == nil {
			return
		} else {
			logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
		}
	}
	h.pushToLocal(memberIDs, msgBytes)
}

func (h *ChatHub) pushToLocal(memberIDs []uint, payload []byte) {
	for _, id := range memberIDs {
		s := h.getShard(id)
		s.mu.RLock()
		if client, ok := s.clients[id]; ok {
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func (h *ChatHub) IsMemberOnline(memberID uint) bool {
	s := h.getShard(memberID)
	s.mu.RLock()
	_, ok := s.clients[memberID]
	s.mu.RUnlock()
	if ok {
		return true
	}
	if h.Redis == nil {
		return false
	}
	val, err := h.Redis.Get(h.ctx, onlineKey(memberID)).Result()
	return err == nil && val == "true"
}

func ServeWs(hub *ChatHub, w http.ResponseWriter, r *http.Request, memberID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("memberId", memberID))
		return
	}
	client := &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		MemberID: memberID,
		Limiter:  rate.NewLimiter(rate.Limit(30), 50),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
