package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	svc     *ChatService
	hub     *ChatHub
	members []*model.Member
}

func newChatFixture(t *testing.T, n int) *chatFixture {
	t.Helper()
	db := testutil.NewDB(t)
	chatRepo := repository.NewChatRepository(db, nil)
	memberRepo := repository.NewMemberRepository(db)
	hub := NewChatHub(nil, chatRepo)
	go hub.Run()
	t.Cleanup(hub.Stop)

	f := &chatFixture{svc: NewChatService(chatRepo, memberRepo, nil, hub), hub: hub}
	for i := 0; i < n; i++ {
		m := &model.Member{FullName: fmt.Sprintf("Member %d", i), Email: fmt.Sprintf("m%d@example.com", i), Password: "x"}
		require.NoError(t, memberRepo.Create(m))
		f.members = append(f.members, m)
	}
	return f
}

func (f *chatFixture) id(i int) uint { return f.members[i].ID }

func TestPrivateConversationIsReused(t *testing.T) {
	f := newChatFixture(t, 2)

	c1, err := f.svc.GetOrCreatePrivate(f.id(0), f.id(1))
	require.NoError(t, err)
	c2, err := f.svc.GetOrCreatePrivate(f.id(1), f.id(0))
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Len(t, c1.Members, 2)

	_, err = f.svc.GetOrCreatePrivate(f.id(0), f.id(0))
	assert.ErrorIs(t, err, util.ErrInvalidChatTarget)
	_, err = f.svc.GetOrCreatePrivate(f.id(0), 9999)
	assert.ErrorIs(t, err, util.ErrMemberNotFound)
}

func TestGroupMessagingAndUnread(t *testing.T) {
	f := newChatFixture(t, 3)

	conv, err := f.svc.CreateGroup(f.id(0), " Part 7 study ", []uint{f.id(1), f.id(0)})
	require.NoError(t, err)
	assert.Equal(t, "Part 7 study", conv.Name)
	assert.Len(t, conv.Members, 2)

	_, err = f.svc.CreateGroup(f.id(0), "x", []uint{9999})
	assert.ErrorIs(t, err, util.ErrMemberNotFound)

	m1, err := f.svc.SendMessage(f.id(0), conv.ID, "", "hello", "c-1")
	require.NoError(t, err)
	m2, err := f.svc.SendMessage(f.id(1), conv.ID, model.MessageText, "hi", "c-2")
	require.NoError(t, err)
	assert.Greater(t, m2.SeqID, m1.SeqID)
	assert.Equal(t, "Member 1", m2.Sender.FullName)

	_, err = f.svc.SendMessage(f.id(2), conv.ID, "", "intruder", "")
	assert.ErrorIs(t, err, util.ErrNotConversationMember)
	_, err = f.svc.SendMessage(f.id(0), conv.ID, "video", "x", "")
	assert.ErrorIs(t, err, util.ErrInvalidChatTarget)
	_, err = f.svc.SendMessage(f.id(0), "missing", "", "x", "")
	assert.ErrorIs(t, err, util.ErrConversationNotFound)

	history, err := f.svc.History(f.id(1), conv.ID, 10, "")
	require.NoError(t, err)
	// 含创建群聊的系统消息
	require.Len(t, history, 3)
	assert.Equal(t, m2.ID, history[0].ID)

	older, err := f.svc.History(f.id(1), conv.ID, 10, m2.ID)
	require.NoError(t, err)
	assert.Len(t, older, 2)

	page, err := f.svc.ListConversations(f.id(1), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, m2.ID, page.Items[0].LastMessage.ID)
	// 自己发送的消息不计未读
	assert.EqualValues(t, 2, page.Items[0].UnreadCount)

	require.NoError(t, f.svc.MarkRead(f.id(1), conv.ID, m2.ID))
	page, err = f.svc.ListConversations(f.id(1), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Items[0].UnreadCount)
}

func TestInviteAndLeaveGroup(t *testing.T) {
	f := newChatFixture(t, 3)
	conv, err := f.svc.CreateGroup(f.id(0), "g", []uint{f.id(1)})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.InviteMember(f.id(1), conv.ID, f.id(2)), util.ErrPermissionDenied)
	require.NoError(t, f.svc.InviteMember(f.id(0), conv.ID, f.id(2)))
	// 重复邀请忽略
	require.NoError(t, f.svc.InviteMember(f.id(0), conv.ID, f.id(2)))

	members, total, err := f.svc.ListMembers(f.id(2), conv.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, members, 3)

	private, err := f.svc.GetOrCreatePrivate(f.id(0), f.id(1))
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.LeaveGroup(f.id(0), private.ID), util.ErrNotGroupConversation)

	require.NoError(t, f.svc.LeaveGroup(f.id(1), conv.ID))
	require.NoError(t, f.svc.LeaveGroup(f.id(2), conv.ID))
	_, err = f.svc.SendMessage(f.id(1), conv.ID, "", "still here?", "")
	assert.ErrorIs(t, err, util.ErrNotConversationMember)

	// 最后一名成员离开后会话被删除
	require.NoError(t, f.svc.LeaveGroup(f.id(0), conv.ID))
	_, err = f.svc.History(f.id(0), conv.ID, 10, "")
	assert.ErrorIs(t, err, util.ErrConversationNotFound)
}

func TestMessagePushedOverWebSocket(t *testing.T) {
	f := newChatFixture(t, 2)
	conv, err := f.svc.GetOrCreatePrivate(f.id(0), f.id(1))
	require.NoError(t, err)

	receiver := f.id(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(f.hub, w, r, receiver)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.IsMemberOnline(receiver) }, 2*time.Second, 10*time.Millisecond)

	sent, err := f.svc.SendMessage(f.id(0), conv.ID, "", "ping", "c-9")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type != EventNewMessage {
			continue
		}
		var got model.Message
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "ping", got.Content)
		return
	}
}
