package repository

import (
	"testing"

	"toeic_backend/internal/model"
	"toeic_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessageSequence(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewChatRepository(db, nil)

	member := &model.Member{FullName: "Sender", Email: "s@example.com", Password: "x"}
	require.NoError(t, db.Create(member).Error)
	conv := &model.Conversation{Type: model.ConversationGroup, Name: "Part 7 club", CreatorID: member.ID}
	require.NoError(t, repo.CreateConversation(conv))

	for i := 1; i <= 3; i++ {
		msg := &model.Message{ConversationID: conv.ID, SenderID: &member.ID, Content: "hi"}
		require.NoError(t, repo.CreateMessage(msg))
		assert.EqualValues(t, i, msg.SeqID)
		// 发送者随消息一起返回
		require.NotNil(t, msg.Sender)
		assert.Equal(t, "Sender", msg.Sender.FullName)
	}

	// 库中已有更大的序号时从其之后继续
	require.NoError(t, db.Create(&model.Message{ID: model.GenerateUUID(), ConversationID: conv.ID, SeqID: 10}).Error)
	system := &model.Message{ConversationID: conv.ID, Type: model.MessageSystem, Content: "joined"}
	require.NoError(t, repo.CreateMessage(system))
	assert.EqualValues(t, 11, system.SeqID)
	assert.Nil(t, system.Sender)

	seq, err := repo.maxSeq(db, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 11, seq)
	seq, err = repo.maxSeq(db, "missing")
	require.NoError(t, err)
	assert.Zero(t, seq)
}
