package lark

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

type sentMessage struct {
	openID string
	text   string
}

type fakeSender struct {
	failFor string
	sent    []sentMessage
}

func (f *fakeSender) SendText(ctx context.Context, openID, text string) (string, error) {
	if openID == f.failFor {
		return "", errors.New("rate limited")
	}
	f.sent = append(f.sent, sentMessage{openID: openID, text: text})
	return "om_" + openID, nil
}

type fakeUsers struct {
	port.UserRepository
	users map[int64]*entity.User
	err   error
}

func (f *fakeUsers) GetByIDs(ctx context.Context, ids []int64) ([]*entity.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func newUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]*entity.User{
		1: {ID: 1, LarkOpenID: "ou_alice"},
		2: {ID: 2},
		3: {ID: 3, LarkOpenID: "ou_carol"},
	}}
}

func notification(ids ...int64) *port.Notification {
	return &port.Notification{
		Kind:         event.TypeApprovalRequested,
		ExpenseID:    7,
		RecipientIDs: ids,
		Title:        "Expense awaiting your approval",
		Body:         "Expense #7 needs you",
	}
}

func TestNotifier_Notify(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, newUsers(), zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), notification(1, 2, 3)))

	require.Len(t, sender.sent, 2, "user without open_id is skipped")
	assert.Equal(t, "ou_alice", sender.sent[0].openID)
	assert.Equal(t, "Expense awaiting your approval\nExpense #7 needs you", sender.sent[0].text)
	assert.Equal(t, "ou_carol", sender.sent[1].openID)
	assert.Equal(t, "lark", n.Name())
}

func TestNotifier_Notify_PartialFailure(t *testing.T) {
	sender := &fakeSender{failFor: "ou_alice"}
	n := NewNotifier(sender, newUsers(), zap.NewNop())

	err := n.Notify(context.Background(), notification(1, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user 1")
	assert.Len(t, sender.sent, 1)
}

func TestNotifier_Notify_UserLookupFails(t *testing.T) {
	users := newUsers()
	users.err = errors.New("db closed")
	n := NewNotifier(&fakeSender{}, users, zap.NewNop())

	err := n.Notify(context.Background(), notification(1))
	assert.ErrorIs(t, err, users.err)
}
