package notifications

import "context"

type StoreAPI interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	ListForUser(ctx context.Context, userID string, filter ListFilter) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, notificationID string) error
}
