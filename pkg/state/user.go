package state

import (
	"context"
)

const (
	CurrentUserId      = "CurrentUserId"
	CurrentUserIP      = "CurrentIP"
	CurrentWorkspaceId = "CurrentWorkspaceId"
)

// CurrentUser returns the current user's ID as uint from the context.
func CurrentUser(ctx context.Context) uint {
	value := ctx.Value(CurrentUserId)
	if value == nil {
		return 0
	}

	userID, ok := value.(uint)
	if !ok {
		return 0
	}

	return userID
}

// CurrentWorkspace returns the workspace the request is scoped to, or "".
func CurrentWorkspace(ctx context.Context) string {
	workspaceID, _ := ctx.Value(CurrentWorkspaceId).(string)
	return workspaceID
}

func SetCurrentWorkspace(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, CurrentWorkspaceId, workspaceID)
}
