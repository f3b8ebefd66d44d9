package notification_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/notification"
	"github.com/avisolabs/aviso/internal/store"
)

func newTestService() *notification.Service {
	return notification.NewService(store.NewMemory(), zap.NewNop())
}

func validUserID() string {
	return uuid.New().String()
}

func TestCreateNotification(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	userID := validUserID()
	n, err := svc.Create(ctx, []string{userID}, notification.TypeInterest, nil, []string{"ana@example.com"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, []string{userID}, n.TargetUserIDs)
	assert.Nil(t, n.ViewerID)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		userIDs []string
		typ     notification.Type
		mails   []string
	}{
		{"empty target users", nil, notification.TypeInterest, nil},
		{"malformed user id", []string{"not-a-uuid"}, notification.TypeInterest, nil},
		{"non v4 uuid", []string{"00000000-0000-1000-8000-000000000000"}, notification.TypeInterest, nil},
		{"unknown type", []string{validUserID()}, notification.Type("SHOUTING"), nil},
		{"invalid mail", []string{validUserID()}, notification.TypeContact, []string{"not an address"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.userIDs, tt.typ, nil, tt.mails)
			require.Error(t, err)
			assert.True(t, notification.IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}

func TestCreateDoesNotCheckUserExistence(t *testing.T) {
	svc := newTestService()

	// Any well-formed v4 UUID is accepted; there is no user registry here.
	_, err := svc.Create(context.Background(), []string{uuid.New().String()}, notification.TypePaymentProof, nil, nil)
	require.NoError(t, err)
}

func TestFindOneNotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.FindOne(context.Background(), uuid.New())
	assert.ErrorIs(t, err, notification.ErrNotFound)
}

func TestUpdateMergesPatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	n, err := svc.Create(ctx, []string{validUserID()}, notification.TypeInterest, nil, nil)
	require.NoError(t, err)

	newType := notification.TypeContact
	mediaID := "media-42"
	updated, err := svc.Update(ctx, n.ID, notification.Patch{
		Type:         &newType,
		MultimediaID: &mediaID,
	})
	require.NoError(t, err)

	assert.Equal(t, notification.TypeContact, updated.Type)
	require.NotNil(t, updated.MultimediaID)
	assert.Equal(t, "media-42", *updated.MultimediaID)
	// Untouched fields survive the merge.
	assert.Equal(t, n.TargetUserIDs, updated.TargetUserIDs)
	assert.Equal(t, notification.StatusSent, updated.Status)
}

func TestUpdateUnknownID(t *testing.T) {
	svc := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), notification.Patch{})
	assert.ErrorIs(t, err, notification.ErrNotFound)
}

func TestSoftDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	n, err := svc.Create(ctx, []string{validUserID()}, notification.TypeInterest, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, n.ID))

	// Deleted records vanish from every read path.
	_, err = svc.FindOne(ctx, n.ID)
	assert.ErrorIs(t, err, notification.ErrNotFound)

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Deleting twice fails the same way as deleting the unknown.
	assert.ErrorIs(t, svc.SoftDelete(ctx, n.ID), notification.ErrNotFound)
}

func TestMarkAsOpened(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	n, err := svc.Create(ctx, []string{validUserID()}, notification.TypeInterest, nil, nil)
	require.NoError(t, err)

	viewerID := validUserID()
	opened, err := svc.MarkAsOpened(ctx, n.ID, viewerID)
	require.NoError(t, err)

	assert.Equal(t, notification.StatusOpened, opened.Status)
	require.NotNil(t, opened.ViewerID)
	assert.Equal(t, viewerID, *opened.ViewerID)

	// Opening is not idempotent.
	_, err = svc.MarkAsOpened(ctx, n.ID, validUserID())
	assert.ErrorIs(t, err, notification.ErrAlreadyOpened)
}

func TestMarkAsOpenedUnknownID(t *testing.T) {
	svc := newTestService()

	_, err := svc.MarkAsOpened(context.Background(), uuid.New(), validUserID())
	assert.ErrorIs(t, err, notification.ErrNotFound)
}

func TestMarkAsOpenedConcurrentSingleWinner(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	n, err := svc.Create(ctx, []string{validUserID()}, notification.TypeInterest, nil, nil)
	require.NoError(t, err)

	const callers = 16

	var wg sync.WaitGroup
	results := make([]error, callers)
	viewers := make([]string, callers)
	for i := range viewers {
		viewers[i] = validUserID()
	}

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.MarkAsOpened(ctx, n.ID, viewers[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, notification.ErrAlreadyOpened)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent open must succeed")

	// The stored viewer is one of the callers.
	final, err := svc.FindOne(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, final.ViewerID)
	assert.Contains(t, viewers, *final.ViewerID)
}

func TestForUser(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	alice := validUserID()
	bob := validUserID()

	forAlice, err := svc.Create(ctx, []string{alice}, notification.TypeInterest, nil, nil)
	require.NoError(t, err)
	forBoth, err := svc.Create(ctx, []string{alice, bob}, notification.TypeContact, nil, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, []string{bob}, notification.TypePaymentProof, nil, nil)
	require.NoError(t, err)

	got, err := svc.ForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, forAlice.ID, got[0].ID)
	assert.Equal(t, forBoth.ID, got[1].ID)

	// Soft-deleted records drop out of the per-user view.
	require.NoError(t, svc.SoftDelete(ctx, forAlice.ID))
	got, err = svc.ForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, forBoth.ID, got[0].ID)

	// Unknown users simply have nothing.
	got, err = svc.ForUser(ctx, validUserID())
	require.NoError(t, err)
	assert.Empty(t, got)
}
