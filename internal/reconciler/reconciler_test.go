package reconciler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thaddeuskkr/whatsapp/internal/chat"
	"github.com/thaddeuskkr/whatsapp/internal/domain"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
)

func TestMain(m *testing.M) {
	observability.InitLogger("test")
	os.Exit(m.Run())
}

// opLog records store writes and broadcasts in the order they happen, so
// tests can assert that every write lands before its frame goes out.
type opLog struct {
	ops []string
}

type fakeRepo struct {
	log       *opLog
	byWID     map[string]*domain.Message
	byID      map[string]*domain.Message
	nextID    int
	insertErr error
	updateErr error
}

func newFakeRepo(log *opLog) *fakeRepo {
	return &fakeRepo{
		log:   log,
		byWID: make(map[string]*domain.Message),
		byID:  make(map[string]*domain.Message),
	}
}

func (r *fakeRepo) Insert(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	r.log.ops = append(r.log.ops, "insert")
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	if _, ok := r.byWID[msg.WID]; ok {
		return nil, domain.ErrDuplicateMessage
	}
	r.nextID++
	stored := *msg
	stored.ID = string(rune('a' + r.nextID))
	stored.UpdatedAt = time.Now()
	r.byWID[stored.WID] = &stored
	r.byID[stored.ID] = &stored
	return &stored, nil
}

func (r *fakeRepo) FindByWID(_ context.Context, wid string) (*domain.Message, error) {
	msg, ok := r.byWID[wid]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*domain.Message, error) {
	msg, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r *fakeRepo) Update(_ context.Context, msg *domain.Message) error {
	r.log.ops = append(r.log.ops, "update")
	if r.updateErr != nil {
		return r.updateErr
	}
	stored := *msg
	stored.UpdatedAt = time.Now()
	r.byWID[stored.WID] = &stored
	r.byID[stored.ID] = &stored
	return nil
}

func (r *fakeRepo) ListCreated(context.Context, *time.Time, int) ([]*domain.Message, error) {
	return nil, nil
}

func (r *fakeRepo) ListEdited(context.Context, *time.Time, int) ([]*domain.Message, error) {
	return nil, nil
}

func (r *fakeRepo) ListRevoked(context.Context, *time.Time, int) ([]*domain.Message, error) {
	return nil, nil
}

type fakeBroadcaster struct {
	log    *opLog
	frames []protocol.Frame
}

func (b *fakeBroadcaster) Broadcast(f protocol.Frame) int {
	b.log.ops = append(b.log.ops, "broadcast")
	b.frames = append(b.frames, f)
	return 1
}

func newTestReconciler() (*Reconciler, *fakeRepo, *fakeBroadcaster) {
	log := &opLog{}
	repo := newFakeRepo(log)
	bc := &fakeBroadcaster{log: log}
	return New(repo, bc, "test", DefaultIgnoreFrom, DefaultIgnoreTypes), repo, bc
}

func createEvent(wid string) chat.MessageEvent {
	return chat.MessageEvent{
		WID:       wid,
		Body:      "hello",
		From:      "1234@c.us",
		To:        "5678@c.us",
		Type:      "chat",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleCreate_PersistsThenBroadcasts(t *testing.T) {
	rec, repo, bc := newTestReconciler()

	rec.HandleCreate(context.Background(), createEvent("w1"))

	require.Len(t, bc.frames, 1)
	assert.Equal(t, []string{"insert", "broadcast"}, repo.log.ops)

	f := bc.frames[0]
	assert.Equal(t, protocol.OpMessageCreate, f.Op)
	ref, ok := f.Data.(protocol.MessageRef)
	require.True(t, ok)
	assert.Equal(t, "w1", ref.WID)
	assert.Equal(t, "1234@c.us", ref.From)
	assert.NotEmpty(t, ref.ID)

	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Body)
}

func TestHandleCreate_IgnoredSenders(t *testing.T) {
	rec, repo, bc := newTestReconciler()

	for _, from := range DefaultIgnoreFrom {
		ev := createEvent("w-" + from)
		ev.From = from
		rec.HandleCreate(context.Background(), ev)
	}

	assert.Empty(t, repo.log.ops, "ignored senders must never reach the store")
	assert.Empty(t, bc.frames)
}

func TestHandleCreate_IgnoredTypes(t *testing.T) {
	rec, repo, bc := newTestReconciler()

	for _, typ := range DefaultIgnoreTypes {
		ev := createEvent("w-" + typ)
		ev.Type = typ
		rec.HandleCreate(context.Background(), ev)
	}

	assert.Empty(t, repo.log.ops)
	assert.Empty(t, bc.frames)
}

func TestHandleCreate_DuplicateWIDDropped(t *testing.T) {
	rec, repo, bc := newTestReconciler()

	rec.HandleCreate(context.Background(), createEvent("w1"))
	rec.HandleCreate(context.Background(), createEvent("w1"))

	assert.Len(t, bc.frames, 1, "a duplicate create must not broadcast")
	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Body)
}

func TestHandleCreate_StoreErrorSuppressesBroadcast(t *testing.T) {
	rec, repo, bc := newTestReconciler()
	repo.insertErr = context.DeadlineExceeded

	rec.HandleCreate(context.Background(), createEvent("w1"))

	assert.Empty(t, bc.frames)
}

func TestHandleEdit_UpdatesBodyAndBroadcasts(t *testing.T) {
	rec, repo, bc := newTestReconciler()
	rec.HandleCreate(context.Background(), createEvent("w1"))
	repo.log.ops = nil
	bc.frames = nil

	editTS := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	rec.HandleEdit(context.Background(), chat.EditEvent{
		WID:                       "w1",
		Body:                      "hello, edited",
		LatestEditSenderTimestamp: editTS,
		LatestEditMsgKey:          "edit-key-1",
	})

	assert.Equal(t, []string{"update", "broadcast"}, repo.log.ops)
	require.Len(t, bc.frames, 1)
	assert.Equal(t, protocol.OpMessageEdit, bc.frames[0].Op)
	ref := bc.frames[0].Data.(protocol.MessageRef)
	assert.Equal(t, editTS, ref.Timestamp, "edit frames carry the edit timestamp, not the create timestamp")

	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", stored.Body)
	require.NotNil(t, stored.LatestEditSenderTimestamp)
	assert.Equal(t, editTS, *stored.LatestEditSenderTimestamp)
	require.NotNil(t, stored.LatestEditMsgKey)
	assert.Equal(t, "edit-key-1", *stored.LatestEditMsgKey)
}

func TestHandleEdit_UnknownMessageDropped(t *testing.T) {
	rec, repo, bc := newTestReconciler()

	rec.HandleEdit(context.Background(), chat.EditEvent{WID: "missing", Body: "x"})

	assert.Empty(t, repo.log.ops)
	assert.Empty(t, bc.frames)
}

func TestHandleRevoke_MatchesByProtocolMessageKey(t *testing.T) {
	rec, repo, bc := newTestReconciler()
	rec.HandleCreate(context.Background(), createEvent("w1"))
	repo.log.ops = nil
	bc.frames = nil

	rec.HandleRevoke(context.Background(), chat.RevokeEvent{
		WID:                "revoke-event-id",
		Type:               "revoked",
		ProtocolMessageKey: "w1",
	})

	assert.Equal(t, []string{"update", "broadcast"}, repo.log.ops)
	require.Len(t, bc.frames, 1)
	assert.Equal(t, protocol.OpMessageRevoke, bc.frames[0].Op)
	ref := bc.frames[0].Data.(protocol.MessageRef)
	assert.Equal(t, "w1", ref.WID, "the frame names the revoked message, not the revoke event")

	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, stored.Revoked())
	assert.Equal(t, "hello", stored.Body, "revoking must not clear the body")
}

func TestHandleRevoke_EventWIDNeverMatches(t *testing.T) {
	rec, repo, bc := newTestReconciler()
	rec.HandleCreate(context.Background(), createEvent("w1"))
	bc.frames = nil

	// The revoke event's own id happens to equal a stored WID, but the
	// nested key points nowhere. Nothing may be revoked.
	rec.HandleRevoke(context.Background(), chat.RevokeEvent{
		WID:                "w1",
		ProtocolMessageKey: "missing",
	})

	assert.Empty(t, bc.frames)
	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, stored.Revoked())
}

func TestHandleRevoke_Idempotent(t *testing.T) {
	rec, repo, bc := newTestReconciler()
	rec.HandleCreate(context.Background(), createEvent("w1"))
	bc.frames = nil

	ev := chat.RevokeEvent{WID: "r1", ProtocolMessageKey: "w1"}
	rec.HandleRevoke(context.Background(), ev)
	rec.HandleRevoke(context.Background(), ev)

	assert.Len(t, bc.frames, 1, "a second revoke of the same message must be silent")
	stored, err := repo.FindByWID(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, stored.Revoked())
}
