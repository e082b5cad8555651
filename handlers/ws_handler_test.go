package handlers

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wellmom/chat-service/database"
	"github.com/wellmom/chat-service/models"
	"github.com/wellmom/chat-service/services"
	ws "github.com/wellmom/chat-service/websocket"
)

type recordingConn struct {
	mu     sync.Mutex
	frames []interface{}
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) snapshot() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.frames))
	copy(out, c.frames)
	return out
}

func frameType(frame interface{}) string {
	m, ok := frame.(fiber.Map)
	if !ok {
		return ""
	}
	t, _ := m["type"].(string)
	return t
}

type wsFixture struct {
	handler  *WsHandler
	registry *ws.Registry
	chat     *services.ChatService

	recipientUser models.User
	providerUser  models.User
	conv          *models.Conversation
}

func newWsFixture(t *testing.T) *wsFixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Provider{},
		&models.Recipient{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	))
	database.DB = db

	providerUser := models.User{FullName: "Sari Wulandari", Phone: "+628111", PasswordHash: "x", Role: models.RoleProvider, IsActive: true}
	recipientUser := models.User{FullName: "Dewi Lestari", Phone: "+628222", PasswordHash: "x", Role: models.RoleRecipient, IsActive: true}
	require.NoError(t, db.Create(&providerUser).Error)
	require.NoError(t, db.Create(&recipientUser).Error)

	provider := models.Provider{UserID: providerUser.ID, FullName: providerUser.FullName, JobTitle: "Community Midwife", IsActive: true}
	require.NoError(t, db.Create(&provider).Error)
	recipient := models.Recipient{UserID: recipientUser.ID, ProviderID: &provider.ID, FullName: recipientUser.FullName, IsActive: true}
	require.NoError(t, db.Create(&recipient).Error)

	registry := ws.NewRegistry()
	chat := services.NewChatService(db, registry, nil)
	conv, err := chat.Conversations().GetOrCreate(recipient.ID, provider.ID)
	require.NoError(t, err)

	return &wsFixture{
		handler:       NewWsHandler(chat, registry),
		registry:      registry,
		chat:          chat,
		recipientUser: recipientUser,
		providerUser:  providerUser,
		conv:          conv,
	}
}

func signChatToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *wsFixture) tokenFor(t *testing.T, userID uuid.UUID) string {
	return signChatToken(t, "test-secret", jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
}

func TestAuthorizeChannelCloseReasons(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)

	stranger := models.User{FullName: "Tamu", Phone: "+628444", PasswordHash: "x", Role: models.RoleRecipient, IsActive: true}
	req.NoError(database.DB.Create(&stranger).Error)
	inactive := models.User{FullName: "Nonaktif", Phone: "+628555", PasswordHash: "x", Role: models.RoleRecipient, IsActive: false}
	req.NoError(database.DB.Create(&inactive).Error)

	convID := f.conv.ID.String()
	cases := []struct {
		name         string
		token        string
		conversation string
		reason       string
	}{
		{"missing token", "", convID, "Token required"},
		{"garbage token", "not-a-token", convID, "Invalid token"},
		{"wrong secret", signChatToken(t, "other-secret", jwt.MapClaims{
			"user_id": f.recipientUser.ID.String(),
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), convID, "Invalid token"},
		{"no user_id claim", signChatToken(t, "test-secret", jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}), convID, "Invalid token"},
		{"non-uuid user_id", signChatToken(t, "test-secret", jwt.MapClaims{
			"user_id": "42",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), convID, "Invalid token"},
		{"inactive user", f.tokenFor(t, inactive.ID), convID, "Invalid token"},
		{"malformed conversation id", f.tokenFor(t, f.recipientUser.ID), "not-a-uuid", "Conversation not found"},
		{"unknown conversation", f.tokenFor(t, f.recipientUser.ID), uuid.NewString(), "Conversation not found"},
		{"non-participant", f.tokenFor(t, stranger.ID), convID, "Access denied"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user, conv, reason := f.handler.authorizeChannel(tc.token, tc.conversation)
			require.Equal(t, tc.reason, reason)
			require.Nil(t, user)
			require.Nil(t, conv)
		})
	}

	user, conv, reason := f.handler.authorizeChannel(f.tokenFor(t, f.recipientUser.ID), convID)
	req.Empty(reason)
	req.Equal(f.recipientUser.ID, user.ID)
	req.Equal(f.conv.ID, conv.ID)
}

func TestRunChannelFrameProtocol(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)

	user := f.recipientUser
	conn := &recordingConn{}

	inbound := [][]byte{
		[]byte(`{"type":"ping"}`),
		[]byte(`this is not json`),
		[]byte(`{"type":"ping"}`),
		[]byte(`{"type":"later"}`),
	}
	var liveCounts []int
	next := 0
	read := func() ([]byte, error) {
		liveCounts = append(liveCounts, f.registry.ConnectionCount(user.ID))
		if next < len(inbound) {
			data := inbound[next]
			next++
			return data, nil
		}
		return nil, errors.New("client went away")
	}

	f.handler.runChannel(conn, read, &user, f.conv)

	// The connection was registered for the whole loop and removed by the
	// time runChannel returned.
	req.NotEmpty(liveCounts)
	for _, count := range liveCounts {
		req.Equal(1, count)
	}
	req.Equal(0, f.registry.ConnectionCount(user.ID))

	frames := conn.snapshot()
	req.Len(frames, 4)
	req.Equal("connection", frameType(frames[0]))
	req.Equal("pong", frameType(frames[1]))
	// A malformed frame gets an error reply and the channel stays open, so
	// the following ping is still answered.
	req.Equal("error", frameType(frames[2]))
	req.Equal("pong", frameType(frames[3]))
}

func TestRunChannelReceivesLiveDelivery(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)

	providerConn := &recordingConn{}
	hold := make(chan struct{})
	read := func() ([]byte, error) {
		<-hold
		return nil, errors.New("client went away")
	}

	done := make(chan struct{})
	go func() {
		f.handler.runChannel(providerConn, read, &f.providerUser, f.conv)
		close(done)
	}()

	req.Eventually(func() bool {
		return f.registry.ConnectionCount(f.providerUser.ID) == 1
	}, time.Second, 5*time.Millisecond)

	view, err := f.chat.Send(&f.recipientUser, nil, "Halo, saya mual")
	req.NoError(err)

	req.Eventually(func() bool {
		for _, frame := range providerConn.snapshot() {
			if nm, ok := frame.(services.NewMessageFrame); ok && nm.Message.ID == view.ID {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "registered channel receives the new_message frame")

	close(hold)
	<-done
	req.Equal(0, f.registry.ConnectionCount(f.providerUser.ID))
}
