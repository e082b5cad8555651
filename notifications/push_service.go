package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	config "github.com/wellmom/chat-service/configs"
)

// PushService talks to the platform's push relay, which owns device tokens
// and the FCM credentials. The chat service only hands it a user id and a
// short payload.
type PushService struct {
	APIURL string
	APIKey string
	client *http.Client
}

var PushClient *PushService

type pushPayload struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

func InitPushService() {
	apiURL := config.Config("PUSH_API_URL")
	apiKey := config.Config("PUSH_API_KEY")

	if apiURL == "" || apiKey == "" {
		log.Println("⚠️ Push service not configured. Missing PUSH_API_URL or PUSH_API_KEY.")
		PushClient = nil
		return
	}

	PushClient = &PushService{
		APIURL: apiURL,
		APIKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	log.Println("✅ Push service initialized successfully.")
}

// Dispatch sends one push notification for the user. Errors are for the
// caller to log; a push failure must never fail a send.
func (s *PushService) Dispatch(userID uuid.UUID, title, body string, data map[string]string) error {
	payload := pushPayload{
		UserID: userID.String(),
		Title:  title,
		Body:   body,
		Data:   data,
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %v", err)
	}

	req, err := http.NewRequest("POST", s.APIURL, bytes.NewBuffer(buf))
	if err != nil {
		return fmt.Errorf("failed to create push request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach push relay: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push relay returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
