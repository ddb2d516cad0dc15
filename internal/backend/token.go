package backend

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"

	"github.com/jeffo777/input-right/internal/profile"
)

// CallerName is the display name given to website callers.
const CallerName = "Website Visitor"

type tokenRequest struct {
	TenantID string `json:"tenant_id" validate:"required,excludes=_"`
	RoomName string `json:"room_name"`
}

// TokenResponse is what the caller's client needs to join.
type TokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	RoomName string `json:"room_name"`
	URL      string `json:"url"`
}

// CallerGrant is the grant a caller joins with: join, publish, subscribe
// and data for the form calls.
func CallerGrant(room string) *auth.VideoGrant {
	grant := &auth.VideoGrant{RoomJoin: true, Room: room}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)
	return grant
}

// RoomFor returns room when set, else a fresh room for the tenant.
func RoomFor(tenantID, room string) string {
	if room != "" {
		return room
	}
	return tenantID + profile.KeySeparator + uuid.NewString()
}

// MintToken signs a join token for identity in room.
func MintToken(lk LiveKit, identity, name string, grant *auth.VideoGrant, ttl time.Duration) (string, error) {
	at := auth.NewAccessToken(lk.APIKey, lk.APISecret)
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(ttl)
	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Server) createToken(c *fiber.Ctx) error {
	if s.livekit.APIKey == "" || s.livekit.APISecret == "" {
		s.logger.Error("LiveKit credentials are not configured")
		return fiber.NewError(fiber.StatusInternalServerError, "LiveKit credentials are not configured")
	}

	var req tokenRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	if _, err := s.store.GetTenant(c.UserContext(), req.TenantID); err != nil {
		return err
	}

	room := RoomFor(req.TenantID, req.RoomName)
	if key, err := profile.TenantKey(room); err != nil || key != req.TenantID {
		return &validationError{details: map[string]string{"room_name": "must start with the tenant id"}}
	}
	identity := "visitor-" + uuid.NewString()
	token, err := MintToken(s.livekit, identity, CallerName, CallerGrant(room), s.tokenTTL)
	if err != nil {
		return err
	}

	return c.JSON(TokenResponse{
		Token:    token,
		Identity: identity,
		RoomName: room,
		URL:      s.livekit.URL,
	})
}
