// Package profile resolves the tenant profile a session runs with from the
// room name.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means no tenant matches the key derived from the room.
	ErrNotFound = errors.New("tenant profile not found")

	// ErrUpstreamUnavailable means the profile source could not be reached.
	ErrUpstreamUnavailable = errors.New("profile source unavailable")
)

// KeySeparator splits a room name into tenant key and conversation suffix.
const KeySeparator = "_"

// Profile is the immutable per-session tenant configuration.
type Profile struct {
	TenantID      string `json:"id"`
	BusinessName  string `json:"business_name"`
	KnowledgeBase string `json:"knowledge_base"`

	// Instructions, when set, replace the built-in receptionist prompt.
	Instructions string `json:"-"`
}

// AgentInstructions returns the system prompt for the session.
func (p Profile) AgentInstructions() string {
	if p.Instructions != "" {
		return p.Instructions
	}
	return BuildInstructions(p)
}

// Resolver looks up the profile for a session key.
type Resolver interface {
	Resolve(ctx context.Context, sessionKey string) (Profile, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, sessionKey string) (Profile, error)

func (f ResolverFunc) Resolve(ctx context.Context, sessionKey string) (Profile, error) {
	return f(ctx, sessionKey)
}

// TenantKey returns the part of sessionKey before the first separator. The
// rest identifies the conversation and is ignored.
func TenantKey(sessionKey string) (string, error) {
	key, _, _ := strings.Cut(sessionKey, KeySeparator)
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: no tenant key in %q", ErrNotFound, sessionKey)
	}
	return key, nil
}

// BuildInstructions renders the receptionist prompt for a tenant.
func BuildInstructions(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly and helpful digital receptionist for %s. ", p.BusinessName)
	b.WriteString("Your primary goal is to answer the user's questions based on the business information provided. ")
	b.WriteString("Your secondary goal is to capture new customer leads, but ONLY if the user expresses a desire to be contacted. ")
	b.WriteString("If the user asks for a quote, a callback, or a service visit, that is your cue to collect their information. ")
	b.WriteString("You must collect their name, their specific inquiry, and their email address. ")
	b.WriteString("A phone number is optional, but you can ask for it if it seems appropriate. ")
	b.WriteString("Once you have naturally collected the user's name, their inquiry, and their email address, ")
	b.WriteString("you MUST call the `present_verification_form` tool. ")
	b.WriteString("After you call the tool and receive the confirmation message 'The verification form was successfully displayed to the user.', ")
	b.WriteString("your next response MUST be to instruct the user to check the details on the form and click the send button if they are correct. ")
	b.WriteString("Also, let them know they can either edit the form directly or tell you if they want to make any changes. ")
	b.WriteString("If the user asks you to change any of the details while the form is displayed, you MUST call the `present_verification_form` tool again with the updated information. ")
	b.WriteString("If the user is just asking questions, simply answer them and remain helpful. Do not push to capture their details. ")
	fmt.Fprintf(&b, "Business Information: %s", p.KnowledgeBase)
	return b.String()
}
