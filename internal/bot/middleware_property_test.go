// Package bot provides middleware for the Telegram bot.
// Property-based tests for the permission checks backing the middleware.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"besitos-bot/internal/config"
)

// TestAdminCheckProperty verifies that a user passes the admin check exactly
// when their ID appears in the configured list.
func TestAdminCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(0, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if cfg.IsAdmin(userID) != expected {
			t.Fatalf("Admin check mismatch: userID=%d, adminIDs=%v, expected=%v",
				userID, adminIDs, expected)
		}
	})
}

// TestWhitelistProperty verifies the chat whitelist: an empty whitelist
// allows everything, a non-empty one allows only its members.
func TestWhitelistProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(0, 10).Draw(t, "numChats")
		chats := make([]int64, numChats)
		for i := 0; i < numChats; i++ {
			chats[i] = rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{Chats: chats},
		}

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "candidate")

		expected := len(chats) == 0
		for _, id := range chats {
			if id == chatID {
				expected = true
				break
			}
		}

		if cfg.IsChatAllowed(chatID) != expected {
			t.Fatalf("Whitelist mismatch: chatID=%d, chats=%v, expected=%v",
				chatID, chats, expected)
		}
	})
}

func TestReactionTokens(t *testing.T) {
	cfg := &config.Config{
		Reaction: config.ReactionConfig{Tokens: []string{"❤️", "😘"}},
	}

	if !cfg.IsReactionToken("❤️") {
		t.Fatal("configured token must be recognized")
	}
	if !cfg.IsReactionToken("  😘  ") {
		t.Fatal("surrounding whitespace must be ignored")
	}
	if cfg.IsReactionToken("hola") {
		t.Fatal("plain text must not count as a reaction")
	}
}
