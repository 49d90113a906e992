package services

import (
	"context"
	"errors"
	"testing"
)

func TestUsernameService_ResolveNormalizesInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.usernames.Register(ctx, "alice", addrAlice); err != nil {
		t.Fatalf("register: %v", err)
	}

	withAt, err := env.usernames.Resolve(ctx, "@Alice")
	if err != nil {
		t.Fatalf("resolve @Alice: %v", err)
	}
	plain, err := env.usernames.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve alice: %v", err)
	}
	if *withAt != *plain {
		t.Fatalf("expected same record, got %+v and %+v", withAt, plain)
	}
	if plain.Address != addrAlice {
		t.Errorf("address = %s", plain.Address)
	}
	if env.registry.callCount() != 0 {
		t.Errorf("cache hits must not call the registry, got %d calls", env.registry.callCount())
	}
}

func TestUsernameService_MissFallsBackToRegistryAndCaches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registry.set("bob", "0x2222222222222222222222222222222222222222", true)

	got, err := env.usernames.ResolveUsername(ctx, "Bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Username != "bob" || got.Address != addrBob || !got.IsPremium {
		t.Fatalf("unexpected result %+v", got)
	}
	calls := env.registry.callCount()

	if _, err := env.usernames.ResolveUsername(ctx, "bob"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if env.registry.callCount() != calls {
		t.Errorf("second lookup should be served from cache")
	}

	record, err := env.userRepo.GetByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("cache row missing: %v", err)
	}
	if !record.IsPremium {
		t.Errorf("premium flag not cached")
	}
}

func TestUsernameService_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name  string
		setup func()
		input string
		want  error
	}{
		{name: "too short", input: "ab", want: ErrValidation},
		{name: "bad characters", input: "al-ice", want: ErrValidation},
		{name: "unregistered", input: "ghost", want: ErrNotFound},
		{
			name:  "registry down",
			setup: func() { env.registry.err = errors.New("dial tcp: connection refused") },
			input: "someone",
			want:  ErrExternalService,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := env.usernames.Resolve(ctx, tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}

func TestUsernameService_NilRegistry(t *testing.T) {
	env := newTestEnv(t)
	svc := NewUsernameService(env.userRepo, nil, quietLogger())

	if _, err := svc.ResolveUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without registry, got %v", err)
	}
}

func TestUsernameService_ResolveAddress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registry.set("carol", addrCarol, false)

	got, err := env.usernames.Resolve(ctx, "0x3333333333333333333333333333333333333333")
	if err != nil {
		t.Fatalf("resolve address: %v", err)
	}
	if got.Username != "carol" {
		t.Errorf("username = %q", got.Username)
	}

	if _, err := env.usernames.ResolveAddress(ctx, addrBob); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for address without username, got %v", err)
	}
	if _, err := env.usernames.ResolveAddress(ctx, "0x123"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for short address, got %v", err)
	}
}

func TestUsernameService_RegisterKeepsPremium(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registry.set("dave", addrAlice, true)

	if _, err := env.usernames.ResolveUsername(ctx, "dave"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := env.usernames.Register(ctx, "@Dave", addrBob)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got.Address != addrBob || !got.IsPremium {
		t.Errorf("unexpected record after re-register: %+v", got)
	}
}

func TestUsernameService_LinkTelegram(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.usernames.Register(ctx, "alice", addrAlice); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.usernames.ChatIDForAddress(ctx, addrAlice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no chat before linking, got %v", err)
	}
	if _, err := env.usernames.LinkTelegram(ctx, "@alice", 777); err != nil {
		t.Fatalf("link: %v", err)
	}

	chatID, err := env.usernames.ChatIDForAddress(ctx, "0x1111111111111111111111111111111111111111")
	if err != nil || chatID != 777 {
		t.Fatalf("ChatIDForAddress = %d, %v", chatID, err)
	}
	user, err := env.usernames.UsernameForChat(ctx, 777)
	if err != nil || user.Username != "alice" {
		t.Fatalf("UsernameForChat = %+v, %v", user, err)
	}
	if _, err := env.usernames.LinkTelegram(ctx, "ghost", 778); !errors.Is(err, ErrNotFound) {
		t.Errorf("linking an unknown username should be ErrNotFound, got %v", err)
	}
}

func TestUsernameService_LinkTelegramKeepsExistingOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.usernames.Register(ctx, "bob", addrBob); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.usernames.LinkTelegram(ctx, "bob", 200); err != nil {
		t.Fatalf("link: %v", err)
	}
	// same chat again is fine
	if _, err := env.usernames.LinkTelegram(ctx, "@bob", 200); err != nil {
		t.Fatalf("relink same chat: %v", err)
	}

	if _, err := env.usernames.LinkTelegram(ctx, "bob", 999); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for a foreign chat, got %v", err)
	}
	chatID, err := env.usernames.ChatIDForAddress(ctx, addrBob)
	if err != nil || chatID != 200 {
		t.Fatalf("ChatIDForAddress = %d, %v", chatID, err)
	}
	if _, err := env.usernames.UsernameForChat(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("chat 999 must stay unlinked, got %v", err)
	}
}

func TestUsernameService_ChatIDForAddressWithSeveralUsernames(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.usernames.Register(ctx, "bob", addrBob); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.usernames.LinkTelegram(ctx, "bob", 200); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := env.usernames.Register(ctx, "bob_alt", addrBob); err != nil {
		t.Fatalf("register alt: %v", err)
	}
	// the unlinked name is the most recently updated row for the address
	if err := env.db.Exec("UPDATE usernames SET updated_at = updated_at + 60 WHERE username = ?", "bob_alt").Error; err != nil {
		t.Fatalf("bump updated_at: %v", err)
	}

	chatID, err := env.usernames.ChatIDForAddress(ctx, addrBob)
	if err != nil || chatID != 200 {
		t.Fatalf("ChatIDForAddress = %d, %v", chatID, err)
	}
}
