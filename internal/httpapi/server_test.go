package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"messagely/internal/auth"
	"messagely/internal/cache"
	"messagely/internal/memstore"
	"messagely/internal/metrics"
	"messagely/internal/service"
)

type fixture struct {
	handler http.Handler
	tokens  *auth.TokenService
	store   *memstore.Store
}

func (f fixture) tokenFor(t *testing.T, username string) string {
	t.Helper()
	tok, err := f.tokens.Issue(username)
	require.NoError(t, err)
	return tok
}

// newFixture seeds users a, b and c with message 1 (a to b) and message 2
// (c to a).
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService([]byte("test-secret-test-secret-test-sec"), "messagely", time.Hour)
	require.NoError(t, err)

	store := memstore.New()
	users := service.NewUserService(store, store, hasher, zerolog.Nop())
	messages := service.NewMessageService(store, zerolog.Nop())
	participants, err := cache.NewParticipantCache(messages, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { participants.Close() })

	for _, name := range []string{"a", "b", "c"} {
		_, err := users.Register(ctx, service.RegisterInput{
			Username: name, Password: "password", FirstName: name, LastName: name, Phone: "555-5555",
		})
		require.NoError(t, err)
	}
	_, err = messages.Create(ctx, "a", service.CreateMessageInput{ToUsername: "b", Body: "whats up"})
	require.NoError(t, err)
	_, err = messages.Create(ctx, "c", service.CreateMessageInput{ToUsername: "a", Body: "who am i"})
	require.NoError(t, err)

	srv := NewServer(Options{
		Users:          users,
		Messages:       messages,
		Tokens:         tokens,
		Gate:           auth.NewGate(tokens),
		Authorizer:     auth.NewAuthorizer(participants),
		AllowedOrigins: []string{"http://localhost:3000"},
		Logger:         zerolog.Nop(),
	})
	return fixture{handler: srv.Handler(), tokens: tokens, store: store}
}

func expectUnauthorized(t *testing.T, req *apitest.Request) {
	t.Helper()
	req.Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error.message", "Unauthorized")).
		Assert(jsonpath.Equal("$.error.status", float64(http.StatusUnauthorized))).
		End()
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	apitest.New().
		Handler(f.handler).
		Post("/auth/register").
		JSON(`{"username":"dave","password":"hunter2","first_name":"Dave","last_name":"D","phone":"555"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Present("$.token")).
		End()

	apitest.New().
		Handler(f.handler).
		Post("/auth/register").
		JSON(`{"username":"dave","password":"other","first_name":"Dave","last_name":"D","phone":"555"}`).
		Expect(t).
		Status(http.StatusConflict).
		Assert(jsonpath.Equal("$.error.status", float64(http.StatusConflict))).
		End()

	apitest.New().
		Handler(f.handler).
		Post("/auth/register").
		JSON(`{"username":"eve"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Present("$.error.message")).
		End()

	apitest.New().
		Handler(f.handler).
		Post("/auth/register").
		JSON(`{"username":`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.message", "Malformed JSON body")).
		End()
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	before, err := f.store.GetUserByUsername(context.Background(), "a")
	require.NoError(t, err)

	apitest.New().
		Handler(f.handler).
		Post("/auth/login").
		JSON(`{"username":"a","password":"password"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.token")).
		End()

	after, err := f.store.GetUserByUsername(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, after.LastLoginAt.After(*before.LastLoginAt) || after.LastLoginAt.Equal(*before.LastLoginAt))

	for _, body := range []string{
		`{"username":"a","password":"wrong"}`,
		`{"username":"nobody","password":"password"}`,
	} {
		apitest.New().
			Handler(f.handler).
			Post("/auth/login").
			JSON(body).
			Expect(t).
			Status(http.StatusUnauthorized).
			Assert(jsonpath.Equal("$.error.message", "Invalid credentials")).
			End()
	}
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)

	apitest.New().
		Handler(f.handler).
		Get("/users").
		Query("_token", f.tokenFor(t, "c")).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.users", 3)).
		Assert(jsonpath.Equal("$.users[0].username", "a")).
		Assert(jsonpath.NotPresent("$.users[0].password_hash")).
		End()

	expectUnauthorized(t, apitest.New().Handler(f.handler).Get("/users"))
	expectUnauthorized(t, apitest.New().Handler(f.handler).Get("/users").Query("_token", "garbage"))
}

func TestUserRoutesRequireSameUser(t *testing.T) {
	f := newFixture(t)
	tokA := f.tokenFor(t, "a")

	apitest.New().
		Handler(f.handler).
		Get("/users/a").
		Query("_token", tokA).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.user.username", "a")).
		Assert(jsonpath.Equal("$.user.phone", "555-5555")).
		Assert(jsonpath.Present("$.user.join_at")).
		Assert(jsonpath.NotPresent("$.user.password_hash")).
		End()

	apitest.New().
		Handler(f.handler).
		Get("/users/a/from").
		Query("_token", tokA).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.messages", 1)).
		Assert(jsonpath.Equal("$.messages[0].to_user.username", "b")).
		End()

	apitest.New().
		Handler(f.handler).
		Get("/users/a/to").
		Query("_token", tokA).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.messages", 1)).
		Assert(jsonpath.Equal("$.messages[0].from_user.username", "c")).
		End()

	for _, path := range []string{"/users/a", "/users/a/from", "/users/a/to"} {
		expectUnauthorized(t, apitest.New().Handler(f.handler).Get(path).Query("_token", f.tokenFor(t, "b")))
		expectUnauthorized(t, apitest.New().Handler(f.handler).Get(path))
	}
}

func TestGetMessage(t *testing.T) {
	f := newFixture(t)

	for _, who := range []string{"a", "b"} {
		apitest.New().
			Handler(f.handler).
			Get("/messages/1").
			Query("_token", f.tokenFor(t, who)).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal("$.message.id", float64(1))).
			Assert(jsonpath.Equal("$.message.from_user.username", "a")).
			Assert(jsonpath.Equal("$.message.to_user.username", "b")).
			Assert(jsonpath.Equal("$.message.body", "whats up")).
			End()
	}

	rejected := testutil.ToFloat64(metrics.GuardRejections.WithLabelValues("message_participant"))
	expectUnauthorized(t, apitest.New().Handler(f.handler).Get("/messages/1").Query("_token", f.tokenFor(t, "c")))
	expectUnauthorized(t, apitest.New().Handler(f.handler).Get("/messages/1"))
	// a missing message looks the same as someone else's
	expectUnauthorized(t, apitest.New().Handler(f.handler).Get("/messages/999").Query("_token", f.tokenFor(t, "a")))
	assert.Equal(t, rejected+3, testutil.ToFloat64(metrics.GuardRejections.WithLabelValues("message_participant")))
}

func TestCreateMessage(t *testing.T) {
	f := newFixture(t)
	tokA := f.tokenFor(t, "a")

	apitest.New().
		Handler(f.handler).
		Post("/messages").
		JSON(`{"_token":"` + tokA + `","to_username":"b","body":"yer funny bro"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.message.from_username", "a")).
		Assert(jsonpath.Equal("$.message.to_username", "b")).
		Assert(jsonpath.Equal("$.message.id", float64(3))).
		End()

	apitest.New().
		Handler(f.handler).
		Post("/messages").
		Header("Content-Type", "application/x-www-form-urlencoded").
		Body(url.Values{"_token": {tokA}, "to_username": {"c"}, "body": {"hi c"}}.Encode()).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.message.to_username", "c")).
		End()

	apitest.New().
		Handler(f.handler).
		Post("/messages").
		JSON(`{"_token":"` + tokA + `","to_username":"zed","body":"hello?"}`).
		Expect(t).
		Status(http.StatusNotFound).
		End()

	expectUnauthorized(t, apitest.New().Handler(f.handler).Post("/messages").JSON(`{"to_username":"b","body":"x"}`))
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)

	expectUnauthorized(t, apitest.New().Handler(f.handler).Post("/messages/1/read").Query("_token", f.tokenFor(t, "a")))
	expectUnauthorized(t, apitest.New().Handler(f.handler).Post("/messages/1/read").Query("_token", f.tokenFor(t, "c")))
	expectUnauthorized(t, apitest.New().Handler(f.handler).Post("/messages/1/read"))

	msg, err := f.store.GetMessageByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, msg.ReadAt)

	apitest.New().
		Handler(f.handler).
		Post("/messages/1/read").
		JSON(`{"_token":"` + f.tokenFor(t, "b") + `"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message.id", float64(1))).
		Assert(jsonpath.Present("$.message.read_at")).
		End()

	msg, err = f.store.GetMessageByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, msg.ReadAt)
	first := *msg.ReadAt

	apitest.New().
		Handler(f.handler).
		Post("/messages/1/read").
		Query("_token", f.tokenFor(t, "b")).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message.read_at", first.Format(time.RFC3339Nano))).
		End()
}

func TestHealthMetricsAndCORS(t *testing.T) {
	f := newFixture(t)

	apitest.New().
		Handler(f.handler).
		Get("/health").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "healthy")).
		HeaderPresent(RequestIDHeader).
		End()

	apitest.New().
		Handler(f.handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New().
		Handler(f.handler).
		Method(http.MethodOptions).
		URL("/users").
		Header("Origin", "http://localhost:3000").
		Expect(t).
		Status(http.StatusOK).
		Header("Access-Control-Allow-Origin", "http://localhost:3000").
		End()

	apitest.New().
		Handler(f.handler).
		Get("/health").
		Header("Origin", "http://evil.example").
		Expect(t).
		HeaderNotPresent("Access-Control-Allow-Origin").
		End()

	apitest.New().
		Handler(f.handler).
		Get("/nowhere").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}
