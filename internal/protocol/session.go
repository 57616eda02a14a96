package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"messagely/internal/apperrors"
	"messagely/internal/auth"
	"messagely/internal/models"
	"messagely/internal/service"
)

// Session represents a TCP client session. The token plays the role of the
// token of an HTTP request and is replaced by LOGIN and TOKEN.
type Session struct {
	conn    net.Conn
	scanner *bufio.Scanner
	server  *Server
	log     zerolog.Logger
	token   string
}

// NewSession creates a new session
func NewSession(conn net.Conn, server *Server) *Session {
	return &Session{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		server:  server,
		log:     server.logger.With().Str("client", conn.RemoteAddr().String()).Logger(),
	}
}

// Handle processes the client session until QUIT, EOF or ctx ends.
func (s *Session) Handle(ctx context.Context) {
	defer s.conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	s.log.Debug().Msg("New TCP connection")
	s.sendResponse("220 messagely ready")

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		command := strings.ToUpper(parts[0])
		var args string
		if len(parts) > 1 {
			args = strings.TrimSpace(parts[1])
		}

		// arguments may hold a password or a token
		s.log.Debug().Str("command", command).Msg("Command received")

		cmdCtx := s.context(ctx)
		switch command {
		case "LOGIN":
			s.handleLogin(cmdCtx, args)
		case "TOKEN":
			s.handleToken(args)
		case "WHOAMI":
			s.handleWhoami(cmdCtx)
		case "SEND":
			s.handleSend(cmdCtx, args)
		case "SHOW":
			s.handleShow(cmdCtx, args)
		case "MARKREAD":
			s.handleMarkRead(cmdCtx, args)
		case "LIST":
			s.handleList(cmdCtx)
		case "HELP":
			s.handleHelp()
		case "QUIT":
			s.handleQuit()
			return
		default:
			s.sendResponse("500 Unknown command: " + command)
		}
	}

	if err := s.scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Debug().Err(err).Msg("Scanner error")
	}
	s.log.Debug().Msg("Connection closed")
}

// context resolves the session token for a single command and attaches the
// identity to ctx, as the gate does for each HTTP request. An expired token
// leaves the command anonymous.
func (s *Session) context(ctx context.Context) context.Context {
	if s.token == "" {
		return ctx
	}
	id, ok := s.server.gate.Resolve(s.token)
	if !ok {
		return ctx
	}
	return auth.WithIdentity(ctx, id)
}

// handleLogin authenticates the user and switches the session to it
func (s *Session) handleLogin(ctx context.Context, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		s.sendResponse("501 Usage: LOGIN <username> <password>")
		return
	}
	username, password := parts[0], parts[1]

	if err := s.server.users.Login(ctx, username, password); err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			s.sendResponse("535 Invalid credentials")
			return
		}
		s.replyError(err)
		return
	}

	token, err := s.server.tokens.Issue(username)
	if err != nil {
		s.replyError(fmt.Errorf("issue token: %w", err))
		return
	}
	s.token = token
	s.sendResponse("250 TOKEN " + token)
}

// handleToken resolves a token like the HTTP gate: a bad token leaves the
// session anonymous.
func (s *Session) handleToken(args string) {
	id, ok := s.server.gate.Resolve(args)
	if !ok {
		s.token = ""
		s.sendResponse("250 Continuing as anonymous")
		return
	}
	s.token = args
	s.sendResponse("250 Hello " + id.Username)
}

func (s *Session) handleWhoami(ctx context.Context) {
	id, err := s.authorize(ctx, auth.RequireLoggedIn())
	if err != nil {
		s.replyError(err)
		return
	}
	s.sendResponse(fmt.Sprintf("250 %s (token expires %s)", id.Username, id.ExpiresAt.UTC().Format(time.RFC3339)))
}

// handleSend stores a message from the session user
func (s *Session) handleSend(ctx context.Context, args string) {
	id, err := s.authorize(ctx, auth.RequireLoggedIn())
	if err != nil {
		s.replyError(err)
		return
	}
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		s.sendResponse("501 Usage: SEND <username> <body>")
		return
	}

	msg, err := s.server.messages.Create(ctx, id.Username, service.CreateMessageInput{
		ToUsername: parts[0],
		Body:       parts[1],
	})
	if err != nil {
		s.replyError(err)
		return
	}
	s.sendResponse(fmt.Sprintf("250 Message sent successfully (ID: %d)", msg.ID))
}

// handleShow prints a message to one of its participants
func (s *Session) handleShow(ctx context.Context, args string) {
	messageID, ok := s.parseID(args, "SHOW <id>")
	if !ok {
		return
	}
	if _, err := s.authorize(ctx, s.server.authz.RequireMessageParticipant(messageID)); err != nil {
		s.replyError(err)
		return
	}

	msg, err := s.server.messages.Get(ctx, messageID)
	if err != nil {
		s.replyError(err)
		return
	}

	s.sendResponse(fmt.Sprintf("250 Message %d:", msg.ID))
	s.sendResponse("From: " + describe(msg.FromUser))
	s.sendResponse("To: " + describe(msg.ToUser))
	s.sendResponse("Date: " + msg.SentAt.UTC().Format(time.RFC3339))
	if msg.ReadAt != nil {
		s.sendResponse("Read: " + msg.ReadAt.UTC().Format(time.RFC3339))
	} else {
		s.sendResponse("Read: no")
	}
	s.sendResponse("")
	s.sendBody(msg.Body)
	s.sendResponse(".")
}

// handleMarkRead marks a message read for its recipient
func (s *Session) handleMarkRead(ctx context.Context, args string) {
	messageID, ok := s.parseID(args, "MARKREAD <id>")
	if !ok {
		return
	}
	if _, err := s.authorize(ctx, auth.RequireLoggedIn(), s.server.authz.RequireMessageRecipient(messageID)); err != nil {
		s.replyError(err)
		return
	}

	receipt, err := s.server.messages.MarkRead(ctx, messageID)
	if err != nil {
		s.replyError(err)
		return
	}
	s.sendResponse(fmt.Sprintf("250 Message %d read at %s", receipt.ID, receipt.ReadAt.UTC().Format(time.RFC3339Nano)))
}

// handleList shows the session user's inbox
func (s *Session) handleList(ctx context.Context) {
	id, err := s.authorize(ctx, auth.RequireLoggedIn())
	if err != nil {
		s.replyError(err)
		return
	}
	messages, err := s.server.users.MessagesTo(ctx, id.Username)
	if err != nil {
		s.replyError(err)
		return
	}

	if len(messages) == 0 {
		s.sendResponse("250 No messages in inbox")
		return
	}
	s.sendResponse(fmt.Sprintf("250 %d messages:", len(messages)))
	for _, msg := range messages {
		status := "unread"
		if msg.ReadAt != nil {
			status = "read"
		}
		s.sendResponse(fmt.Sprintf("  %d. From: %s | %s | %s",
			msg.ID, msg.FromUser.Username, status, msg.SentAt.UTC().Format("2006-01-02 15:04")))
	}
}

// handleHelp shows available commands
func (s *Session) handleHelp() {
	s.sendResponse("214 Available commands:")
	s.sendResponse("  LOGIN <username> <password> - Authenticate and get a token")
	s.sendResponse("  TOKEN <token> - Use an existing token")
	s.sendResponse("  WHOAMI - Show the current user")
	s.sendResponse("  SEND <username> <body> - Send a message")
	s.sendResponse("  LIST - Show inbox")
	s.sendResponse("  SHOW <id> - Show a message")
	s.sendResponse("  MARKREAD <id> - Mark a received message read")
	s.sendResponse("  HELP - Show this help")
	s.sendResponse("  QUIT - Close connection")
}

// handleQuit closes the connection
func (s *Session) handleQuit() {
	s.sendResponse("221 Goodbye")
}

// authorize runs guards against the session identity.
func (s *Session) authorize(ctx context.Context, guards ...auth.Guard) (*auth.Identity, error) {
	if err := auth.Enforce(ctx, guards...); err != nil {
		return nil, err
	}
	id, _ := auth.IdentityFromContext(ctx)
	return id, nil
}

func (s *Session) parseID(args, usage string) (int64, bool) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id < 1 {
		s.sendResponse("501 Usage: " + usage)
		return 0, false
	}
	return id, true
}

// replyError maps err to a reply code. Internal errors are logged and not
// echoed.
func (s *Session) replyError(err error) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		s.sendResponse("530 Unauthorized")
	case errors.Is(err, apperrors.ErrNotFound):
		s.sendResponse("550 " + apperrors.Message(err))
	case errors.Is(err, apperrors.ErrInvalidInput):
		s.sendResponse("501 " + apperrors.Message(err))
	default:
		s.log.Error().Err(err).Msg("Command failed")
		s.sendResponse("451 Internal error")
	}
}

func describe(u *models.UserSummary) string {
	return fmt.Sprintf("%s (%s %s)", u.Username, u.FirstName, u.LastName)
}

// sendBody writes a message body, dot-stuffing lines that start with a dot.
func (s *Session) sendBody(body string) {
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		s.sendResponse(line)
	}
}

// sendResponse sends a response to the client
func (s *Session) sendResponse(message string) {
	if _, err := s.conn.Write([]byte(message + "\r\n")); err != nil {
		s.log.Debug().Err(err).Msg("Write failed")
	}
}
