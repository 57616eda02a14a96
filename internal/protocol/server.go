package protocol

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"messagely/internal/auth"
	"messagely/internal/service"
)

// TokenIssuer mints tokens for authenticated users.
type TokenIssuer interface {
	Issue(username string) (string, error)
}

// Options holds the collaborators of the TCP server.
type Options struct {
	Users      *service.UserService
	Messages   *service.MessageService
	Tokens     TokenIssuer
	Gate       *auth.Gate
	Authorizer *auth.Authorizer
	Logger     zerolog.Logger
}

// Server represents the TCP protocol server
type Server struct {
	users    *service.UserService
	messages *service.MessageService
	tokens   TokenIssuer
	gate     *auth.Gate
	authz    *auth.Authorizer
	logger   zerolog.Logger
}

// NewServer creates a new TCP protocol server
func NewServer(opts Options) *Server {
	return &Server{
		users:    opts.Users,
		messages: opts.Messages,
		tokens:   opts.Tokens,
		gate:     opts.Gate,
		authz:    opts.Authorizer,
		logger:   opts.Logger.With().Str("component", "protocol").Logger(),
	}
}

// Start listens on addr and serves sessions until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("TCP server listening")
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is canceled. Open
// sessions are closed and waited for before Serve returns.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var sessions sync.WaitGroup
	defer sessions.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("TCP server stopped")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn().Err(err).Msg("Failed to accept connection")
				continue
			}
			return err
		}

		// Handle each client connection in a separate goroutine
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			NewSession(conn, s).Handle(ctx)
		}()
	}
}
