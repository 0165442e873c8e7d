package service

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/models"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// Server accepts connections and runs one blocking read loop per session.
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer creates a server around a hub.
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		log: log.WithComponent("server"),
	}
}

// Serve accepts on ln until the context is canceled. Each accepted
// connection gets its own goroutine; a failing connection never takes the
// accept loop down with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("server ready", "address", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.Warn("transient accept error", "error", err)
				continue
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn is a session's worker: blocking reads, dispatched until the
// transport fails. sess may be swapped for the canonical record when an
// identity claim merges a reconnection.
func (s *Server) handleConn(conn net.Conn) {
	sess := s.hub.CreateSession(conn)
	log := s.log.WithSession(sess.ID)

	for {
		msg, err := wire.Decode(conn)
		if err != nil {
			if err != io.EOF {
				log.Warn("read loop ended", "error", err)
			}
			s.hub.HandleReadFailure(sess)
			return
		}

		if msg.Target == wire.ServerName {
			sess = s.dispatch(sess, msg)
			continue
		}

		// Anything not addressed to the server is group content to relay
		s.hub.RelayChat(msg)
	}
}

// dispatch routes one control frame. Unknown actions are logged and ignored
// so newer clients do not break older servers.
func (s *Server) dispatch(sess *models.Session, msg *wire.Message) *models.Session {
	switch msg.Action {
	case wire.ActionRequestConnection:
		return s.hub.ClaimIdentity(sess, msg.Nickname, msg.PublicKey)

	case wire.ActionRequestAddGroup:
		s.hub.AddGroup(msg.GroupName, sess)

	case wire.ActionRequestJoinGroup:
		s.hub.JoinGroup(msg.GroupName, sess)

	case wire.ActionRequestLeaveGroup:
		s.hub.LeaveGroup(msg.GroupName, sess)

	case wire.ActionShareGroupKey:
		s.hub.ResolveKeyShare(msg.GroupName, msg.KeyDelivery)

	case wire.ActionRequestDisconnection:
		s.hub.RequestDisconnection(sess)

	default:
		s.log.Warn("unknown action ignored", "action", msg.Action, "sender", msg.Sender)
	}
	return sess
}
