package ssserver

import (
	"net"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/marmos91/dfs/internal/wire"
)

// runNSSession maintains the outbound registration session with the name
// server, reconnecting on any failure. It never returns except when the
// server is shutting down.
func (s *Server) runNSSession() {
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		conn, err := net.Dial("tcp", s.NSAddr)
		if err != nil {
			logger.Warn("ssserver: failed to dial name server", logger.Err(err))
			s.sleepOrStop(nsReconnectDelay)
			continue
		}

		if err := s.register(conn); err != nil {
			logger.Warn("ssserver: registration failed", logger.Err(err))
			conn.Close()
			s.sleepOrStop(nsReconnectDelay)
			continue
		}

		logger.Info("ssserver: registered with name server", logger.ClientAddr(s.NSAddr))
		done := make(chan struct{})
		go func() {
			select {
			case <-s.shutdown:
				conn.Close()
			case <-done:
			}
		}()
		s.serveNS(conn)
		close(done)
		conn.Close()
		s.sleepOrStop(nsReconnectDelay)
	}
}

func (s *Server) sleepOrStop(d time.Duration) {
	select {
	case <-s.shutdown:
	case <-time.After(d):
	}
}

// register runs the three-step handshake from §4.8: send register, ack,
// then one register_file per locally-held record, then register_complete.
func (s *Server) register(conn net.Conn) error {
	payload := wire.RegisterPayload{PublicIP: s.PublicIP, PublicPort: s.PublicPort}
	if err := wire.WriteMessage(conn, wire.MsgRegister, wire.ComponentSS, wire.ComponentNS, "", payload.Encode()); err != nil {
		return err
	}
	resp, err := wire.ReadMessage(conn)
	if err != nil {
		return err
	}
	if resp.Header.Type != wire.MsgAck {
		return dferrors.New(dferrors.ErrProtocol, resp.Header.FilenameString())
	}

	for _, rec := range s.Meta.All() {
		fr := ssMetaRecordToFileRecord(rec)
		if err := wire.WriteMessage(conn, wire.MsgRegisterFile, wire.ComponentSS, wire.ComponentNS, rec.Filename, fr.Encode()); err != nil {
			return err
		}
	}
	return wire.WriteMessage(conn, wire.MsgRegisterComplete, wire.ComponentSS, wire.ComponentNS, "", nil)
}

func ssMetaRecordToFileRecord(r *ssmeta.Record) wire.FileRecord {
	return wire.FileRecord{
		Filename:       r.Filename,
		Owner:          r.Owner,
		Folder:         r.Folder,
		WordCount:      r.WordCount,
		CharCount:      r.CharCount,
		SizeBytes:      r.SizeBytes,
		CreatedAt:      uint64(r.CreatedAt.Unix()),
		ModifiedAt:     uint64(r.ModifiedAt.Unix()),
		LastAccessedAt: uint64(r.LastAccessedAt.Unix()),
		LastAccessedBy: r.LastAccessedBy,
		ACL:            r.ACL,
	}
}

func fileRecordToSSMetaRecord(f wire.FileRecord) ssmeta.Record {
	return ssmeta.Record{
		Filename:       f.Filename,
		Owner:          f.Owner,
		Folder:         f.Folder,
		WordCount:      f.WordCount,
		CharCount:      f.CharCount,
		SizeBytes:      f.SizeBytes,
		CreatedAt:      time.Unix(int64(f.CreatedAt), 0),
		ModifiedAt:     time.Unix(int64(f.ModifiedAt), 0),
		LastAccessedAt: time.Unix(int64(f.LastAccessedAt), 0),
		LastAccessedBy: f.LastAccessedBy,
		ACL:            f.ACL,
	}
}

// serveNS reads and dispatches internal NS->SS requests on conn until the
// socket breaks. The NS serializes every transaction under its own
// per-slot lock, so this side only ever has one request in flight.
func (s *Server) serveNS(conn net.Conn) {
	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			logger.Warn("ssserver: ns session read failed", logger.Err(err))
			return
		}
		if !s.dispatchNS(conn, msg) {
			return
		}
	}
}

// dispatchNS handles one internal request and reports whether the session
// should continue.
func (s *Server) dispatchNS(conn net.Conn, msg *wire.Message) bool {
	filename := msg.Header.FilenameString()
	fail := func(err error) {
		wire.WriteError(conn, wire.ComponentSS, wire.ComponentNS, dferrors.WireMessage(err))
	}

	switch msg.Header.Type {
	case wire.MsgCreate:
		now := time.Now()
		if err := writeLive(s.Layout, filename, nil); err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		err := s.Meta.Put(ssmeta.Record{Filename: filename, CreatedAt: now, ModifiedAt: now, LastAccessedAt: now})
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgDelete:
		if err := s.Meta.Delete(filename); err != nil {
			fail(err)
			return true
		}
		if err := removeFileTree(s.Layout, filename); err != nil {
			logger.Warn("ssserver: delete left orphaned files", logger.Filename(filename), logger.Err(err))
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgUndo:
		if s.Locks.AnyLockHeld(filename) {
			fail(dferrors.Conflict(filename, "sentence lock held"))
			return true
		}
		content, err := s.Undo.Undo(filename)
		if err != nil {
			fail(err)
			return true
		}
		s.refreshStats(filename, content, "")
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgInternalGetMetadata:
		rec, err := s.Meta.Get(filename)
		if err != nil {
			fail(err)
			return true
		}
		resp := wire.MetadataRespPayload{
			WordCount:      rec.WordCount,
			CharCount:      rec.CharCount,
			CreatedAt:      uint64(rec.CreatedAt.Unix()),
			ModifiedAt:     uint64(rec.ModifiedAt.Unix()),
			LastAccessedAt: uint64(rec.LastAccessedAt.Unix()),
			LastAccessedBy: rec.LastAccessedBy,
		}
		wire.WriteMessage(conn, wire.MsgInternalMetadataResp, wire.ComponentSS, wire.ComponentNS, filename, resp.Encode())

	case wire.MsgInternalRead:
		content, err := readLiveOrEmpty(s.Layout, filename)
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteMessage(conn, wire.MsgInternalData, wire.ComponentSS, wire.ComponentNS, filename, content)

	case wire.MsgInternalAddAccess:
		access, err := wire.DecodeAccessPayload(msg.Payload)
		if err != nil {
			fail(dferrors.New(dferrors.ErrProtocol, "malformed internal_add_access payload"))
			return true
		}
		err = s.Meta.Mutate(filename, func(rec *ssmeta.Record) {
			rec.ACL = upsertACL(rec.ACL, access.Username, access.Permission)
		})
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgInternalRemAccess:
		target, err := wire.DecodeString(msg.Payload)
		if err != nil {
			fail(dferrors.New(dferrors.ErrProtocol, "malformed internal_rem_access payload"))
			return true
		}
		err = s.Meta.Mutate(filename, func(rec *ssmeta.Record) {
			rec.ACL = removeACL(rec.ACL, target)
		})
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgInternalSetOwner:
		owner, err := wire.DecodeString(msg.Payload)
		if err != nil {
			fail(dferrors.New(dferrors.ErrProtocol, "malformed internal_set_owner payload"))
			return true
		}
		err = s.Meta.Mutate(filename, func(rec *ssmeta.Record) { rec.Owner = owner })
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	case wire.MsgInternalSetFolder:
		folder, err := wire.DecodeString(msg.Payload)
		if err != nil {
			fail(dferrors.New(dferrors.ErrProtocol, "malformed internal_set_folder payload"))
			return true
		}
		err = s.Meta.Mutate(filename, func(rec *ssmeta.Record) { rec.Folder = folder })
		if err != nil {
			fail(dferrors.New(dferrors.ErrIO, err.Error()))
			return true
		}
		wire.WriteAck(conn, wire.ComponentSS, wire.ComponentNS)

	default:
		logger.Warn("ssserver: unexpected internal message", logger.MessageType(msg.Header.Type.String()))
		wire.WriteError(conn, wire.ComponentSS, wire.ComponentNS, "unexpected message type")
	}
	return true
}

func upsertACL(acl []wire.ACLEntry, username string, perm wire.Permission) []wire.ACLEntry {
	for i, e := range acl {
		if e.Username == username {
			acl[i].Permission = perm
			return acl
		}
	}
	return append(acl, wire.ACLEntry{Username: username, Permission: perm})
}

func removeACL(acl []wire.ACLEntry, username string) []wire.ACLEntry {
	out := make([]wire.ACLEntry, 0, len(acl))
	for _, e := range acl {
		if e.Username != username {
			out = append(out, e)
		}
	}
	return out
}
