package nsserver

import (
	"fmt"
	"net"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/nstrie"
	"github.com/marmos91/dfs/internal/wire"
)

// handleSSRegistration implements the SS session lifecycle described in
// spec §4.8: read the registration payload, allocate a slot, ack, ingest
// zero or more register_file records, then exit the handler leaving the
// socket parked in the registry under its slot lock.
func (s *Server) handleSSRegistration(conn net.Conn, first *wire.Message) {
	payload, err := wire.DecodeRegisterPayload(first.Payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentSS, "malformed register payload")
		conn.Close()
		return
	}

	index, err := s.Registry.Register(conn, payload.PublicIP, payload.PublicPort)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentSS, err.Error())
		conn.Close()
		return
	}
	if err := wire.WriteAck(conn, wire.ComponentNS, wire.ComponentSS); err != nil {
		s.Registry.Remove(index)
		conn.Close()
		return
	}

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			logger.Warn("nsserver: ss registration read failed", logger.SSIndex(index), logger.Err(err))
			s.Registry.Remove(index)
			conn.Close()
			return
		}

		switch msg.Header.Type {
		case wire.MsgRegisterFile:
			rec, err := wire.DecodeFileRecord(msg.Payload)
			if err != nil {
				logger.Warn("nsserver: malformed register_file, skipping", logger.SSIndex(index), logger.Err(err))
				continue
			}
			if err := s.Trie.RebuildAdd(index, fileRecordToTrieRecord(rec)); err != nil {
				logger.Warn("nsserver: register_file conflict", logger.Filename(rec.Filename), logger.SSIndex(index), logger.Err(err))
			}
		case wire.MsgRegisterComplete:
			logger.Info("nsserver: storage server registration complete", logger.SSIndex(index))
			return
		default:
			logger.Warn("nsserver: unexpected message during ss registration", logger.SSIndex(index), logger.MessageType(msg.Header.Type.String()))
		}
	}
}

func fileRecordToTrieRecord(f wire.FileRecord) nstrie.Record {
	acl := make([]nstrie.ACLEntry, len(f.ACL))
	for i, e := range f.ACL {
		acl[i] = nstrie.ACLEntry{Username: e.Username, Permission: e.Permission}
	}
	return nstrie.Record{
		Filename:       f.Filename,
		Owner:          f.Owner,
		Folder:         f.Folder,
		WordCount:      f.WordCount,
		CharCount:      f.CharCount,
		CreatedAt:      time.Unix(int64(f.CreatedAt), 0),
		ModifiedAt:     time.Unix(int64(f.ModifiedAt), 0),
		LastAccessedAt: time.Unix(int64(f.LastAccessedAt), 0),
		LastAccessedBy: f.LastAccessedBy,
		ACL:            acl,
	}
}

// ---------------------------------------------------------------------------
// NS→SS transactions. Each is a single send+recv (or send-only) executed
// under the slot's session lock via Registry.Transact.
// ---------------------------------------------------------------------------

// ssRoundTrip sends a request of msgType carrying filename and payload to
// the storage server at ssIndex, and returns the ack/error response (and
// its payload, if any).
func (s *Server) ssRoundTrip(ssIndex int, msgType wire.MessageType, filename string, payload []byte) (*wire.Message, error) {
	var resp *wire.Message
	err := s.Registry.Transact(ssIndex, func(conn net.Conn) error {
		if err := wire.WriteMessage(conn, msgType, wire.ComponentNS, wire.ComponentSS, filename, payload); err != nil {
			return err
		}
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return err
		}
		resp = msg
		return nil
	})
	if err != nil {
		return nil, dferrors.New(dferrors.ErrIO, fmt.Sprintf("storage server %d: %v", ssIndex, err))
	}
	if resp.Header.Type == wire.MsgError {
		return resp, dferrors.New(dferrors.ErrIO, resp.Header.FilenameString())
	}
	return resp, nil
}

// ssFireAndForget sends a request to the storage server at ssIndex without
// waiting for (or expecting) a response, still serialized under the slot's
// session lock so it cannot interleave with another transaction's bytes.
func (s *Server) ssFireAndForget(ssIndex int, msgType wire.MessageType, filename string, payload []byte) {
	err := s.Registry.Transact(ssIndex, func(conn net.Conn) error {
		return wire.WriteMessage(conn, msgType, wire.ComponentNS, wire.ComponentSS, filename, payload)
	})
	if err != nil {
		logger.Warn("nsserver: fire-and-forget message failed", logger.SSIndex(ssIndex), logger.MessageType(msgType.String()), logger.Err(err))
	}
}

func (s *Server) ssCreate(ssIndex int, filename string) error {
	_, err := s.ssRoundTrip(ssIndex, wire.MsgCreate, filename, nil)
	return err
}

func (s *Server) ssDelete(ssIndex int, filename string) error {
	_, err := s.ssRoundTrip(ssIndex, wire.MsgDelete, filename, nil)
	return err
}

func (s *Server) ssUndo(ssIndex int, filename string) error {
	_, err := s.ssRoundTrip(ssIndex, wire.MsgUndo, filename, nil)
	return err
}

func (s *Server) ssGetMetadata(ssIndex int, filename string) (wire.MetadataRespPayload, error) {
	resp, err := s.ssRoundTrip(ssIndex, wire.MsgInternalGetMetadata, filename, nil)
	if err != nil {
		return wire.MetadataRespPayload{}, err
	}
	return wire.DecodeMetadataRespPayload(resp.Payload)
}

func (s *Server) ssInternalRead(ssIndex int, filename string) ([]byte, error) {
	resp, err := s.ssRoundTrip(ssIndex, wire.MsgInternalRead, filename, nil)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (s *Server) ssAddAccess(ssIndex int, filename, username string, perm wire.Permission) error {
	_, err := s.ssRoundTrip(ssIndex, wire.MsgInternalAddAccess, filename, wire.AccessPayload{Username: username, Permission: perm}.Encode())
	return err
}

func (s *Server) ssRemAccess(ssIndex int, filename, username string) error {
	_, err := s.ssRoundTrip(ssIndex, wire.MsgInternalRemAccess, filename, wire.EncodeString(username))
	return err
}

func (s *Server) ssSetOwner(ssIndex int, filename, owner string) {
	s.ssFireAndForget(ssIndex, wire.MsgInternalSetOwner, filename, wire.EncodeString(owner))
}

func (s *Server) ssSetFolder(ssIndex int, filename, folder string) {
	s.ssFireAndForget(ssIndex, wire.MsgInternalSetFolder, filename, wire.EncodeString(folder))
}
