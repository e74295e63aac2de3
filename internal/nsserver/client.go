package nsserver

import (
	"context"
	"net"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/nstrie"
	"github.com/marmos91/dfs/internal/telemetry"
	"github.com/marmos91/dfs/internal/wire"
)

// spanForClientMessage maps a client request's message type to the span
// name under which it should be traced. Unmapped types fall back to the
// message type's own string.
func spanForClientMessage(t wire.MessageType) string {
	switch t {
	case wire.MsgCreate:
		return telemetry.SpanNSCreate
	case wire.MsgCreateFolder:
		return telemetry.SpanNSCreateFolder
	case wire.MsgDelete:
		return telemetry.SpanNSDelete
	case wire.MsgUndo:
		return telemetry.SpanNSUndo
	case wire.MsgInfo:
		return telemetry.SpanNSInfo
	case wire.MsgList:
		return telemetry.SpanNSList
	case wire.MsgView:
		return telemetry.SpanNSView
	case wire.MsgViewFolder:
		return telemetry.SpanNSViewFolder
	case wire.MsgAddAccess:
		return telemetry.SpanNSAddAccess
	case wire.MsgRemAccess:
		return telemetry.SpanNSRemAccess
	case wire.MsgMoveFile:
		return telemetry.SpanNSMoveFile
	case wire.MsgMoveFolder:
		return telemetry.SpanNSMoveFolder
	case wire.MsgExec:
		return telemetry.SpanNSExec
	case wire.MsgRead, wire.MsgStream, wire.MsgWrite, wire.MsgCheckpoint, wire.MsgRevert,
		wire.MsgViewCheckpoint, wire.MsgListCheckpoints, wire.MsgLocateFile:
		return telemetry.SpanNSRedirect
	default:
		return "ns." + t.String()
	}
}

// handleClientSession implements the client dispatcher (§4.4): register
// the username from the first message, then read and dispatch one request
// at a time until the client closes or a terminal message type (exec) is
// processed.
func (s *Server) handleClientSession(conn net.Conn, first *wire.Message) {
	defer conn.Close()

	username := first.Header.FilenameString()
	if username == "" {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "register_client requires a username")
		return
	}

	s.Users.Add(username)
	defer s.Users.Remove(username)
	if err := wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient); err != nil {
		return
	}
	logger.Info("nsserver: client registered", logger.Username(username), logger.ClientAddr(conn.RemoteAddr().String()))

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			logger.Debug("nsserver: client session ended", logger.Username(username), logger.Err(err))
			return
		}
		if s.dispatchClient(conn, username, msg) {
			return
		}
	}
}

// resolveSSIndex looks up filename's owning storage server, preferring the
// cache and falling back to the trie on a miss.
func (s *Server) resolveSSIndex(filename string) (int, error) {
	if idx, ok := s.Cache.Lookup(filename); ok {
		if s.Metrics != nil {
			s.Metrics.CacheHitsTotal.Inc()
		}
		return idx, nil
	}
	if s.Metrics != nil {
		s.Metrics.CacheMissesTotal.Inc()
	}
	idx, ok := s.Trie.Find(filename)
	if !ok {
		return 0, dferrors.NotFound(filename)
	}
	s.Cache.Insert(filename, idx)
	return idx, nil
}

func trieRecordToFileRecord(rec *nstrie.Record) wire.FileRecord {
	acl := make([]wire.ACLEntry, len(rec.ACL))
	for i, e := range rec.ACL {
		acl[i] = wire.ACLEntry{Username: e.Username, Permission: e.Permission}
	}
	return wire.FileRecord{
		Filename:       rec.Filename,
		Owner:          rec.Owner,
		Folder:         rec.Folder,
		WordCount:      rec.WordCount,
		CharCount:      rec.CharCount,
		CreatedAt:      uint64(rec.CreatedAt.Unix()),
		ModifiedAt:     uint64(rec.ModifiedAt.Unix()),
		LastAccessedAt: uint64(rec.LastAccessedAt.Unix()),
		LastAccessedBy: rec.LastAccessedBy,
		ACL:            acl,
	}
}

// dispatchClient handles one request and reports whether the session
// should end (true only for exec, which closes the client socket itself).
func (s *Server) dispatchClient(conn net.Conn, username string, msg *wire.Message) bool {
	start := time.Now()
	filename := msg.Header.FilenameString()
	ctx, span := telemetry.StartNSSpan(context.Background(), spanForClientMessage(msg.Header.Type), filename, telemetry.Username(username))
	defer span.End()
	fail := func(err error) {
		telemetry.RecordError(ctx, err)
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
	}
	observe := func() {
		if s.Metrics == nil {
			return
		}
		s.Metrics.RequestsTotal.WithLabelValues(msg.Header.Type.String(), "ok").Inc()
		s.Metrics.RequestDuration.WithLabelValues(msg.Header.Type.String()).Observe(time.Since(start).Seconds())
	}

	switch msg.Header.Type {
	case wire.MsgCreate:
		s.handleCreate(conn, username, filename)
		observe()

	case wire.MsgDelete:
		s.handleDelete(conn, username, filename)
		observe()

	case wire.MsgUndo:
		s.handleUndo(conn, username, filename)
		observe()

	case wire.MsgInfo:
		s.handleInfo(conn, username, filename)
		observe()

	case wire.MsgAddAccess:
		s.handleAddAccess(conn, username, filename, msg.Payload)
		observe()

	case wire.MsgRemAccess:
		s.handleRemAccess(conn, username, filename, msg.Payload)
		observe()

	case wire.MsgRead, wire.MsgStream:
		s.handleRedirect(conn, username, filename, wire.PermissionRead)
		observe()
	case wire.MsgWrite, wire.MsgCheckpoint, wire.MsgRevert:
		s.handleRedirect(conn, username, filename, wire.PermissionWrite)
		observe()
	case wire.MsgViewCheckpoint, wire.MsgListCheckpoints:
		s.handleRedirect(conn, username, filename, wire.PermissionRead)
		observe()

	case wire.MsgList:
		wire.WriteMessage(conn, wire.MsgList, wire.ComponentNS, wire.ComponentClient, "", wire.UserListPayload{Usernames: s.Users.List()}.Encode())
		observe()

	case wire.MsgView:
		s.handleView(conn, username, msg.Payload)
		observe()

	case wire.MsgViewFolder:
		s.handleViewFolder(conn, username, filename, msg.Payload)
		observe()

	case wire.MsgCreateFolder:
		if err := s.Trie.AddFolder(filename, username); err != nil {
			fail(err)
		} else {
			wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
		}
		observe()

	case wire.MsgMoveFile:
		s.handleMoveFile(conn, username, filename, msg.Payload)
		observe()

	case wire.MsgMoveFolder:
		s.handleMoveFolder(conn, username, filename, msg.Payload)
		observe()

	case wire.MsgSSDeadReport:
		s.handleSSDeadReport(conn, msg.Payload)
		observe()

	case wire.MsgLocateFile:
		s.handleLocateFile(conn, filename)
		observe()

	case wire.MsgExec:
		ssIndex, err := s.resolveSSIndex(filename)
		if err != nil {
			fail(err)
			return true
		}
		if err := s.Trie.CheckPermission(filename, username, wire.PermissionRead); err != nil {
			fail(err)
			return true
		}
		s.runExec(conn, ssIndex, filename)
		observe()
		return true

	default:
		fail(dferrors.New(dferrors.ErrProtocol, "unknown message type"))
		if s.Metrics != nil {
			s.Metrics.RequestsTotal.WithLabelValues(msg.Header.Type.String(), "error").Inc()
		}
	}
	return false
}

func (s *Server) handleCreate(conn net.Conn, username, filename string) {
	if _, ok := s.Trie.Find(filename); ok {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(dferrors.Conflict(filename, "file already exists")))
		return
	}
	ssIndex, slot, ok := s.Registry.GetForNewFile()
	if !ok {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "no storage server available")
		return
	}
	_ = slot
	if err := s.ssCreate(ssIndex, filename); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	if err := s.Trie.Add(filename, username, ssIndex); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	s.ssSetOwner(ssIndex, filename, username)
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleDelete(conn net.Conn, username, filename string) {
	ssIndex, err := s.Trie.Delete(filename, username)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	s.Cache.Invalidate(filename)
	if err := s.ssDelete(ssIndex, filename); err != nil {
		logger.Warn("nsserver: ss delete failed, ns state already consistent", logger.Filename(filename), logger.Err(err))
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleUndo(conn net.Conn, username, filename string) {
	if err := s.Trie.CheckPermission(filename, username, wire.PermissionWrite); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	if err := s.ssUndo(ssIndex, filename); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleInfo(conn net.Conn, username, filename string) {
	if err := s.Trie.CheckPermission(filename, username, wire.PermissionRead); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	if m, err := s.ssGetMetadata(ssIndex, filename); err == nil {
		s.Trie.ApplyRefresh(filename, m)
	}
	rec, err := s.Trie.GetDetails(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	slot, ok := s.Registry.GetByIndex(ssIndex)
	if !ok {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "storage server unavailable")
		return
	}
	ip, port := slot.PublicAddress()
	resp := wire.InfoResponsePayload{
		Record:   trieRecordToFileRecord(rec),
		SSPublic: wire.RedirectPayload{IP: ip, Port: port},
	}
	wire.WriteMessage(conn, wire.MsgInfoResponse, wire.ComponentNS, wire.ComponentClient, filename, resp.Encode())
}

func (s *Server) handleAddAccess(conn net.Conn, username, filename string, payload []byte) {
	access, err := wire.DecodeAccessPayload(payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "malformed add_access payload")
		return
	}
	if err := s.Trie.Grant(filename, username, access.Username, access.Permission); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	if err := s.ssAddAccess(ssIndex, filename, access.Username, access.Permission); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleRemAccess(conn net.Conn, username, filename string, payload []byte) {
	target, err := wire.DecodeString(payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "malformed rem_access payload")
		return
	}
	if err := s.Trie.Revoke(filename, username, target); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	if err := s.ssRemAccess(ssIndex, filename, target); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleRedirect(conn net.Conn, username, filename string, perm wire.Permission) {
	if err := s.Trie.CheckPermission(filename, username, perm); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	slot, ok := s.Registry.GetByIndex(ssIndex)
	if !ok {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "storage server unavailable")
		return
	}
	ip, port := slot.PublicAddress()
	wire.WriteMessage(conn, wire.MsgReadRedirect, wire.ComponentNS, wire.ComponentClient, filename,
		wire.RedirectPayload{IP: ip, Port: port}.Encode())
}

func decodeShowAll(payload []byte) bool {
	return len(payload) >= 1 && payload[0] == 1
}

func recordsToRows(recs []*nstrie.Record) []wire.ListRow {
	rows := make([]wire.ListRow, len(recs))
	for i, rec := range recs {
		fr := trieRecordToFileRecord(rec)
		rows[i] = wire.ListRow{Name: rec.Filename, Owner: rec.Owner, Record: &fr}
	}
	return rows
}

func (s *Server) handleView(conn net.Conn, username string, payload []byte) {
	showAll := decodeShowAll(payload)
	recs := s.Trie.List(username, showAll)

	filenames := make([]string, len(recs))
	for i, r := range recs {
		filenames[i] = r.Filename
	}
	s.refreshAll(filenames)
	recs = s.Trie.List(username, showAll)

	var rows []wire.ListRow
	for _, name := range s.Trie.TopLevelFolders() {
		rows = append(rows, wire.ListRow{IsFolder: true, Name: name})
	}
	rows = append(rows, recordsToRows(recs)...)
	wire.WriteMessage(conn, wire.MsgViewResponse, wire.ComponentNS, wire.ComponentClient, "", wire.ListResponsePayload{Rows: rows}.Encode())
}

func (s *Server) handleViewFolder(conn net.Conn, username, folder string, payload []byte) {
	showAll := decodeShowAll(payload)
	folders, files := s.Trie.ViewFolder(folder, username, showAll)

	filenames := make([]string, len(files))
	for i, r := range files {
		filenames[i] = r.Filename
	}
	s.refreshAll(filenames)
	_, files = s.Trie.ViewFolder(folder, username, showAll)

	var rows []wire.ListRow
	for _, name := range folders {
		rows = append(rows, wire.ListRow{IsFolder: true, Name: name})
	}
	rows = append(rows, recordsToRows(files)...)
	wire.WriteMessage(conn, wire.MsgViewResponse, wire.ComponentNS, wire.ComponentClient, folder, wire.ListResponsePayload{Rows: rows}.Encode())
}

func (s *Server) handleMoveFile(conn net.Conn, username, filename string, payload []byte) {
	folder, err := wire.DecodeString(payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "malformed move_file payload")
		return
	}
	ssIndex, err := s.Trie.SetFileFolder(filename, folder, username)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	s.ssSetFolder(ssIndex, filename, folder)
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleMoveFolder(conn net.Conn, username, src string, payload []byte) {
	dst, err := wire.DecodeString(payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "malformed move_folder payload")
		return
	}
	updates, err := s.Trie.MoveFolder(src, dst, username)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	for _, u := range updates {
		s.Cache.Invalidate(u.Filename)
		s.ssSetFolder(u.SSIndex, u.Filename, u.Folder)
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleSSDeadReport(conn net.Conn, payload []byte) {
	redir, err := wire.DecodeRedirectPayload(payload)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "malformed ss_dead_report payload")
		return
	}
	if idx, ok := s.Registry.GetBySockAddress(redir.IP, redir.Port); ok {
		s.Registry.Remove(idx)
	}
	wire.WriteAck(conn, wire.ComponentNS, wire.ComponentClient)
}

func (s *Server) handleLocateFile(conn net.Conn, filename string) {
	ssIndex, err := s.resolveSSIndex(filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}
	slot, ok := s.Registry.GetByIndex(ssIndex)
	if !ok {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "storage server unavailable")
		return
	}
	ip, port := slot.PublicAddress()
	wire.WriteMessage(conn, wire.MsgLocateResponse, wire.ComponentNS, wire.ComponentClient, filename,
		wire.RedirectPayload{IP: ip, Port: port}.Encode())
}
