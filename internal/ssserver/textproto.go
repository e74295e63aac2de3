package ssserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/marmos91/dfs/internal/telemetry"
	"github.com/marmos91/dfs/internal/wire"
)

// spanForVerb maps a direct-client command verb to the span name it should
// be traced under.
func spanForVerb(verb string) string {
	switch verb {
	case "READ":
		return telemetry.SpanSSRead
	case "STREAM":
		return telemetry.SpanSSStream
	case "WRITE":
		return telemetry.SpanSSWrite
	case "CHECKPOINT":
		return telemetry.SpanSSCheckpoint
	case "VIEWCHECKPOINT":
		return telemetry.SpanSSViewCheckpoint
	case "REVERT":
		return telemetry.SpanSSRevert
	case "LISTCHECKPOINTS":
		return telemetry.SpanSSListCheckpoints
	case "REQUESTACCESS":
		return telemetry.SpanSSRequestAccess
	case "APPROVEREQUEST":
		return telemetry.SpanSSApproveRequest
	case "DENYREQUEST":
		return telemetry.SpanSSDenyRequest
	default:
		return "ss." + strings.ToLower(verb)
	}
}

// Status tokens for the client<->SS textual protocol (§6).
const (
	statusOK200  = "OK_200"
	statusOK201  = "OK_201"
	statusErr400 = "ERR_400"
	statusErr404 = "ERR_404"
	statusErr409 = "ERR_409"
	statusErr500 = "ERR_500"
)

const (
	endOfFile       = "END_OF_FILE"
	endOfCheckpoint = "END_OF_CHECKPOINT"
	endOfList       = "END_OF_LIST"
	endOfRequests   = "END_OF_REQUESTS"
	streamComplete  = "STREAM_COMPLETE"
	etirw           = "ETIRW"
)

// clientSession holds the per-connection state of one direct client
// session: its identity, its connection id (used as the write engine's and
// lock table's owner key), and whether it is currently inside a WRITE block.
type clientSession struct {
	conn     net.Conn
	w        *bufio.Writer
	connID   string
	username string

	inWrite   bool
	writeFile string
	writeSent int
}

func statusForError(err error) string {
	switch dferrors.CodeOf(err) {
	case dferrors.ErrNotFound, dferrors.ErrAccessDenied:
		return statusErr404
	case dferrors.ErrConflict:
		return statusErr409
	case dferrors.ErrProtocol:
		return statusErr400
	default:
		return statusErr500
	}
}

func (cs *clientSession) reply(status, line string) {
	if line == "" {
		fmt.Fprintf(cs.w, "%s\n", status)
	} else {
		fmt.Fprintf(cs.w, "%s %s\n", status, line)
	}
	cs.w.Flush()
}

func (cs *clientSession) replyErr(err error) {
	cs.reply(statusForError(err), dferrors.WireMessage(err))
}

func (cs *clientSession) replyBody(status string, lines []string, terminator string) {
	fmt.Fprintf(cs.w, "%s\n", status)
	for _, l := range lines {
		fmt.Fprintf(cs.w, "%s\n", l)
	}
	fmt.Fprintf(cs.w, "%s\n", terminator)
	cs.w.Flush()
}

// handleClient drives one direct client connection end to end: the USER
// handshake, then the command loop, until EXIT or disconnect. Any sentence
// locks the connection still holds on exit are released and their swap
// files discarded (§4.9 "Release").
func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()

	cs := &clientSession{conn: conn, w: bufio.NewWriter(conn), connID: uuid.NewString()}
	defer s.Write.ReleaseConnection(cs.connID)

	r := bufio.NewReader(conn)

	first, err := r.ReadString('\n')
	if err != nil {
		return
	}
	fields := strings.Fields(first)
	if len(fields) != 2 || fields[0] != "USER" {
		cs.reply(statusErr400, "expected USER <username>")
		return
	}
	cs.username = fields[1]
	cs.reply(statusOK200, "USER_ACCEPTED")
	logger.Info("ssserver: client session started", logger.Username(cs.username), logger.ConnectionID(cs.connID))

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			logger.Debug("ssserver: client session ended", logger.ConnectionID(cs.connID), logger.Err(err))
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if cs.inWrite {
			if line == etirw {
				s.commitWrite(cs)
				continue
			}
			s.handleInsert(cs, line)
			continue
		}

		if s.dispatch(cs, r, line) {
			return
		}
	}
}

// dispatch handles one command line outside WRITE mode and reports whether
// the session should end.
func (s *Server) dispatch(cs *clientSession, r *bufio.Reader, line string) bool {
	verb, rest := splitVerb(line)

	if verb != "EXIT" {
		firstArg, _ := splitVerb(rest)
		_, span := telemetry.StartSSSpan(context.Background(), spanForVerb(verb), firstArg, telemetry.Username(cs.username))
		defer span.End()
	}

	switch verb {
	case "READ":
		s.handleRead(cs, rest, endOfFile)
	case "STREAM":
		s.handleRead(cs, rest, streamComplete)
	case "WRITE":
		s.handleWriteBegin(cs, rest)
	case "CHECKPOINT":
		s.handleCheckpoint(cs, rest)
	case "VIEWCHECKPOINT":
		s.handleViewCheckpoint(cs, rest)
	case "REVERT":
		s.handleRevert(cs, rest)
	case "LISTCHECKPOINTS":
		s.handleListCheckpoints(cs, rest)
	case "REQUESTACCESS":
		s.handleRequestAccess(cs, rest)
	case "VIEWREQUESTS":
		s.handleViewRequests(cs, rest)
	case "APPROVEREQUEST":
		s.handleApproveRequest(cs, rest)
	case "DENYREQUEST":
		s.handleDenyRequest(cs, rest)
	case "EXIT":
		cs.reply(statusOK200, "BYE")
		return true
	default:
		cs.reply(statusErr400, "unknown command")
	}
	return false
}

func splitVerb(line string) (verb, rest string) {
	fields := strings.SplitN(line, " ", 2)
	verb = fields[0]
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return verb, rest
}

func (s *Server) handleRead(cs *clientSession, filename, terminator string) {
	if filename == "" {
		cs.reply(statusErr400, "missing filename")
		return
	}
	content, err := readLiveOrEmpty(s.Layout, filename)
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	s.touchAccess(filename, cs.username)
	cs.replyBody(statusOK200, splitLines(string(content)), terminator)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (s *Server) handleWriteBegin(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: WRITE <file> <sent#>")
		return
	}
	sent, err := strconv.Atoi(fields[1])
	if err != nil {
		cs.reply(statusErr400, "sentence number must be an integer")
		return
	}
	if err := s.Write.Begin(fields[0], sent, cs.connID); err != nil {
		cs.replyErr(err)
		return
	}
	cs.inWrite, cs.writeFile, cs.writeSent = true, fields[0], sent
	cs.reply(statusOK200, "WRITE_READY")
}

func (s *Server) handleInsert(cs *clientSession, line string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: <word_index> <content>")
		return
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil {
		cs.reply(statusErr400, "word index must be an integer")
		return
	}
	if err := s.Write.Insert(cs.writeFile, cs.writeSent, cs.connID, idx, fields[1]); err != nil {
		cs.replyErr(err)
		return
	}
	cs.reply(statusOK200, "INSERTED")
}

func (s *Server) commitWrite(cs *clientSession) {
	err := s.Write.Commit(cs.writeFile, cs.writeSent, cs.connID, cs.username)
	cs.inWrite = false
	if err != nil {
		cs.replyErr(err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.CommitsTotal.Inc()
	}
	cs.reply(statusOK200, "COMMITTED")
}

func (s *Server) handleCheckpoint(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: CHECKPOINT <file> <tag>")
		return
	}
	filename, tag := fields[0], fields[1]
	if s.Write.AnyLockHeld(filename) {
		cs.replyErr(dferrors.Conflict(filename, "sentence lock held"))
		return
	}
	content, err := readLiveOrEmpty(s.Layout, filename)
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	if err := s.Checkpoints.Checkpoint(filename, tag, cs.username, content); err != nil {
		cs.replyErr(err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.CheckpointsTotal.Inc()
	}
	cs.reply(statusOK201, "CHECKPOINT_CREATED")
}

func (s *Server) handleViewCheckpoint(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: VIEWCHECKPOINT <file> <tag>")
		return
	}
	content, err := s.Checkpoints.View(fields[0], fields[1])
	if err != nil {
		cs.replyErr(err)
		return
	}
	cs.replyBody(statusOK200, splitLines(string(content)), endOfCheckpoint)
}

func (s *Server) handleRevert(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: REVERT <file> <tag>")
		return
	}
	filename, tag := fields[0], fields[1]
	if s.Write.AnyLockHeld(filename) {
		cs.replyErr(dferrors.Conflict(filename, "sentence lock held"))
		return
	}
	current, err := readLiveOrEmpty(s.Layout, filename)
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	restored, err := s.Checkpoints.Revert(filename, tag, cs.username, s.Undo, current)
	if err != nil {
		cs.replyErr(err)
		return
	}
	s.refreshStats(filename, restored, cs.username)
	cs.reply(statusOK200, "REVERTED")
}

func (s *Server) handleListCheckpoints(cs *clientSession, filename string) {
	if filename == "" {
		cs.reply(statusErr400, "missing filename")
		return
	}
	metas, err := s.Checkpoints.List(filename)
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	lines := make([]string, len(metas))
	for i, m := range metas {
		lines[i] = fmt.Sprintf("%d|%s|%s|%d", m.Timestamp.Unix(), m.Tag, m.User, m.Size)
	}
	cs.replyBody(statusOK200, lines, endOfList)
}

func (s *Server) handleRequestAccess(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: REQUESTACCESS <file> <READ|WRITE>")
		return
	}
	perm, err := parsePermission(fields[1])
	if err != nil {
		cs.reply(statusErr400, err.Error())
		return
	}
	if err := s.Access.Request(fields[0], cs.username, perm); err != nil {
		cs.replyErr(err)
		return
	}
	cs.reply(statusOK201, "REQUEST_RECORDED")
}

func parsePermission(s string) (wire.Permission, error) {
	switch strings.ToUpper(s) {
	case "READ":
		return wire.PermissionRead, nil
	case "WRITE":
		return wire.PermissionWrite, nil
	default:
		return 0, fmt.Errorf("permission must be READ or WRITE")
	}
}

func (s *Server) handleViewRequests(cs *clientSession, filename string) {
	if filename == "" {
		cs.reply(statusErr400, "missing filename")
		return
	}
	rec, err := s.Meta.Get(filename)
	if err != nil {
		cs.replyErr(err)
		return
	}
	if rec.Owner != cs.username {
		cs.replyErr(dferrors.Denied(filename))
		return
	}
	reqs, err := s.Access.View(filename)
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	lines := make([]string, len(reqs))
	for i, req := range reqs {
		lines[i] = fmt.Sprintf("%d|%s|%s|%s", req.Timestamp.Unix(), req.User, req.Permission, req.Status)
	}
	cs.replyBody(statusOK200, lines, endOfRequests)
}

func (s *Server) handleApproveRequest(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: APPROVEREQUEST <file> <user>")
		return
	}
	filename, target := fields[0], fields[1]
	rec, err := s.Meta.Get(filename)
	if err != nil {
		cs.replyErr(err)
		return
	}
	if rec.Owner != cs.username {
		cs.replyErr(dferrors.Denied(filename))
		return
	}
	perm, err := s.Access.Approve(filename, target)
	if err != nil {
		cs.replyErr(err)
		return
	}
	err = s.Meta.Mutate(filename, func(r *ssmeta.Record) { r.ACL = upsertACL(r.ACL, target, perm) })
	if err != nil {
		cs.replyErr(dferrors.New(dferrors.ErrIO, err.Error()))
		return
	}
	cs.reply(statusOK200, "APPROVED")
}

func (s *Server) handleDenyRequest(cs *clientSession, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		cs.reply(statusErr400, "usage: DENYREQUEST <file> <user>")
		return
	}
	filename, target := fields[0], fields[1]
	rec, err := s.Meta.Get(filename)
	if err != nil {
		cs.replyErr(err)
		return
	}
	if rec.Owner != cs.username {
		cs.replyErr(dferrors.Denied(filename))
		return
	}
	if err := s.Access.Deny(filename, target); err != nil {
		cs.replyErr(err)
		return
	}
	cs.reply(statusOK200, "DENIED")
}
