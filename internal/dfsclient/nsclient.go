// Package dfsclient implements the client side of both wire protocols: the
// binary Client<->NS protocol used for directory operations and redirects,
// and the textual Client<->SS protocol used for reading and editing file
// content once the NS has pointed the caller at the owning storage server.
package dfsclient

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/dfs/internal/wire"
)

// NSClient holds the single persistent connection a client keeps open to
// the name server for the lifetime of its session.
type NSClient struct {
	conn     net.Conn
	username string
}

// DialNS opens a connection to the name server and performs the
// register_client handshake from §4.4.
func DialNS(addr, username string) (*NSClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial name server: %w", err)
	}
	c := &NSClient{conn: conn, username: username}
	if err := wire.WriteMessage(conn, wire.MsgRegisterClient, wire.ComponentClient, wire.ComponentNS, username, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send register_client: %w", err)
	}
	resp, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read register_client ack: %w", err)
	}
	if resp.Header.Type != wire.MsgAck {
		conn.Close()
		return nil, asError(resp)
	}
	return c, nil
}

// Close ends the NS session. The name server removes the username from its
// active list once the socket closes.
func (c *NSClient) Close() error {
	return c.conn.Close()
}

// asError turns an error-typed response into a Go error. Non-error
// responses passed here are a caller bug and are reported as such.
func asError(resp *wire.Message) error {
	if resp.Header.Type != wire.MsgError {
		return fmt.Errorf("unexpected response type %s", resp.Header.Type)
	}
	return &ProtocolError{Reason: resp.Header.FilenameString()}
}

// ProtocolError wraps the human-readable reason carried by an error
// response on either wire protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

func (c *NSClient) roundTrip(msgType wire.MessageType, filename string, payload []byte) (*wire.Message, error) {
	if err := wire.WriteMessage(c.conn, msgType, wire.ComponentClient, wire.ComponentNS, filename, payload); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}
	resp, err := wire.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", msgType, err)
	}
	return resp, nil
}

func (c *NSClient) simpleCall(msgType wire.MessageType, filename string, payload []byte) error {
	resp, err := c.roundTrip(msgType, filename, payload)
	if err != nil {
		return err
	}
	if resp.Header.Type == wire.MsgError {
		return asError(resp)
	}
	return nil
}

// Create creates a new, empty file owned by the caller.
func (c *NSClient) Create(filename string) error {
	return c.simpleCall(wire.MsgCreate, filename, nil)
}

// CreateFolder creates an empty folder owned by the caller.
func (c *NSClient) CreateFolder(folder string) error {
	return c.simpleCall(wire.MsgCreateFolder, folder, nil)
}

// Delete removes a file the caller owns.
func (c *NSClient) Delete(filename string) error {
	return c.simpleCall(wire.MsgDelete, filename, nil)
}

// Undo reverts a file's live content to its most recent backup.
func (c *NSClient) Undo(filename string) error {
	return c.simpleCall(wire.MsgUndo, filename, nil)
}

// AddAccess grants target the given permission on filename.
func (c *NSClient) AddAccess(filename, target string, perm wire.Permission) error {
	payload := wire.AccessPayload{Username: target, Permission: perm}.Encode()
	return c.simpleCall(wire.MsgAddAccess, filename, payload)
}

// RemAccess revokes target's access to filename.
func (c *NSClient) RemAccess(filename, target string) error {
	return c.simpleCall(wire.MsgRemAccess, filename, wire.EncodeString(target))
}

// MoveFile relocates filename into folder.
func (c *NSClient) MoveFile(filename, folder string) error {
	return c.simpleCall(wire.MsgMoveFile, filename, wire.EncodeString(folder))
}

// MoveFolder relocates the folder tree rooted at src under dst.
func (c *NSClient) MoveFolder(src, dst string) error {
	return c.simpleCall(wire.MsgMoveFolder, src, wire.EncodeString(dst))
}

// ReportSSDead tells the name server a storage server at ip:port is
// unreachable so it can be dropped from the registry.
func (c *NSClient) ReportSSDead(ip string, port uint32) error {
	payload := wire.RedirectPayload{IP: ip, Port: port}.Encode()
	return c.simpleCall(wire.MsgSSDeadReport, "", payload)
}

// Info returns filename's metadata and the public address of the storage
// server currently holding it.
func (c *NSClient) Info(filename string) (wire.InfoResponsePayload, error) {
	resp, err := c.roundTrip(wire.MsgInfo, filename, nil)
	if err != nil {
		return wire.InfoResponsePayload{}, err
	}
	if resp.Header.Type == wire.MsgError {
		return wire.InfoResponsePayload{}, asError(resp)
	}
	return wire.DecodeInfoResponsePayload(resp.Payload)
}

// List returns the usernames currently registered with the name server.
func (c *NSClient) List() ([]string, error) {
	resp, err := c.roundTrip(wire.MsgList, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.Header.Type == wire.MsgError {
		return nil, asError(resp)
	}
	payload, err := wire.DecodeUserListPayload(resp.Payload)
	if err != nil {
		return nil, err
	}
	return payload.Usernames, nil
}

// View lists every top-level folder plus the root-level files the caller
// owns or appears in the ACL of, or every root-level file when showAll is
// true.
func (c *NSClient) View(showAll bool) (wire.ListResponsePayload, error) {
	return c.view(wire.MsgView, "", showAll)
}

// ViewFolder lists the contents of folder.
func (c *NSClient) ViewFolder(folder string, showAll bool) (wire.ListResponsePayload, error) {
	return c.view(wire.MsgViewFolder, folder, showAll)
}

func (c *NSClient) view(msgType wire.MessageType, filename string, showAll bool) (wire.ListResponsePayload, error) {
	payload := []byte{0}
	if showAll {
		payload[0] = 1
	}
	resp, err := c.roundTrip(msgType, filename, payload)
	if err != nil {
		return wire.ListResponsePayload{}, err
	}
	if resp.Header.Type == wire.MsgError {
		return wire.ListResponsePayload{}, asError(resp)
	}
	return wire.DecodeListResponsePayload(resp.Payload)
}

// LocateFile returns the public address of the storage server holding
// filename, without any permission check.
func (c *NSClient) LocateFile(filename string) (wire.RedirectPayload, error) {
	resp, err := c.roundTrip(wire.MsgLocateFile, filename, nil)
	if err != nil {
		return wire.RedirectPayload{}, err
	}
	if resp.Header.Type == wire.MsgError {
		return wire.RedirectPayload{}, asError(resp)
	}
	return wire.DecodeRedirectPayload(resp.Payload)
}

// redirect issues one of the permission-checked operations that resolve to
// a storage server address rather than a direct answer, returning that
// address for the caller to dial and speak the textual protocol against.
func (c *NSClient) redirect(msgType wire.MessageType, filename string) (wire.RedirectPayload, error) {
	resp, err := c.roundTrip(msgType, filename, nil)
	if err != nil {
		return wire.RedirectPayload{}, err
	}
	if resp.Header.Type == wire.MsgError {
		return wire.RedirectPayload{}, asError(resp)
	}
	if resp.Header.Type != wire.MsgReadRedirect {
		return wire.RedirectPayload{}, fmt.Errorf("unexpected response type %s", resp.Header.Type)
	}
	return wire.DecodeRedirectPayload(resp.Payload)
}

// ReadRedirect asks the NS for permission to read filename and returns the
// owning storage server's address.
func (c *NSClient) ReadRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgRead, filename)
}

// StreamRedirect is the streaming counterpart of ReadRedirect.
func (c *NSClient) StreamRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgStream, filename)
}

// WriteRedirect asks the NS for permission to write filename and returns
// the owning storage server's address.
func (c *NSClient) WriteRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgWrite, filename)
}

// CheckpointRedirect, ViewCheckpointRedirect, RevertRedirect and
// ListCheckpointsRedirect mirror WriteRedirect/ReadRedirect for the
// checkpoint family of operations.
func (c *NSClient) CheckpointRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgCheckpoint, filename)
}

func (c *NSClient) ViewCheckpointRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgViewCheckpoint, filename)
}

func (c *NSClient) RevertRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgRevert, filename)
}

func (c *NSClient) ListCheckpointsRedirect(filename string) (wire.RedirectPayload, error) {
	return c.redirect(wire.MsgListCheckpoints, filename)
}

// Exec runs filename as a command on the storage server that holds it and
// streams its stdout back line by line to fn. The name server closes the
// client socket when the subprocess exits, so any further call on c fails;
// callers should treat Exec as the last operation on this NSClient.
func (c *NSClient) Exec(filename string, fn func(line string) error) error {
	if err := wire.WriteMessage(c.conn, wire.MsgExec, wire.ComponentClient, wire.ComponentNS, filename, nil); err != nil {
		return fmt.Errorf("send exec: %w", err)
	}
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
