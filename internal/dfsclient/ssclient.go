package dfsclient

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

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

// SSClient is a connection to a storage server speaking the textual
// Client<->SS protocol. Every NS redirect (read, write, checkpoint, ...)
// resolves to a storage server address; callers dial a fresh SSClient for
// each such address and run exactly one command over it.
type SSClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// DialSS opens a connection to a storage server and performs the USER
// handshake from §6.
func DialSS(addr, username string) (*SSClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial storage server: %w", err)
	}
	c := &SSClient{conn: conn, r: bufio.NewReader(conn)}
	if err := c.writeLine("USER " + username); err != nil {
		conn.Close()
		return nil, err
	}
	status, _, err := c.readStatusLine()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if status != statusOK200 {
		conn.Close()
		return nil, &ProtocolError{Reason: "storage server rejected username"}
	}
	return c, nil
}

// Close ends the session. The storage server releases any sentence locks
// held by this connection when the socket closes.
func (c *SSClient) Close() error {
	c.writeLine("EXIT")
	return c.conn.Close()
}

func (c *SSClient) writeLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *SSClient) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.TrimRight(line, "\n"), nil
}

// readStatusLine reads a line of the form "STATUS rest..." and splits it.
func (c *SSClient) readStatusLine() (status, rest string, err error) {
	line, err := c.readLine()
	if err != nil {
		return "", "", err
	}
	status, rest, _ = strings.Cut(line, " ")
	return status, rest, nil
}

func statusError(status, rest string) error {
	return &ProtocolError{Reason: fmt.Sprintf("%s %s", status, rest)}
}

func isErrorStatus(status string) bool {
	switch status {
	case statusErr400, statusErr404, statusErr409, statusErr500:
		return true
	default:
		return false
	}
}

// readBody reads lines until terminator is seen and returns the lines
// before it.
func (c *SSClient) readBody(terminator string) ([]string, error) {
	var lines []string
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if line == terminator {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// Read fetches filename's full current content.
func (c *SSClient) Read(filename string) ([]string, error) {
	return c.readCommand("READ "+filename, endOfFile)
}

// Stream fetches filename's full current content via the streaming verb;
// functionally identical to Read, it differs only in its terminator.
func (c *SSClient) Stream(filename string) ([]string, error) {
	return c.readCommand("STREAM "+filename, streamComplete)
}

func (c *SSClient) readCommand(command, terminator string) ([]string, error) {
	if err := c.writeLine(command); err != nil {
		return nil, err
	}
	status, rest, err := c.readStatusLine()
	if err != nil {
		return nil, err
	}
	if isErrorStatus(status) {
		return nil, statusError(status, rest)
	}
	return c.readBody(terminator)
}

// Edit is one sentence-relative word insertion within a WRITE session.
type Edit struct {
	WordIndex int
	Content   string
}

// Write opens sentence sentenceNum of filename for editing, applies edits
// in order, and commits. On a lock conflict it returns a *ProtocolError
// without applying any edit.
func (c *SSClient) Write(filename string, sentenceNum int, edits []Edit) error {
	if err := c.writeLine(fmt.Sprintf("WRITE %s %d", filename, sentenceNum)); err != nil {
		return err
	}
	status, rest, err := c.readStatusLine()
	if err != nil {
		return err
	}
	if isErrorStatus(status) {
		return statusError(status, rest)
	}

	for _, e := range edits {
		if err := c.writeLine(fmt.Sprintf("%d %s", e.WordIndex, e.Content)); err != nil {
			return err
		}
		status, rest, err := c.readStatusLine()
		if err != nil {
			return err
		}
		if isErrorStatus(status) {
			c.writeLine(etirw)
			c.readStatusLine()
			return statusError(status, rest)
		}
	}

	if err := c.writeLine(etirw); err != nil {
		return err
	}
	status, rest, err = c.readStatusLine()
	if err != nil {
		return err
	}
	if isErrorStatus(status) {
		return statusError(status, rest)
	}
	return nil
}

// Checkpoint snapshots filename's current content under tag.
func (c *SSClient) Checkpoint(filename, tag string) error {
	return c.simpleCommand(fmt.Sprintf("CHECKPOINT %s %s", filename, tag))
}

// ViewCheckpoint returns the content snapshotted under tag.
func (c *SSClient) ViewCheckpoint(filename, tag string) ([]string, error) {
	return c.readCommand(fmt.Sprintf("VIEWCHECKPOINT %s %s", filename, tag), endOfCheckpoint)
}

// Revert restores filename to the content snapshotted under tag.
func (c *SSClient) Revert(filename, tag string) error {
	return c.simpleCommand(fmt.Sprintf("REVERT %s %s", filename, tag))
}

// ListCheckpoints returns the tags available for filename.
func (c *SSClient) ListCheckpoints(filename string) ([]string, error) {
	return c.readCommand("LISTCHECKPOINTS "+filename, endOfList)
}

// RequestAccess asks the file's owner to grant perm ("READ" or "WRITE").
func (c *SSClient) RequestAccess(filename, perm string) error {
	return c.simpleCommand(fmt.Sprintf("REQUESTACCESS %s %s", filename, perm))
}

// ViewRequests lists pending access requests for filename. Only the owner
// may call this; anyone else gets a not-found-or-denied error.
func (c *SSClient) ViewRequests(filename string) ([]string, error) {
	return c.readCommand("VIEWREQUESTS "+filename, endOfRequests)
}

// ApproveRequest grants target the permission they requested on filename.
func (c *SSClient) ApproveRequest(filename, target string) error {
	return c.simpleCommand(fmt.Sprintf("APPROVEREQUEST %s %s", filename, target))
}

// DenyRequest rejects target's pending request on filename.
func (c *SSClient) DenyRequest(filename, target string) error {
	return c.simpleCommand(fmt.Sprintf("DENYREQUEST %s %s", filename, target))
}

func (c *SSClient) simpleCommand(command string) error {
	if err := c.writeLine(command); err != nil {
		return err
	}
	status, rest, err := c.readStatusLine()
	if err != nil {
		return err
	}
	if isErrorStatus(status) {
		return statusError(status, rest)
	}
	return nil
}

// ParseWordIndex validates a user-supplied word index string for use in an
// Edit, matching the 1-based indexing the storage server expects.
func ParseWordIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("word index must be a positive integer")
	}
	return n, nil
}
