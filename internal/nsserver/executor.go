package nsserver

import (
	"bufio"
	"net"
	"os/exec"
	"strings"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/wire"
)

// runExec implements the exec command (§4.7): fetch filename's bytes over
// the owning SS's session (read permission already checked by the caller),
// interpret them as a command line, spawn it as a subprocess, and stream
// its stdout to the client socket. This is the terminal message type: the
// client socket is closed when the subprocess exits regardless of outcome.
//
// The subprocess inherits no special sandboxing. Executing arbitrary file
// bytes as a command is a deliberate, documented feature of this protocol,
// not an oversight.
func (s *Server) runExec(conn net.Conn, ssIndex int, filename string) {
	content, err := s.ssInternalRead(ssIndex, filename)
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, dferrors.WireMessage(err))
		return
	}

	commandLine := strings.TrimSpace(string(content))
	if commandLine == "" {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "file contains no command")
		return
	}

	fields := strings.Fields(commandLine)
	cmd := exec.Command(fields[0], fields[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "failed to start subprocess")
		return
	}
	if err := cmd.Start(); err != nil {
		wire.WriteError(conn, wire.ComponentNS, wire.ComponentClient, "failed to start subprocess")
		return
	}

	logger.Info("nsserver: exec started", logger.Filename(filename))
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		conn.Write(append(scanner.Bytes(), '\n'))
	}
	if err := cmd.Wait(); err != nil {
		logger.Warn("nsserver: exec subprocess exited with error", logger.Filename(filename), logger.Err(err))
	}
	logger.Info("nsserver: exec complete, closing client session", logger.Filename(filename))
}
