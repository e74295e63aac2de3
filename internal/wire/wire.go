// Package wire implements the fixed binary header and message catalogue
// shared by the Name Server, Storage Server, and Client across both the
// NS↔SS and Client↔NS binary protocols. Every message begins with the
// same 266-byte header; the payload layout is message-type-dependent and
// is encoded by the sibling payload helpers in this package.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FilenameFieldSize is the fixed width of the header's NUL-terminated
// filename utility field.
const FilenameFieldSize = 256

// HeaderSize is the on-wire size of a Header: 2 (type) + 2 (src) + 2 (dst)
// + 4 (payload length) + 256 (filename) bytes.
const HeaderSize = 2 + 2 + 2 + 4 + FilenameFieldSize

// Component tags the originating or destination actor of a message.
type Component uint16

const (
	ComponentNS Component = iota
	ComponentSS
	ComponentClient
)

func (c Component) String() string {
	switch c {
	case ComponentNS:
		return "NS"
	case ComponentSS:
		return "SS"
	case ComponentClient:
		return "CLIENT"
	default:
		return fmt.Sprintf("component(%d)", uint16(c))
	}
}

// MessageType is the wire-stable message discriminator. Numeric values
// are assigned once and never reordered across versions.
type MessageType uint16

const (
	MsgRegister MessageType = iota
	MsgRegisterFile
	MsgRegisterComplete
	MsgInternalRead
	MsgInternalData
	MsgInternalGetMetadata
	MsgInternalMetadataResp
	MsgInternalAddAccess
	MsgInternalRemAccess
	MsgInternalSetOwner
	MsgInternalSetFolder
	MsgAck
	MsgError
	MsgRegisterClient
	MsgCreate
	MsgCreateFolder
	MsgRead
	MsgWrite
	MsgStream
	MsgDelete
	MsgUndo
	MsgInfo
	MsgView
	MsgViewFolder
	MsgList
	MsgAddAccess
	MsgRemAccess
	MsgExec
	MsgSSDeadReport
	MsgCheckpoint
	MsgViewCheckpoint
	MsgRevert
	MsgListCheckpoints
	MsgMoveFile
	MsgMoveFolder
	MsgLocateFile
	MsgReadRedirect
	MsgInfoResponse
	MsgListResponse
	MsgViewResponse
	MsgLocateResponse
)

var messageTypeNames = map[MessageType]string{
	MsgRegister:             "register",
	MsgRegisterFile:         "register_file",
	MsgRegisterComplete:     "register_complete",
	MsgInternalRead:         "internal_read",
	MsgInternalData:         "internal_data",
	MsgInternalGetMetadata:  "internal_get_metadata",
	MsgInternalMetadataResp: "internal_metadata_resp",
	MsgInternalAddAccess:    "internal_add_access",
	MsgInternalRemAccess:    "internal_rem_access",
	MsgInternalSetOwner:     "internal_set_owner",
	MsgInternalSetFolder:    "internal_set_folder",
	MsgAck:                  "ack",
	MsgError:                "error",
	MsgRegisterClient:       "register_client",
	MsgCreate:               "create",
	MsgCreateFolder:         "create_folder",
	MsgRead:                 "read",
	MsgWrite:                "write",
	MsgStream:               "stream",
	MsgDelete:               "delete",
	MsgUndo:                 "undo",
	MsgInfo:                 "info",
	MsgView:                 "view",
	MsgViewFolder:           "viewfolder",
	MsgList:                 "list",
	MsgAddAccess:            "add_access",
	MsgRemAccess:            "rem_access",
	MsgExec:                 "exec",
	MsgSSDeadReport:         "ss_dead_report",
	MsgCheckpoint:           "checkpoint",
	MsgViewCheckpoint:       "viewcheckpoint",
	MsgRevert:               "revert",
	MsgListCheckpoints:      "listcheckpoints",
	MsgMoveFile:             "move_file",
	MsgMoveFolder:           "move_folder",
	MsgLocateFile:           "locate_file",
	MsgReadRedirect:         "read_redirect",
	MsgInfoResponse:         "info_response",
	MsgListResponse:         "list_response",
	MsgViewResponse:         "view_response",
	MsgLocateResponse:       "locate_response",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("msgtype(%d)", uint16(t))
}

// Header is the fixed-layout envelope prefixing every message.
type Header struct {
	Type       MessageType
	Source     Component
	Dest       Component
	PayloadLen uint32
	Filename   [FilenameFieldSize]byte
}

// NewHeader builds a Header with the filename field populated from name.
// name is truncated if it does not fit the fixed-width field.
func NewHeader(msgType MessageType, src, dst Component, payloadLen uint32, name string) Header {
	h := Header{Type: msgType, Source: src, Dest: dst, PayloadLen: payloadLen}
	h.SetFilename(name)
	return h
}

// SetFilename writes name into the fixed-width filename field, truncating
// if necessary and always leaving room for the NUL terminator.
func (h *Header) SetFilename(name string) {
	max := FilenameFieldSize - 1
	if len(name) > max {
		name = name[:max]
	}
	for i := range h.Filename {
		h.Filename[i] = 0
	}
	copy(h.Filename[:], name)
}

// FilenameString returns the filename field up to its first NUL byte.
func (h *Header) FilenameString() string {
	n := 0
	for ; n < len(h.Filename); n++ {
		if h.Filename[n] == 0 {
			break
		}
	}
	return string(h.Filename[:n])
}

// WriteHeader writes h to w in big-endian wire order.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Source))
	binary.BigEndian.PutUint16(buf[4:6], uint16(h.Dest))
	binary.BigEndian.PutUint32(buf[6:10], h.PayloadLen)
	copy(buf[10:], h.Filename[:])
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a Header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, err
	}
	h.Type = MessageType(binary.BigEndian.Uint16(buf[0:2]))
	h.Source = Component(binary.BigEndian.Uint16(buf[2:4]))
	h.Dest = Component(binary.BigEndian.Uint16(buf[4:6]))
	h.PayloadLen = binary.BigEndian.Uint32(buf[6:10])
	copy(h.Filename[:], buf[10:])
	return h, nil
}

// Message is a decoded Header plus its raw payload bytes.
type Message struct {
	Header  Header
	Payload []byte
}

// MaxPayloadSize bounds a single message's payload to guard against a
// corrupt or hostile peer claiming an unbounded length.
const MaxPayloadSize = 64 * 1024 * 1024

// WriteMessage writes a complete message (header + payload) to w.
func WriteMessage(w io.Writer, msgType MessageType, src, dst Component, filename string, payload []byte) error {
	h := NewHeader(msgType, src, dst, uint32(len(payload)), filename)
	if err := WriteHeader(w, h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadMessage reads a complete message (header + payload) from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.PayloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d", h.PayloadLen, MaxPayloadSize)
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return &Message{Header: h, Payload: payload}, nil
}

// WriteAck writes a bare ack message with no payload.
func WriteAck(w io.Writer, src, dst Component) error {
	return WriteMessage(w, MsgAck, src, dst, "", nil)
}

// WriteError writes an error message; the human-readable reason goes in
// the header's filename field.
func WriteError(w io.Writer, src, dst Component, reason string) error {
	return WriteMessage(w, MsgError, src, dst, reason, nil)
}
