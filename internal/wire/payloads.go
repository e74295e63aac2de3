package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Permission is an ACL entry's access level.
type Permission uint8

const (
	PermissionRead Permission = iota
	PermissionWrite
)

func (p Permission) String() string {
	if p == PermissionWrite {
		return "WRITE"
	}
	return "READ"
}

// ACLEntry is one (username, permission) pair within a file's ACL.
type ACLEntry struct {
	Username   string
	Permission Permission
}

// ---------------------------------------------------------------------------
// Low-level primitives: every payload below is built from these.
// ---------------------------------------------------------------------------

func putString(buf *bytes.Buffer, s string) {
	b := []byte(s)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func getString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func getUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func putACL(buf *bytes.Buffer, acl []ACLEntry) {
	putUint32(buf, uint32(len(acl)))
	for _, e := range acl {
		putString(buf, e.Username)
		buf.WriteByte(byte(e.Permission))
	}
}

func getACL(r *bytes.Reader) ([]ACLEntry, error) {
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	acl := make([]ACLEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		permByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		acl = append(acl, ACLEntry{Username: name, Permission: Permission(permByte)})
	}
	return acl, nil
}

// ---------------------------------------------------------------------------
// register (SS→NS): public IP/port the NS should hand to clients.
// ---------------------------------------------------------------------------

type RegisterPayload struct {
	PublicIP   string
	PublicPort uint32
}

func (p RegisterPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, p.PublicIP)
	putUint32(&buf, p.PublicPort)
	return buf.Bytes()
}

func DecodeRegisterPayload(data []byte) (RegisterPayload, error) {
	r := bytes.NewReader(data)
	ip, err := getString(r)
	if err != nil {
		return RegisterPayload{}, err
	}
	port, err := getUint32(r)
	if err != nil {
		return RegisterPayload{}, err
	}
	return RegisterPayload{PublicIP: ip, PublicPort: port}, nil
}

// ---------------------------------------------------------------------------
// register_file (SS→NS): full file metadata record, also used by NS's
// get_details copy-out and by the info_response assembly.
// ---------------------------------------------------------------------------

type FileRecord struct {
	Filename       string
	Owner          string
	Folder         string
	WordCount      uint32
	CharCount      uint32
	SizeBytes      uint64
	CreatedAt      uint64 // unix seconds
	ModifiedAt     uint64
	LastAccessedAt uint64
	LastAccessedBy string
	ACL            []ACLEntry
}

func (f FileRecord) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, f.Filename)
	putString(&buf, f.Owner)
	putString(&buf, f.Folder)
	putUint32(&buf, f.WordCount)
	putUint32(&buf, f.CharCount)
	putUint64(&buf, f.SizeBytes)
	putUint64(&buf, f.CreatedAt)
	putUint64(&buf, f.ModifiedAt)
	putUint64(&buf, f.LastAccessedAt)
	putString(&buf, f.LastAccessedBy)
	putACL(&buf, f.ACL)
	return buf.Bytes()
}

func DecodeFileRecord(data []byte) (FileRecord, error) {
	r := bytes.NewReader(data)
	var f FileRecord
	var err error
	if f.Filename, err = getString(r); err != nil {
		return f, err
	}
	if f.Owner, err = getString(r); err != nil {
		return f, err
	}
	if f.Folder, err = getString(r); err != nil {
		return f, err
	}
	if f.WordCount, err = getUint32(r); err != nil {
		return f, err
	}
	if f.CharCount, err = getUint32(r); err != nil {
		return f, err
	}
	if f.SizeBytes, err = getUint64(r); err != nil {
		return f, err
	}
	if f.CreatedAt, err = getUint64(r); err != nil {
		return f, err
	}
	if f.ModifiedAt, err = getUint64(r); err != nil {
		return f, err
	}
	if f.LastAccessedAt, err = getUint64(r); err != nil {
		return f, err
	}
	if f.LastAccessedBy, err = getString(r); err != nil {
		return f, err
	}
	if f.ACL, err = getACL(r); err != nil {
		return f, err
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// internal_metadata_resp (SS→NS): word count, char count, 3 timestamps,
// last-accessor.
// ---------------------------------------------------------------------------

type MetadataRespPayload struct {
	WordCount      uint32
	CharCount      uint32
	CreatedAt      uint64
	ModifiedAt     uint64
	LastAccessedAt uint64
	LastAccessedBy string
}

func (m MetadataRespPayload) Encode() []byte {
	var buf bytes.Buffer
	putUint32(&buf, m.WordCount)
	putUint32(&buf, m.CharCount)
	putUint64(&buf, m.CreatedAt)
	putUint64(&buf, m.ModifiedAt)
	putUint64(&buf, m.LastAccessedAt)
	putString(&buf, m.LastAccessedBy)
	return buf.Bytes()
}

func DecodeMetadataRespPayload(data []byte) (MetadataRespPayload, error) {
	r := bytes.NewReader(data)
	var m MetadataRespPayload
	var err error
	if m.WordCount, err = getUint32(r); err != nil {
		return m, err
	}
	if m.CharCount, err = getUint32(r); err != nil {
		return m, err
	}
	if m.CreatedAt, err = getUint64(r); err != nil {
		return m, err
	}
	if m.ModifiedAt, err = getUint64(r); err != nil {
		return m, err
	}
	if m.LastAccessedAt, err = getUint64(r); err != nil {
		return m, err
	}
	if m.LastAccessedBy, err = getString(r); err != nil {
		return m, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// internal_add_access (NS→SS): username + permission.
// ---------------------------------------------------------------------------

type AccessPayload struct {
	Username   string
	Permission Permission
}

func (a AccessPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, a.Username)
	buf.WriteByte(byte(a.Permission))
	return buf.Bytes()
}

func DecodeAccessPayload(data []byte) (AccessPayload, error) {
	r := bytes.NewReader(data)
	name, err := getString(r)
	if err != nil {
		return AccessPayload{}, err
	}
	permByte, err := r.ReadByte()
	if err != nil {
		return AccessPayload{}, err
	}
	return AccessPayload{Username: name, Permission: Permission(permByte)}, nil
}

// ---------------------------------------------------------------------------
// internal_rem_access (NS→SS), internal_set_owner (NS→SS), internal_set_folder
// (NS→SS): all carry a single string.
// ---------------------------------------------------------------------------

func EncodeString(s string) []byte {
	var buf bytes.Buffer
	putString(&buf, s)
	return buf.Bytes()
}

func DecodeString(data []byte) (string, error) {
	return getString(bytes.NewReader(data))
}

// ---------------------------------------------------------------------------
// read_redirect / locate_response: (IP, port).
// ---------------------------------------------------------------------------

type RedirectPayload struct {
	IP   string
	Port uint32
}

func (p RedirectPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, p.IP)
	putUint32(&buf, p.Port)
	return buf.Bytes()
}

func DecodeRedirectPayload(data []byte) (RedirectPayload, error) {
	r := bytes.NewReader(data)
	ip, err := getString(r)
	if err != nil {
		return RedirectPayload{}, err
	}
	port, err := getUint32(r)
	if err != nil {
		return RedirectPayload{}, err
	}
	return RedirectPayload{IP: ip, Port: port}, nil
}

// ---------------------------------------------------------------------------
// list_response / view_response: a flat row set of folders and files.
// ---------------------------------------------------------------------------

type ListRow struct {
	IsFolder bool
	Name     string
	Owner    string
	Record   *FileRecord // nil when IsFolder
}

type ListResponsePayload struct {
	Rows []ListRow
}

func (l ListResponsePayload) Encode() []byte {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(l.Rows)))
	for _, row := range l.Rows {
		if row.IsFolder {
			buf.WriteByte(1)
			putString(&buf, row.Name)
			putString(&buf, row.Owner)
			continue
		}
		buf.WriteByte(0)
		rec := row.Record
		if rec == nil {
			rec = &FileRecord{Filename: row.Name, Owner: row.Owner}
		}
		recBytes := rec.Encode()
		putUint32(&buf, uint32(len(recBytes)))
		buf.Write(recBytes)
	}
	return buf.Bytes()
}

func DecodeListResponsePayload(data []byte) (ListResponsePayload, error) {
	r := bytes.NewReader(data)
	n, err := getUint32(r)
	if err != nil {
		return ListResponsePayload{}, err
	}
	rows := make([]ListRow, 0, n)
	for i := uint32(0); i < n; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return ListResponsePayload{}, err
		}
		if kind == 1 {
			name, err := getString(r)
			if err != nil {
				return ListResponsePayload{}, err
			}
			owner, err := getString(r)
			if err != nil {
				return ListResponsePayload{}, err
			}
			rows = append(rows, ListRow{IsFolder: true, Name: name, Owner: owner})
			continue
		}
		recLen, err := getUint32(r)
		if err != nil {
			return ListResponsePayload{}, err
		}
		recBytes := make([]byte, recLen)
		if _, err := r.Read(recBytes); err != nil {
			return ListResponsePayload{}, err
		}
		rec, err := DecodeFileRecord(recBytes)
		if err != nil {
			return ListResponsePayload{}, err
		}
		rows = append(rows, ListRow{IsFolder: false, Name: rec.Filename, Owner: rec.Owner, Record: &rec})
	}
	return ListResponsePayload{Rows: rows}, nil
}

// ---------------------------------------------------------------------------
// list (client→NS response): the active username set.
// ---------------------------------------------------------------------------

type UserListPayload struct {
	Usernames []string
}

func (u UserListPayload) Encode() []byte {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(u.Usernames)))
	for _, name := range u.Usernames {
		putString(&buf, name)
	}
	return buf.Bytes()
}

func DecodeUserListPayload(data []byte) (UserListPayload, error) {
	r := bytes.NewReader(data)
	n, err := getUint32(r)
	if err != nil {
		return UserListPayload{}, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := getString(r)
		if err != nil {
			return UserListPayload{}, err
		}
		names = append(names, name)
	}
	return UserListPayload{Usernames: names}, nil
}

// ---------------------------------------------------------------------------
// info_response: trie record + SS metadata + SS public address.
// ---------------------------------------------------------------------------

type InfoResponsePayload struct {
	Record   FileRecord
	SSPublic RedirectPayload
}

func (p InfoResponsePayload) Encode() []byte {
	var buf bytes.Buffer
	recBytes := p.Record.Encode()
	putUint32(&buf, uint32(len(recBytes)))
	buf.Write(recBytes)
	redirBytes := p.SSPublic.Encode()
	putUint32(&buf, uint32(len(redirBytes)))
	buf.Write(redirBytes)
	return buf.Bytes()
}

func DecodeInfoResponsePayload(data []byte) (InfoResponsePayload, error) {
	r := bytes.NewReader(data)
	recLen, err := getUint32(r)
	if err != nil {
		return InfoResponsePayload{}, err
	}
	recBytes := make([]byte, recLen)
	if _, err := r.Read(recBytes); err != nil {
		return InfoResponsePayload{}, err
	}
	rec, err := DecodeFileRecord(recBytes)
	if err != nil {
		return InfoResponsePayload{}, err
	}
	redirLen, err := getUint32(r)
	if err != nil {
		return InfoResponsePayload{}, err
	}
	redirBytes := make([]byte, redirLen)
	if _, err := r.Read(redirBytes); err != nil {
		return InfoResponsePayload{}, err
	}
	redir, err := DecodeRedirectPayload(redirBytes)
	if err != nil {
		return InfoResponsePayload{}, err
	}
	return InfoResponsePayload{Record: rec, SSPublic: redir}, nil
}

// SanityCheckPayloadLen returns an error if got does not match want, used by
// handlers to reject malformed fixed-shape payloads.
func SanityCheckPayloadLen(got, want int) error {
	if got != want {
		return fmt.Errorf("payload length %d, want %d", got, want)
	}
	return nil
}
