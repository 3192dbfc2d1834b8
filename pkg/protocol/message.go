package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Wire format: every message is carried in record-marking fragments. Each
// fragment starts with a 4-byte big-endian header whose high bit marks the
// last fragment and whose low 31 bits carry the fragment length. Message
// bodies are XDR-encoded: a call header {tag, op} followed by the
// op-specific arguments, or a reply header {tag, status} followed by the
// op-specific results when the status is OK.

// Protocol operations.
const (
	OpAttach uint32 = iota + 1
	OpGetattr
	OpReaddir
	OpRead
	OpWrite
	OpCreate
	OpMkdir
	OpRemove
	OpRename
)

// Reply status codes.
const (
	StatusOK uint32 = iota
	StatusNotFound
	StatusExist
	StatusPerm
	StatusIO
	StatusBadOp
)

// maxMessageSize bounds a single decoded message.
const maxMessageSize = 1 << 20

// CallHeader prefixes every request.
type CallHeader struct {
	Tag uint32
	Op  uint32
}

// ReplyHeader prefixes every response. The body follows only when Status
// is StatusOK.
type ReplyHeader struct {
	Tag    uint32
	Status uint32
}

// Attr describes one file or directory.
type Attr struct {
	Name     string
	Size     uint64
	Mode     uint32
	Dir      bool
	MtimeSec int64
}

// AttachReply reports the backend revision the session observes.
type AttachReply struct {
	Revision string
}

type GetattrRequest struct {
	Path string
}

type GetattrReply struct {
	Attr Attr
}

type ReaddirRequest struct {
	Path string
}

type ReaddirReply struct {
	Entries []Attr
}

type ReadRequest struct {
	Path   string
	Offset uint64
	Count  uint32
}

type ReadReply struct {
	Data []byte
}

type WriteRequest struct {
	Path   string
	Offset uint64
	Data   []byte
}

type WriteReply struct {
	Count uint32
}

type CreateRequest struct {
	Path string
}

type MkdirRequest struct {
	Path string
}

type RemoveRequest struct {
	Path string
}

type RenameRequest struct {
	From string
	To   string
}

// ReadMessage reads one complete message, reassembling fragments. An EOF
// at a message boundary is returned as io.EOF; anything else that cuts a
// message short is an error.
func ReadMessage(r io.Reader) ([]byte, error) {
	var msg []byte

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF && len(msg) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read fragment header: %w", err)
		}

		raw := binary.BigEndian.Uint32(hdr[:])
		last := raw&0x80000000 != 0
		length := raw & 0x7FFFFFFF

		if uint64(len(msg))+uint64(length) > maxMessageSize {
			return nil, fmt.Errorf("message exceeds %d bytes", maxMessageSize)
		}

		fragment := make([]byte, length)
		if _, err := io.ReadFull(r, fragment); err != nil {
			return nil, fmt.Errorf("read fragment body: %w", err)
		}
		msg = append(msg, fragment...)

		if last {
			return msg, nil
		}
	}
}

// WriteMessage writes msg as a single final fragment.
func WriteMessage(w io.Writer, msg []byte) error {
	if len(msg) > maxMessageSize {
		return fmt.Errorf("message exceeds %d bytes", maxMessageSize)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg))|0x80000000)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write fragment header: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write fragment body: %w", err)
	}
	return nil
}

// EncodeCall builds the body of a request message. A nil args encodes a
// call with no arguments.
func EncodeCall(tag, op uint32, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := xdr.Marshal(buf, &CallHeader{Tag: tag, Op: op}); err != nil {
		return nil, fmt.Errorf("marshal call header: %w", err)
	}
	if args != nil {
		if _, err := xdr.Marshal(buf, args); err != nil {
			return nil, fmt.Errorf("marshal call args: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeReply parses a reply message, decoding the result body into out
// when the status is StatusOK and out is non-nil.
func DecodeReply(msg []byte, out any) (ReplyHeader, error) {
	reader := bytes.NewReader(msg)

	var hdr ReplyHeader
	if _, err := xdr.Unmarshal(reader, &hdr); err != nil {
		return hdr, fmt.Errorf("unmarshal reply header: %w", err)
	}

	if hdr.Status == StatusOK && out != nil {
		if _, err := xdr.Unmarshal(reader, out); err != nil {
			return hdr, fmt.Errorf("unmarshal reply body: %w", err)
		}
	}
	return hdr, nil
}

func encodeReply(tag, status uint32, body any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := xdr.Marshal(buf, &ReplyHeader{Tag: tag, Status: status}); err != nil {
		return nil, fmt.Errorf("marshal reply header: %w", err)
	}
	if status == StatusOK && body != nil {
		if _, err := xdr.Marshal(buf, body); err != nil {
			return nil, fmt.Errorf("marshal reply body: %w", err)
		}
	}
	return buf.Bytes(), nil
}
