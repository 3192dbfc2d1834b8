package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/revfs/internal/logger"
	"github.com/marmos91/revfs/pkg/backend"
)

// WireEngine is the default protocol engine. It answers one request at a
// time over the connection, serving every operation from the session root
// it was handed at dispatch.
type WireEngine struct{}

// NewEngine creates the default engine. The engine is stateless and may
// be shared by any number of concurrent sessions.
func NewEngine() *WireEngine {
	return &WireEngine{}
}

// Serve runs the request/reply loop until the client disconnects. A clean
// disconnect at a message boundary returns nil; malformed traffic and
// connection I/O failures return *Error.
func (e *WireEngine) Serve(ctx context.Context, conn net.Conn, root *backend.SessionRoot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := ReadMessage(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return Errorf("read message: %v", err)
		}

		reply, err := e.dispatch(msg, root)
		if err != nil {
			return err
		}

		if err := WriteMessage(conn, reply); err != nil {
			return Errorf("write reply: %v", err)
		}
	}
}

// dispatch decodes one call and runs it against the session root. Errors
// from the tree are mapped to reply statuses; only malformed messages
// fail the session.
func (e *WireEngine) dispatch(msg []byte, root *backend.SessionRoot) ([]byte, error) {
	reader := bytes.NewReader(msg)

	var call CallHeader
	if _, err := xdr.Unmarshal(reader, &call); err != nil {
		return nil, Errorf("unmarshal call header: %v", err)
	}

	status, body, err := e.handle(call.Op, reader, root)
	if err != nil {
		return nil, Errorf("op %d: %v", call.Op, err)
	}

	reply, err := encodeReply(call.Tag, status, body)
	if err != nil {
		return nil, Errorf("op %d: %v", call.Op, err)
	}
	return reply, nil
}

func (e *WireEngine) handle(op uint32, args *bytes.Reader, root *backend.SessionRoot) (uint32, any, error) {
	switch op {
	case OpAttach:
		return StatusOK, &AttachReply{Revision: root.Revision()}, nil

	case OpGetattr:
		var req GetattrRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		info, err := root.Stat(req.Path)
		if err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, &GetattrReply{Attr: attrOf(info)}, nil

	case OpReaddir:
		var req ReaddirRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		infos, err := root.ReadDir(req.Path)
		if err != nil {
			return statusOf(err), nil, nil
		}
		reply := &ReaddirReply{Entries: make([]Attr, 0, len(infos))}
		for _, info := range infos {
			reply.Entries = append(reply.Entries, attrOf(info))
		}
		return StatusOK, reply, nil

	case OpRead:
		var req ReadRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		data, err := root.ReadAt(req.Path, int64(req.Offset), int(req.Count))
		if err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, &ReadReply{Data: data}, nil

	case OpWrite:
		var req WriteRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		n, err := root.WriteAt(req.Path, int64(req.Offset), req.Data)
		if err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, &WriteReply{Count: uint32(n)}, nil

	case OpCreate:
		var req CreateRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		if err := root.Create(req.Path); err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, nil, nil

	case OpMkdir:
		var req MkdirRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		if err := root.MkdirAll(req.Path); err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, nil, nil

	case OpRemove:
		var req RemoveRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		if err := root.Remove(req.Path); err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, nil, nil

	case OpRename:
		var req RenameRequest
		if _, err := xdr.Unmarshal(args, &req); err != nil {
			return 0, nil, err
		}
		if err := root.Rename(req.From, req.To); err != nil {
			return statusOf(err), nil, nil
		}
		return StatusOK, nil, nil

	default:
		logger.Debug("Unknown protocol operation: %d", op)
		return StatusBadOp, nil, nil
	}
}

func attrOf(info os.FileInfo) Attr {
	return Attr{
		Name:     info.Name(),
		Size:     uint64(info.Size()),
		Mode:     uint32(info.Mode().Perm()),
		Dir:      info.IsDir(),
		MtimeSec: info.ModTime().Unix(),
	}
}

func statusOf(err error) uint32 {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return StatusNotFound
	case errors.Is(err, os.ErrExist):
		return StatusExist
	case errors.Is(err, os.ErrPermission):
		return StatusPerm
	default:
		return StatusIO
	}
}
