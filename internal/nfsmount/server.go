package nfsmount

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/logging"
)

// handleCacheSize bounds the file handles the NFS layer remembers.
const handleCacheSize = 4096

// Server is a running NFSv3 export of one filesystem.
type Server struct {
	listener net.Listener
	port     int
	writable bool
}

// NewServer starts serving fs on addr. An empty addr picks an ephemeral
// loopback port. The export is writable when fs advertises WriteCapability.
func NewServer(fs billy.Filesystem, addr string) (*Server, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs listen on %s: %w", addr, err)
	}
	s := &Server{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		writable: billy.CapabilityCheck(fs, billy.WriteCapability),
	}

	handler := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fs), handleCacheSize)
	go func() {
		if err := nfs.Serve(listener, handler); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Warn("nfs server stopped", zap.Error(err))
		}
	}()

	logging.Info("nfs server listening", zap.Int("port", s.port), zap.Bool("writable", s.writable))
	return s, nil
}

func (s *Server) Port() int { return s.port }

// Writable reports whether the export accepts filter edits.
func (s *Server) Writable() bool { return s.writable }

func (s *Server) Close() error {
	return s.listener.Close()
}

// Mount attaches the export at mountpoint with the system mount command,
// read-only unless the served filesystem is writable.
func (s *Server) Mount(mountpoint string) error {
	args, err := mountArgs(runtime.GOOS, s.port, s.writable, mountpoint)
	if err != nil {
		return err
	}
	return run("mount", args)
}

// Unmount detaches mountpoint.
func Unmount(mountpoint string) error {
	return run("unmount", []string{"umount", mountpoint})
}

// mountArgs builds the sudo argument list that mounts the export on goos.
// Locking stays local because the server does not speak NLM.
func mountArgs(goos string, port int, writable bool, mountpoint string) ([]string, error) {
	p := strconv.Itoa(port)
	opts := "port=" + p + ",mountport=" + p + ",vers=3,tcp"
	switch goos {
	case "linux":
		opts += ",local_lock=all,nolock"
		if !writable {
			opts += ",ro"
		}
	case "darwin":
		opts += ",locallocks,noresvport"
		if !writable {
			opts += ",rdonly"
		}
	default:
		return nil, fmt.Errorf("mounting is not supported on %s", goos)
	}
	return []string{"mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
}

func run(op string, args []string) error {
	logging.Debug("running "+op, zap.Strings("args", args))
	out, err := exec.Command("sudo", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", op, err, out)
	}
	return nil
}
